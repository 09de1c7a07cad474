package objectstore

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"call-insights-go/internal/fault"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/retry"
)

// ContentType is what every upload is tagged with; mp3 handling happens at
// analysis time through the MIME hint.
const ContentType = "audio/wav"

// DefaultPrefix is the logical folder uploads land under.
const DefaultPrefix = "calls"

// Gateway applies the retry schedule to a Store.
type Gateway struct {
	store  Store
	prefix string
	exec   retry.Executor
	log    *logger.Logger
}

func NewGateway(store Store, prefix string, exec retry.Executor, log *logger.Logger) *Gateway {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Gateway{
		store:  store,
		prefix: prefix,
		exec:   exec.WithPolicy(retry.Always),
		log:    log.Component("objectstore"),
	}
}

// Key derives the object key for a local file.
func (g *Gateway) Key(localPath string) string {
	return path.Join(g.prefix, filepath.Base(localPath))
}

// Upload streams localPath to the store and returns its reference.
func (g *Gateway) Upload(ctx context.Context, localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", fault.New(fault.NotFound, "objectstore.upload", eris.Wrapf(err, "objectstore: stat %s", localPath))
	}
	key := g.Key(localPath)

	ref, err := retry.DoValue(ctx, g.exec, "objectstore.upload", func(ctx context.Context) (string, error) {
		f, err := os.Open(localPath)
		if err != nil {
			return "", fault.New(fault.Transient, "objectstore.upload", err)
		}
		defer f.Close()
		return g.store.Put(ctx, key, f, ContentType)
	})
	if err != nil {
		return "", eris.Wrapf(err, "objectstore: upload %s", filepath.Base(localPath))
	}

	g.log.WithFields(logrus.Fields{"file": localPath, "ref": ref}).Info("uploaded")
	return ref, nil
}

// Delete removes ref from the store. Failures are logged and dropped; a
// missing object is not retried.
func (g *Gateway) Delete(ctx context.Context, ref string) {
	exec := g.exec.WithPolicy(retry.Except(fault.NotFound))
	err := exec.Do(ctx, "objectstore.delete", func(ctx context.Context) error {
		return g.store.Delete(ctx, ref)
	})
	if err != nil {
		g.log.WithError(err).WithField("ref", ref).Warn("could not delete object")
		return
	}
	g.log.WithField("ref", ref).Info("deleted")
}
