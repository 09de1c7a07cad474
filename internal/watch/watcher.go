// Package watch turns audio files dropped into a spool directory into batches.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/pipeline"
	"call-insights-go/internal/types"
)

// BatchRunner runs one batch over a set of files.
type BatchRunner interface {
	RunBatch(ctx context.Context, paths []string) (types.BatchResult, error)
}

// Watcher collects new audio files and, once no new file has arrived for
// the settle period, hands the pending set to the runner as one batch. Only
// one batch runs at a time; files arriving meanwhile wait for the next one.
type Watcher struct {
	dir    string
	settle time.Duration
	runner BatchRunner
	log    *logger.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

func New(dir string, settle time.Duration, runner BatchRunner, log *logger.Logger) *Watcher {
	if settle <= 0 {
		settle = 5 * time.Second
	}
	return &Watcher{
		dir:     dir,
		settle:  settle,
		runner:  runner,
		log:     log.Component("watcher").With("dir", dir),
		pending: map[string]struct{}{},
	}
}

// Backfill queues the audio files already in the directory.
func (w *Watcher) Backfill() error {
	files, err := pipeline.ListAudioFiles(w.dir)
	if err != nil {
		return err
	}
	w.add(files...)
	w.log.WithField("files", len(files)).Info("backfilled existing files")
	return nil
}

// Run blocks until ctx is done. A batch already running is allowed to finish.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "watch: create watcher")
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return eris.Wrapf(err, "watch: add %s", w.dir)
	}
	w.log.WithField("settle", w.settle.String()).Info("watching for audio files")

	batches := make(chan []string)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for files := range batches {
			w.runBatch(context.WithoutCancel(gctx), files)
		}
		return nil
	})
	g.Go(func() error {
		defer close(batches)
		w.loop(gctx, fw, batches)
		return nil
	})
	return g.Wait()
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, batches chan<- []string) {
	timer := time.NewTimer(w.settle)
	if w.pendingCount() == 0 {
		timer.Stop()
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-fw.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write) == 0 || !pipeline.IsAudioFile(evt.Name) {
				continue
			}
			w.add(evt.Name)
			timer.Reset(w.settle)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watcher error")
		case <-timer.C:
			files := w.take()
			if len(files) == 0 {
				continue
			}
			select {
			case batches <- files:
			default:
				// Runner busy; try again after another settle period.
				w.add(files...)
				timer.Reset(w.settle)
			}
		}
	}
}

func (w *Watcher) runBatch(ctx context.Context, files []string) {
	res, err := w.runner.RunBatch(ctx, files)
	fields := logrus.Fields{
		"batch_id": res.BatchID,
		"files":    len(files),
		"inserted": res.Inserted,
		"failed":   res.Failed,
	}
	if err != nil {
		w.log.WithFields(fields).WithField("error", err.Error()).Error("watched batch not committed")
		return
	}
	w.log.WithFields(fields).Info("watched batch complete")
}

func (w *Watcher) add(files ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range files {
		w.pending[f] = struct{}{}
	}
}

func (w *Watcher) pendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// take drains the pending set, dropping files that disappeared meanwhile.
func (w *Watcher) take() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	files := make([]string, 0, len(w.pending))
	for f := range w.pending {
		if _, err := os.Stat(f); err == nil {
			files = append(files, filepath.Clean(f))
		}
	}
	clear(w.pending)
	sort.Strings(files)
	return files
}
