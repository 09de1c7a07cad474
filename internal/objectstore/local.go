package objectstore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"call-insights-go/internal/fault"
)

const localScheme = "file"

// LocalStore keeps objects on disk under Root/Bucket. It backs local runs and
// tests; content types are not recorded.
type LocalStore struct {
	Root   string
	Bucket string
}

func NewLocalStore(root, bucket string) (*LocalStore, error) {
	if bucket == "" {
		return nil, fault.New(fault.Config, "objectstore.local", errors.New("bucket name is required"))
	}
	if err := os.MkdirAll(filepath.Join(root, bucket), 0o755); err != nil {
		return nil, eris.Wrap(err, "objectstore: create local bucket")
	}
	return &LocalStore{Root: root, Bucket: bucket}, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst, err := s.path(s.Bucket, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fault.New(fault.Transient, "objectstore.put", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", fault.New(fault.Transient, "objectstore.put", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fault.New(fault.Transient, "objectstore.put", err)
	}
	if err := f.Close(); err != nil {
		return "", fault.New(fault.Transient, "objectstore.put", err)
	}
	return formatRef(localScheme, s.Bucket, filepath.ToSlash(key)), nil
}

func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	scheme, bucket, key, err := ParseRef(ref)
	if err != nil {
		return err
	}
	if scheme != localScheme || bucket != s.Bucket {
		return fault.New(fault.Unknown, "objectstore.delete", eris.Errorf("reference %q is not in bucket %q", ref, s.Bucket))
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fault.New(fault.NotFound, "objectstore.delete", err)
		}
		return fault.New(fault.Transient, "objectstore.delete", err)
	}
	return nil
}

func (s *LocalStore) path(bucket, key string) (string, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", fault.New(fault.Unknown, "objectstore.local", eris.Errorf("key %q escapes bucket", key))
	}
	return filepath.Join(s.Root, bucket, rel), nil
}
