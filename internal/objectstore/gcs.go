package objectstore

import (
	"context"
	"errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"call-insights-go/internal/fault"
)

const gcsScheme = "gs"

// GCSStore stores objects in a single Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore uses application default credentials unless opts say otherwise.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, fault.New(fault.Config, "objectstore.gcs", errors.New("bucket name is required"))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "objectstore: create gcs client")
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(wctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return "", classifyGCS("objectstore.put", err)
	}
	if err := w.Close(); err != nil {
		return "", classifyGCS("objectstore.put", err)
	}
	return formatRef(gcsScheme, s.bucket, key), nil
}

func (s *GCSStore) Delete(ctx context.Context, ref string) error {
	_, bucket, key, err := ParseRef(ref)
	if err != nil {
		return err
	}
	if err := s.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		return classifyGCS("objectstore.delete", err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func classifyGCS(op string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fault.New(fault.NotFound, op, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return fault.New(fault.RateLimited, op, err)
		case apiErr.Code == http.StatusNotFound:
			return fault.New(fault.NotFound, op, err)
		case apiErr.Code >= 500:
			return fault.New(fault.Transient, op, err)
		}
		return fault.New(fault.Unknown, op, err)
	}
	return fault.New(fault.Transient, op, err)
}
