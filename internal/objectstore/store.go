// Package objectstore uploads call recordings to an object store and removes
// them once analysis is done.
package objectstore

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Store is the minimal object store surface the gateway needs. References
// are URI-form (gs://bucket/key, file://bucket/key).
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// ParseRef splits a reference into scheme, bucket and key.
func ParseRef(ref string) (scheme, bucket, key string, err error) {
	scheme, rest, ok := strings.Cut(ref, "://")
	if !ok || scheme == "" {
		return "", "", "", eris.Errorf("objectstore: reference %q has no scheme", ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", "", eris.Errorf("objectstore: reference %q has no bucket/key", ref)
	}
	return scheme, bucket, key, nil
}

func formatRef(scheme, bucket, key string) string {
	return scheme + "://" + bucket + "/" + key
}
