// Package storage abstracts the object store holding uploaded files.
// Object keys are opaque here; feature packages build their own
// prefixes (documents/..., access-requests/...).
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a stored object without its content.
type ObjectInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Backend is the object store contract. Upload overwrites an existing
// key; Delete of a missing key is not an error.
type Backend interface {
	Upload(ctx context.Context, key string, contentType string, body io.Reader) (*ObjectInfo, error)
	Download(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	SignedURL(key string, ttl time.Duration) (string, error)
}
