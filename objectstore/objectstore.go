package objectstore

import "context"

// ObjectStore stores bytes under a path and returns their public URL
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}
