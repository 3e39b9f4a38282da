package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/api/option"
	gstorage "google.golang.org/api/storage/v1"
)

const publicBaseURL = "https://storage.googleapis.com"

// GCSStore uploads objects to a Google Cloud Storage bucket
type GCSStore struct {
	service *gstorage.Service
	bucket  string
	baseURL string
}

// NewGCSStore creates a store for bucket. Credentials come from the
// environment (GOOGLE_APPLICATION_CREDENTIALS) unless opts say otherwise.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("no storage bucket configured")
	}
	service, err := gstorage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}
	return &GCSStore{service: service, bucket: bucket, baseURL: publicBaseURL}, nil
}

// Upload writes data to path in the bucket and returns its public URL
func (g *GCSStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	object := &gstorage.Object{
		Name:        path,
		ContentType: contentType,
	}
	_, err := g.service.Objects.Insert(g.bucket, object).
		Media(bytes.NewReader(data)).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", path, g.bucket, err)
	}
	return g.PublicURL(path), nil
}

// PublicURL returns the public URL of path in the bucket
func (g *GCSStore) PublicURL(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/%s/%s", g.baseURL, g.bucket, strings.Join(segments, "/"))
}
