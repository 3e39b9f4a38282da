package images

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"listing-factory/objectstore"
)

const DefaultPrefix = "properties"

// Materializer copies listing images into an object store
type Materializer struct {
	store     objectstore.ObjectStore
	client    *http.Client
	prefix    string
	userAgent string
}

// NewMaterializer creates a Materializer uploading under prefix. A nil
// client gets a default one.
func NewMaterializer(store objectstore.ObjectStore, client *http.Client, prefix string) *Materializer {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Materializer{
		store:     store,
		client:    client,
		prefix:    strings.Trim(prefix, "/"),
		userAgent: defaultUserAgent,
	}
}

// ObjectPath is where the index-th image of a listing is stored
func (m *Materializer) ObjectPath(listingID string, index int, imageURL string) string {
	return fmt.Sprintf("%s/%s/%02d%s", m.prefix, listingID, index, extension(imageURL))
}

// Materialize fetches each image and uploads it, returning the hosted URLs
// in input order. Images that fail are logged and skipped.
func (m *Materializer) Materialize(ctx context.Context, listingID string, urls []string) []string {
	hosted := make([]string, 0, len(urls))
	for i, imageURL := range urls {
		if ctx.Err() != nil {
			break
		}
		data, served, err := fetchImage(ctx, m.client, m.userAgent, imageURL)
		if err != nil {
			log.Printf("Warning: skipping image %s of listing %s: %v\n", imageURL, listingID, err)
			continue
		}
		objectPath := m.ObjectPath(listingID, i, imageURL)
		publicURL, err := m.store.Upload(ctx, objectPath, data, contentTypeFor(served, extension(imageURL)))
		if err != nil {
			log.Printf("Warning: skipping image %s of listing %s: %v\n", imageURL, listingID, err)
			continue
		}
		hosted = append(hosted, publicURL)
	}
	return hosted
}
