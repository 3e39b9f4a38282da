package db

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"listing-factory/models"
)

// ImageMaterializer re-hosts a listing's images and returns the new URLs.
// Images that cannot be re-hosted are left out of the result.
type ImageMaterializer interface {
	Materialize(ctx context.Context, listingID string, urls []string) []string
}

// PartialWriteError means the listing was persisted but its images were
// not reconciled. It is not retried.
type PartialWriteError struct {
	SourceURL string
	ListingID string
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("listing %s (%s) saved but images not synced: %v", e.ListingID, e.SourceURL, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// SaveResult describes a completed Save
type SaveResult struct {
	ListingID string
	Created   bool
	ImageURLs []string
}

// ListingStore persists canonical listings keyed by source URL and keeps
// their image rows in step
type ListingStore struct {
	store        PersistentStore
	materializer ImageMaterializer
	now          func() time.Time

	mu    sync.Mutex
	locks map[string]*urlLock
}

type urlLock struct {
	sync.Mutex
	refs int
}

// Option configures a ListingStore
type Option func(*ListingStore)

// WithMaterializer re-hosts images before they are stored
func WithMaterializer(m ImageMaterializer) Option {
	return func(s *ListingStore) {
		s.materializer = m
	}
}

// WithClock sets the clock used for updatedAt
func WithClock(now func() time.Time) Option {
	return func(s *ListingStore) {
		s.now = now
	}
}

// NewListingStore creates a ListingStore over store
func NewListingStore(store PersistentStore, opts ...Option) *ListingStore {
	s := &ListingStore{
		store: store,
		now:   time.Now,
		locks: make(map[string]*urlLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert inserts the listing, or updates it when one with the same source
// URL exists. It returns the stored identity and whether it was created.
func (s *ListingStore) Upsert(ctx context.Context, l *models.CanonicalListing) (string, bool, error) {
	existing, err := s.store.Select(ctx, TableProperties, ColSourceURL, l.SourceURL)
	if err != nil {
		return "", false, fmt.Errorf("failed to look up %s: %w", l.SourceURL, err)
	}

	payload := listingRow(l)
	payload[ColUpdatedAt] = s.now().UTC()

	if len(existing) > 0 {
		id, err := idOf(existing[0])
		if err != nil {
			return "", false, err
		}
		updated, err := s.store.Update(ctx, TableProperties, id, payload)
		if err != nil {
			return "", false, fmt.Errorf("failed to update listing %s: %w", id, err)
		}
		if len(updated) == 0 {
			return "", false, fmt.Errorf("update of listing %s matched no rows", id)
		}
		return id, false, nil
	}

	inserted, err := s.store.Insert(ctx, TableProperties, payload)
	if err != nil {
		return "", false, fmt.Errorf("failed to insert %s: %w", l.SourceURL, err)
	}
	if len(inserted) == 0 {
		return "", false, fmt.Errorf("insert of %s returned no rows", l.SourceURL)
	}
	id, err := idOf(inserted[0])
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// SyncImages replaces every image row of the listing with urls, in order
func (s *ListingStore) SyncImages(ctx context.Context, listingID string, urls []string) error {
	if _, err := s.store.Delete(ctx, TableImages, ColPropertyID, listingID); err != nil {
		return fmt.Errorf("failed to clear images of %s: %w", listingID, err)
	}
	if len(urls) == 0 {
		return nil
	}
	if _, err := s.store.Insert(ctx, TableImages, imageRows(listingID, urls)...); err != nil {
		return fmt.Errorf("failed to insert images of %s: %w", listingID, err)
	}
	return nil
}

// Save upserts the listing and reconciles its images. Writers for the same
// source URL are serialized. A failed upsert writes nothing; a failed image
// sync returns a *PartialWriteError with the listing already stored.
func (s *ListingStore) Save(ctx context.Context, l *models.CanonicalListing, imageURLs []string) (SaveResult, error) {
	unlock := s.lock(l.SourceURL)
	defer unlock()

	id, created, err := s.Upsert(ctx, l)
	if err != nil {
		return SaveResult{}, err
	}
	l.ID = id
	result := SaveResult{ListingID: id, Created: created, ImageURLs: imageURLs}

	if s.materializer != nil && len(imageURLs) > 0 {
		result.ImageURLs = s.materializer.Materialize(ctx, id, imageURLs)
		if len(result.ImageURLs) == 0 {
			log.Printf("Warning: no image of %s could be uploaded, clearing its image set\n", l.SourceURL)
		}
	}

	if err := s.SyncImages(ctx, id, result.ImageURLs); err != nil {
		return result, &PartialWriteError{SourceURL: l.SourceURL, ListingID: id, Err: err}
	}
	return result, nil
}

// Exists reports whether a listing with sourceURL is stored
func (s *ListingStore) Exists(ctx context.Context, sourceURL string) (bool, error) {
	rows, err := s.store.Select(ctx, TableProperties, ColSourceURL, sourceURL)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", sourceURL, err)
	}
	return len(rows) > 0, nil
}

// Count returns the number of stored listings
func (s *ListingStore) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx, TableProperties)
}

// lock takes the per source URL lock and returns its release
func (s *ListingStore) lock(sourceURL string) func() {
	s.mu.Lock()
	l, ok := s.locks[sourceURL]
	if !ok {
		l = &urlLock{}
		s.locks[sourceURL] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sourceURL)
		}
		s.mu.Unlock()
	}
}
