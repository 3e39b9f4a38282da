package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"listing-factory/db"
	"listing-factory/embeddings"
	"listing-factory/fetcher"
	"listing-factory/filter"
	"listing-factory/geocode"
	"listing-factory/models"
	"listing-factory/normalizer"
	"listing-factory/parser"
)

// Geocoder resolves a place to coordinates
type Geocoder interface {
	Resolve(ctx context.Context, loc geocode.Location) (models.Coordinates, error)
}

// ImageDownloader keeps a local copy of listing photos
type ImageDownloader interface {
	Download(ctx context.Context, listingID string, urls []string) ([]string, error)
}

// Deps are the collaborators of a pipeline. Filter, Geocoder, Embedder and
// Downloader are optional.
type Deps struct {
	Fetcher    fetcher.Fetcher
	Parser     *parser.ListingParser
	Normalizer *normalizer.Normalizer
	Filter     *filter.Filter
	Geocoder   Geocoder
	Embedder   embeddings.Provider
	Store      *db.ListingStore
	Downloader ImageDownloader
}

// Options tune a run
type Options struct {
	SearchURL string
	BaseURL   string
	// MaxListings caps discovery; zero means no cap
	MaxListings int
	// Workers above one process listings concurrently
	Workers      int
	ListingDelay time.Duration
}

// Pipeline takes listing pages from fetch to storage
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a pipeline
func New(deps Deps, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}
}

// Discover fetches the search page and returns the detail page URLs on it
func (p *Pipeline) Discover(ctx context.Context) ([]string, error) {
	log.Printf("Fetching search page %s\n", p.opts.SearchURL)
	html, err := p.deps.Fetcher.Fetch(ctx, p.opts.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search page: %w", err)
	}

	urls, err := parser.ParseSearchResults(html, p.opts.BaseURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Found %d listing links\n", len(urls))

	if p.opts.MaxListings > 0 && len(urls) > p.opts.MaxListings {
		urls = urls[:p.opts.MaxListings]
	}
	return urls, nil
}

// Run processes urls and returns one result per URL in input order. Once
// ctx is done no further listing is started and the rest are reported as
// cancelled.
func (p *Pipeline) Run(ctx context.Context, urls []string) *Summary {
	started := p.now()
	results := make([]Result, len(urls))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				log.Printf("[%d/%d] Processing %s\n", i+1, len(urls), urls[i])
				results[i] = p.Process(ctx, urls[i])
				if i < len(urls)-1 {
					pause(ctx, p.opts.ListingDelay)
				}
			}
		}()
	}

	dispatched := 0
feed:
	for dispatched < len(urls) {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- dispatched:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()

	for i := dispatched; i < len(urls); i++ {
		results[i] = Result{SourceURL: urls[i], Status: StatusCancelled, Err: ctx.Err()}
	}
	if dispatched < len(urls) {
		log.Printf("Run cancelled, %d listings not processed\n", len(urls)-dispatched)
	}

	return newSummary(results, started, p.now())
}

// Process takes one listing page from fetch to storage
func (p *Pipeline) Process(ctx context.Context, sourceURL string) Result {
	result := Result{SourceURL: sourceURL}

	if err := ctx.Err(); err != nil {
		return p.fail(result, StatusCancelled, "cancelled before start", err)
	}

	html, err := p.deps.Fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return p.fail(result, statusFor(err), "fetch failed", err)
	}

	raw, err := p.deps.Parser.ParseListing(html, sourceURL)
	if err != nil {
		return p.fail(result, StatusFailed, "parse failed", err)
	}

	listing := p.deps.Normalizer.Normalize(raw, nil)
	result.Listing = listing

	if err := normalizer.Check(listing); err != nil {
		var verr *normalizer.ValidationError
		if errors.As(err, &verr) {
			return p.fail(result, StatusInvalid, verr.Field, err)
		}
		return p.fail(result, StatusInvalid, "invalid", err)
	}

	if p.deps.Filter != nil {
		if ok, reason := p.deps.Filter.Match(listing); !ok {
			log.Printf("Skipping %s: %s\n", sourceURL, reason)
			result.Status = StatusFiltered
			result.Reason = reason
			return result
		}
	}

	p.geocode(ctx, listing)
	p.embed(ctx, listing)

	saved, err := p.deps.Store.Save(ctx, listing, raw.Images)
	var partial *db.PartialWriteError
	switch {
	case errors.As(err, &partial):
		result.ListingID = saved.ListingID
		result.Created = saved.Created
		return p.fail(result, StatusPartial, "images not stored", err)
	case err != nil:
		return p.fail(result, statusFor(err), "save failed", err)
	}

	result.Status = StatusPersisted
	result.ListingID = saved.ListingID
	result.Created = saved.Created
	log.Printf("Saved %s as %s (new: %t, %d images)\n", sourceURL, saved.ListingID, saved.Created, len(saved.ImageURLs))

	if p.deps.Downloader != nil && len(raw.Images) > 0 {
		files, err := p.deps.Downloader.Download(ctx, saved.ListingID, raw.Images)
		if err != nil {
			log.Printf("Warning: image download for %s stopped: %v\n", sourceURL, err)
		}
		log.Printf("Downloaded %d/%d images of %s\n", len(files), len(raw.Images), sourceURL)
	}

	return result
}

// geocode attaches coordinates when the listing has a city. Failures leave
// the coordinates absent.
func (p *Pipeline) geocode(ctx context.Context, listing *models.CanonicalListing) {
	if p.deps.Geocoder == nil || listing.City == nil {
		return
	}
	loc := geocode.Location{City: *listing.City, Region: models.StringValue(listing.Region)}
	coords, err := p.deps.Geocoder.Resolve(ctx, loc)
	if err != nil {
		log.Printf("Warning: could not geocode %s for %s: %v\n", loc.CacheKey(), listing.SourceURL, err)
		return
	}
	listing.Coordinates = &coords
}

func (p *Pipeline) embed(ctx context.Context, listing *models.CanonicalListing) {
	if p.deps.Embedder == nil {
		return
	}
	vector, err := embeddings.EmbedListing(ctx, p.deps.Embedder, listing)
	if err != nil {
		log.Printf("Warning: no embedding for %s: %v\n", listing.SourceURL, err)
		return
	}
	listing.Embedding = vector
}

func (p *Pipeline) fail(result Result, status Status, reason string, err error) Result {
	result.Status = status
	result.Reason = reason
	result.Err = err
	switch status {
	case StatusInvalid:
		log.Printf("Warning: invalid listing %s: %v\n", result.SourceURL, err)
	case StatusCancelled:
		log.Printf("Cancelled %s: %v\n", result.SourceURL, err)
	default:
		log.Printf("Error: %s for %s: %v\n", reason, result.SourceURL, err)
	}
	return result
}

// statusFor maps context errors to cancelled
func statusFor(err error) Status {
	if errors.Is(err, context.Canceled) {
		return StatusCancelled
	}
	return StatusFailed
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
