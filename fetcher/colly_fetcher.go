package fetcher

import (
	"context"
	"fmt"
	"log"

	"github.com/gocolly/colly/v2"
)

// CollyFetcher implements the Fetcher interface using colly
type CollyFetcher struct {
	collector *colly.Collector
	encoding  string
}

// NewCollyFetcher creates a new CollyFetcher instance
func NewCollyFetcher(opts Options) (*CollyFetcher, error) {
	opts = opts.withDefaults()

	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(opts.Timeout)

	// One request at a time per site, with a politeness pause between them
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       opts.Delay,
	}); err != nil {
		return nil, fmt.Errorf("failed to set fetch limits: %w", err)
	}

	return &CollyFetcher{
		collector: c,
		encoding:  opts.Encoding,
	}, nil
}

// Fetch implements the Fetcher interface. Each call runs on a clone of the
// base collector, so concurrent fetches do not share callbacks but do share
// the limits.
func (cf *CollyFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := cf.collector.Clone()
	c.Context = ctx

	var body []byte
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	c.OnError(func(r *colly.Response, err error) {
		log.Printf("Error fetching %s: %v\n", r.Request.URL, err)
		fetchErr = fmt.Errorf("failed to fetch %s (status %d): %w", url, r.StatusCode, err)
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("failed to visit %s: %w", url, err)
	}
	c.Wait()

	if fetchErr != nil {
		return "", fetchErr
	}
	if body == nil {
		return "", fmt.Errorf("no response body for %s", url)
	}

	return decodeBody(body, cf.encoding)
}
