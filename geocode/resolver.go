package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"listing-factory/models"

	"golang.org/x/time/rate"
)

// ErrNotFound means the location could not be resolved. It is an expected
// outcome, not a failure of the run.
var ErrNotFound = errors.New("location not found")

const (
	DefaultEndpoint    = "https://nominatim.openstreetmap.org/search"
	DefaultUserAgent   = "TunisHome/1.0"
	DefaultCountry     = "Tunisia"
	DefaultCountryCode = "tn"
	DefaultMinInterval = time.Second
	DefaultTimeout     = 10 * time.Second
)

// Config holds resolver settings. Zero values take the defaults above.
type Config struct {
	Endpoint    string
	UserAgent   string
	Country     string
	CountryCode string
	MinInterval time.Duration
	Timeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Country == "" {
		c.Country = DefaultCountry
	}
	if c.CountryCode == "" {
		c.CountryCode = DefaultCountryCode
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Location is a place to resolve. Country falls back to the resolver's.
type Location struct {
	City    string
	Region  string
	Country string
}

// CacheKey is the lowercased city, suffixed with "_" and the lowercased
// region when one is given. Country is not part of the key.
func (l Location) CacheKey() string {
	key := strings.ToLower(strings.TrimSpace(l.City))
	if region := strings.ToLower(strings.TrimSpace(l.Region)); region != "" {
		key += "_" + region
	}
	return key
}

// CacheStats describes the resolver cache
type CacheStats struct {
	CachedLocations int
	Locations       []string
}

// Resolver turns place names into coordinates through a Nominatim style
// search endpoint. Successful lookups are cached for the resolver's
// lifetime and outbound calls are spaced by MinInterval across all callers.
type Resolver struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]models.Coordinates
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// NewResolver creates a Resolver. A nil client gets one with cfg.Timeout.
func NewResolver(cfg Config, client *http.Client) *Resolver {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Resolver{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		cache:   make(map[string]models.Coordinates),
	}
}

// Resolve returns the coordinates for loc. Cache hits return immediately;
// misses wait for the rate floor before calling out.
func (r *Resolver) Resolve(ctx context.Context, loc Location) (models.Coordinates, error) {
	if strings.TrimSpace(loc.City) == "" {
		return models.Coordinates{}, fmt.Errorf("%w: no city given", ErrNotFound)
	}

	key := loc.CacheKey()
	if coords, ok := r.cached(key); ok {
		log.Printf("Geocoding cache hit: %s\n", key)
		return coords, nil
	}

	query := r.buildQuery(loc)

	if err := r.limiter.Wait(ctx); err != nil {
		return models.Coordinates{}, fmt.Errorf("waiting for geocoding slot: %w", err)
	}

	coords, err := r.search(ctx, query)
	if err != nil {
		return models.Coordinates{}, err
	}

	r.mu.Lock()
	r.cache[key] = coords
	r.mu.Unlock()

	log.Printf("Geocoded: %s -> (%f, %f)\n", query, coords.Latitude, coords.Longitude)
	return coords, nil
}

// ResolveBatch resolves locs one after another and returns the hits by
// cache key. Failures are logged and skipped.
func (r *Resolver) ResolveBatch(ctx context.Context, locs []Location) map[string]models.Coordinates {
	results := make(map[string]models.Coordinates)
	for i, loc := range locs {
		if ctx.Err() != nil {
			break
		}
		if strings.TrimSpace(loc.City) == "" {
			continue
		}
		log.Printf("[%d/%d] Geocoding: %s, %s\n", i+1, len(locs), loc.City, loc.Region)
		coords, err := r.Resolve(ctx, loc)
		if err != nil {
			log.Printf("Warning: geocoding %s failed: %v\n", loc.CacheKey(), err)
			continue
		}
		results[loc.CacheKey()] = coords
	}
	return results
}

// Stats reports what the cache holds
func (r *Resolver) Stats() CacheStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.cache))
	for k := range r.cache {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return CacheStats{CachedLocations: len(keys), Locations: keys}
}

func (r *Resolver) cached(key string) (models.Coordinates, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	coords, ok := r.cache[key]
	return coords, ok
}

// buildQuery joins the aliased city, region and country with ", "
func (r *Resolver) buildQuery(loc Location) string {
	parts := []string{NormalizePlace(loc.City)}
	if region := NormalizePlace(loc.Region); region != "" {
		parts = append(parts, region)
	}
	country := strings.TrimSpace(loc.Country)
	if country == "" {
		country = r.cfg.Country
	}
	parts = append(parts, country)
	return strings.Join(parts, ", ")
}

func (r *Resolver) search(ctx context.Context, query string) (models.Coordinates, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("countrycodes", r.cfg.CountryCode)
	params.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to build geocoding request: %w", err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("geocoding request for %q failed: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Coordinates{}, fmt.Errorf("geocoding %q returned status %d", query, resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return models.Coordinates{}, fmt.Errorf("failed to decode geocoding response for %q: %w", query, err)
	}
	if len(results) == 0 {
		return models.Coordinates{}, fmt.Errorf("%w: no results for %q", ErrNotFound, query)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("invalid latitude %q for %q: %w", results[0].Lat, query, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("invalid longitude %q for %q: %w", results[0].Lon, query, err)
	}
	return models.Coordinates{Latitude: lat, Longitude: lon}, nil
}
