package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeNominatim answers every query with the coordinates registered for it
type fakeNominatim struct {
	mu      sync.Mutex
	answers map[string][2]string
	queries []string
	calls   atomic.Int32
	status  int
}

func (f *fakeNominatim) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	q := r.URL.Query()
	f.mu.Lock()
	f.queries = append(f.queries, q.Get("q"))
	f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	if q.Get("format") != "json" || q.Get("limit") != "1" || q.Get("countrycodes") != "tn" || q.Get("addressdetails") != "1" {
		http.Error(w, "unexpected parameters", http.StatusBadRequest)
		return
	}
	if r.Header.Get("User-Agent") == "" {
		http.Error(w, "missing user agent", http.StatusForbidden)
		return
	}
	ans, ok := f.answers[q.Get("q")]
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		fmt.Fprint(w, `[]`)
		return
	}
	fmt.Fprintf(w, `[{"lat":%q,"lon":%q,"display_name":"x"}]`, ans[0], ans[1])
}

func newTestResolver(t *testing.T, f *fakeNominatim, interval time.Duration) *Resolver {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewResolver(Config{Endpoint: srv.URL, MinInterval: interval}, srv.Client())
}

func TestResolve_CachesHits(t *testing.T) {
	f := &fakeNominatim{answers: map[string][2]string{
		"La Soukra, Ariana, Tunisia": {"36.8747", "10.2411"},
	}}
	r := newTestResolver(t, f, 200*time.Millisecond)
	ctx := context.Background()

	first, err := r.Resolve(ctx, Location{City: "Soukra", Region: "Ariana"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first.Latitude != 36.8747 || first.Longitude != 10.2411 {
		t.Errorf("Resolve() = %+v", first)
	}

	start := time.Now()
	second, err := r.Resolve(ctx, Location{City: "  SOUKRA ", Region: "ariana"})
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("cache hit took %v, want no rate-limit wait", elapsed)
	}
	if second != first {
		t.Errorf("cache hit = %+v, want %+v", second, first)
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("endpoint called %d times, want 1", got)
	}

	stats := r.Stats()
	if stats.CachedLocations != 1 || !reflect.DeepEqual(stats.Locations, []string{"soukra_ariana"}) {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestResolve_RateFloor(t *testing.T) {
	interval := 300 * time.Millisecond
	f := &fakeNominatim{answers: map[string][2]string{
		"Tunis, Tunisia":  {"36.8", "10.18"},
		"Sousse, Tunisia": {"35.82", "10.63"},
	}}
	r := newTestResolver(t, f, interval)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, Location{City: "tunis"}); err != nil {
		t.Fatalf("Resolve(tunis) error = %v", err)
	}
	start := time.Now()
	if _, err := r.Resolve(ctx, Location{City: "sousse"}); err != nil {
		t.Fatalf("Resolve(sousse) error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < interval-50*time.Millisecond {
		t.Errorf("second call took %v, want at least ~%v", elapsed, interval)
	}
}

func TestResolve_SharedFloorAcrossGoroutines(t *testing.T) {
	interval := 150 * time.Millisecond
	f := &fakeNominatim{answers: map[string][2]string{}}
	for i := 0; i < 4; i++ {
		f.answers[fmt.Sprintf("City%d, Tunisia", i)] = [2]string{"36", "10"}
	}
	r := newTestResolver(t, f, interval)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.Resolve(context.Background(), Location{City: fmt.Sprintf("city%d", i)}); err != nil {
				t.Errorf("Resolve(city%d) error = %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	// four calls through one floor need at least three intervals
	if elapsed := time.Since(start); elapsed < 3*interval-50*time.Millisecond {
		t.Errorf("4 concurrent calls took %v, want at least ~%v", elapsed, 3*interval)
	}
}

func TestResolve_FailuresAreNotCached(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeNominatim
		loc     Location
		notFind bool
	}{
		{"empty result", &fakeNominatim{answers: map[string][2]string{}}, Location{City: "Nowhere"}, true},
		{"server error", &fakeNominatim{status: http.StatusServiceUnavailable}, Location{City: "Tunis"}, false},
		{"bad latitude", &fakeNominatim{answers: map[string][2]string{"Tunis, Tunisia": {"north", "10"}}}, Location{City: "Tunis"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t, tt.fake, 10*time.Millisecond)
			_, err := r.Resolve(context.Background(), tt.loc)
			if err == nil {
				t.Fatal("Resolve() error = nil, want failure")
			}
			if errors.Is(err, ErrNotFound) != tt.notFind {
				t.Errorf("errors.Is(err, ErrNotFound) = %v, want %v (err: %v)", !tt.notFind, tt.notFind, err)
			}
			if stats := r.Stats(); stats.CachedLocations != 0 {
				t.Errorf("failed lookup was cached: %+v", stats)
			}
			_, _ = r.Resolve(context.Background(), tt.loc)
			if got := tt.fake.calls.Load(); got != 2 {
				t.Errorf("endpoint called %d times, want 2 (no negative caching)", got)
			}
		})
	}
}

func TestResolve_MissingCity(t *testing.T) {
	f := &fakeNominatim{}
	r := newTestResolver(t, f, 10*time.Millisecond)
	if _, err := r.Resolve(context.Background(), Location{Region: "Ariana"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve() error = %v, want ErrNotFound", err)
	}
	if got := f.calls.Load(); got != 0 {
		t.Errorf("endpoint called %d times, want 0", got)
	}
}

func TestResolve_CancelledWhileWaiting(t *testing.T) {
	f := &fakeNominatim{answers: map[string][2]string{
		"Tunis, Tunisia":  {"36.8", "10.18"},
		"Sousse, Tunisia": {"35.82", "10.63"},
	}}
	r := newTestResolver(t, f, time.Hour)

	if _, err := r.Resolve(context.Background(), Location{City: "Tunis"}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := r.Resolve(ctx, Location{City: "Sousse"}); err == nil {
		t.Error("Resolve() error = nil, want cancellation")
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("endpoint called %d times, want 1", got)
	}
}

func TestResolveBatch(t *testing.T) {
	f := &fakeNominatim{answers: map[string][2]string{
		"Tunis, Tunisia":            {"36.8", "10.18"},
		"Bizerte, Bizerte, Tunisia": {"37.27", "9.87"},
	}}
	r := newTestResolver(t, f, 10*time.Millisecond)

	got := r.ResolveBatch(context.Background(), []Location{
		{City: "Tunis"},
		{City: ""},
		{City: "Atlantis"},
		{City: "Bizerte Nord", Region: "Bizerte"},
		{City: "tunis"},
	})

	if len(got) != 2 {
		t.Fatalf("ResolveBatch() returned %d entries, want 2: %v", len(got), got)
	}
	if c := got["tunis"]; c.Latitude != 36.8 {
		t.Errorf("tunis = %+v", c)
	}
	if c := got["bizerte nord_bizerte"]; c.Latitude != 37.27 {
		t.Errorf("bizerte nord_bizerte = %+v", c)
	}
	// the second tunis is a cache hit
	if calls := f.calls.Load(); calls != 3 {
		t.Errorf("endpoint called %d times, want 3", calls)
	}
}

func TestNormalizePlace(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"L'Aouina", "La Marsa"},
		{"  aouina ", "La Marsa"},
		{"MENZAH", "El Menzah"},
		{"bizerte nord", "Bizerte"},
		{"ben arous", "Ben Arous"},
		{"hammam sousse", "Hammam Sousse"},
		{"la goulette", "La Goulette"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizePlace(tt.input); got != tt.want {
				t.Errorf("NormalizePlace(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
