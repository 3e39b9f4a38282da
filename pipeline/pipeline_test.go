package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"listing-factory/config"
	"listing-factory/db"
	"listing-factory/filter"
	"listing-factory/geocode"
	"listing-factory/models"
	"listing-factory/normalizer"
	"listing-factory/parser"
)

const baseURL = "http://www.tunisie-annonce.com"

var fixedTime = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func detailURL(n int) string {
	return fmt.Sprintf("%s/Details_Annonces_Immobilier.asp?cod_ann=%d", baseURL, n)
}

func page(title, price, location string) string {
	return `<html><body><table>
<tr class="da_entete"><td>` + title + `</td></tr>
<tr><td class="da_label_field">Localisation</td><td class="da_field_text">` + location + `</td></tr>
<tr><td class="da_label_field">Prix</td><td class="da_field_text">` + price + `</td></tr>
<tr><td class="da_label_field">Texte</td><td class="da_field_text">Bel appartement avec parking et ascenseur</td></tr>
</table>
<img id="PhotoMax_0" src="upload/a.jpg">
</body></html>`
}

// fakeFetcher serves canned pages; URLs without a page fail
type fakeFetcher struct {
	pages   map[string]string
	calls   atomic.Int32
	onFetch func(url string)
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.calls.Add(1)
	if f.onFetch != nil {
		f.onFetch(url)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	html, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("status 404 for %s", url)
	}
	return html, nil
}

type fakeGeocoder struct {
	mu    sync.Mutex
	known map[string]models.Coordinates
	keys  []string
}

func (g *fakeGeocoder) Resolve(ctx context.Context, loc geocode.Location) (models.Coordinates, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys = append(g.keys, loc.CacheKey())
	if c, ok := g.known[loc.CacheKey()]; ok {
		return c, nil
	}
	return models.Coordinates{}, geocode.ErrNotFound
}

type fakeEmbedder struct{ err error }

func (e fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float64{0.25, 0.5}, nil
}

func newTestPipeline(f *fakeFetcher, mem *db.MemoryStore, mutate func(*Deps, *Options)) *Pipeline {
	deps := Deps{
		Fetcher:    f,
		Parser:     parser.NewListingParser(baseURL),
		Normalizer: normalizer.New("", ""),
		Store:      db.NewListingStore(mem),
	}
	opts := Options{SearchURL: baseURL + "/AnnoncesImmobilier.asp", BaseURL: baseURL}
	if mutate != nil {
		mutate(&deps, &opts)
	}
	return New(deps, opts)
}

func TestDiscover(t *testing.T) {
	search := `<html><body>
<a href="Details_Annonces_Immobilier.asp?cod_ann=1">one</a>
<a href="/Details_Annonces_Immobilier.asp?cod_ann=2">two</a>
<a href="Details_Annonces_Immobilier.asp?cod_ann=1">one again</a>
<a href="Details_Annonces_Immobilier.asp?cod_ann=3">three</a>
<a href="Contact.asp">contact</a>
</body></html>`
	f := &fakeFetcher{pages: map[string]string{baseURL + "/AnnoncesImmobilier.asp": search}}

	tests := []struct {
		name        string
		maxListings int
		want        int
	}{
		{"no cap", 0, 3},
		{"capped", 2, 2},
		{"cap above count", 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(f, db.NewMemoryStore(), func(_ *Deps, o *Options) { o.MaxListings = tt.maxListings })
			urls, err := p.Discover(context.Background())
			if err != nil {
				t.Fatalf("Discover() error = %v", err)
			}
			if len(urls) != tt.want {
				t.Fatalf("Discover() = %v, want %d urls", urls, tt.want)
			}
			if urls[0] != detailURL(1) {
				t.Errorf("first url = %q, want %q", urls[0], detailURL(1))
			}
		})
	}

	empty := newTestPipeline(&fakeFetcher{}, db.NewMemoryStore(), nil)
	if _, err := empty.Discover(context.Background()); err == nil {
		t.Error("Discover() should fail when the search page cannot be fetched")
	}
}

func TestProcess_Statuses(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		detailURL(1): page("Appartement S+2 à louer", "900 DT", "Tunisie &gt; Tunis &gt; La Marsa"),
		detailURL(2): `<html><body><p></p></body></html>`,
		detailURL(3): page("Villa à vendre", "750 000 DT", "Tunisie &gt; Nabeul &gt; Hammamet"),
		detailURL(4): "   ",
	}}
	mem := db.NewMemoryStore()
	p := newTestPipeline(f, mem, func(d *Deps, _ *Options) {
		d.Filter = filter.NewFilter(&config.FilterConfig{ListingTypes: []string{"RENT"}})
	})

	tests := []struct {
		url        string
		want       Status
		wantReason string
	}{
		{detailURL(1), StatusPersisted, ""},
		{detailURL(2), StatusInvalid, "title"},
		{detailURL(3), StatusFiltered, "listing type SALE not wanted"},
		{detailURL(4), StatusFailed, "parse failed"},
		{detailURL(5), StatusFailed, "fetch failed"},
	}
	for _, tt := range tests {
		t.Run(string(tt.want)+" "+tt.url, func(t *testing.T) {
			got := p.Process(context.Background(), tt.url)
			if got.Status != tt.want {
				t.Fatalf("Status = %s (%v), want %s", got.Status, got.Err, tt.want)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if got.SourceURL != tt.url {
				t.Errorf("SourceURL = %q, want %q", got.SourceURL, tt.url)
			}
		})
	}

	if rows := mem.Rows(db.TableProperties); len(rows) != 1 {
		t.Errorf("stored %d properties, want 1", len(rows))
	}
}

func TestProcess_EnrichesBeforeSaving(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		detailURL(1): page("Appartement S+3 à louer", "1 200 DT", "Tunisie &gt; Ariana &gt; La Soukra"),
		detailURL(2): page("Studio à louer", "500 DT", "Tunisie &gt; Kebili &gt; Douz"),
	}}
	geo := &fakeGeocoder{known: map[string]models.Coordinates{
		"la soukra_ariana": {Latitude: 36.87, Longitude: 10.25},
	}}
	mem := db.NewMemoryStore()
	p := newTestPipeline(f, mem, func(d *Deps, _ *Options) {
		d.Geocoder = geo
		d.Embedder = fakeEmbedder{}
	})

	first := p.Process(context.Background(), detailURL(1))
	if first.Status != StatusPersisted {
		t.Fatalf("Status = %s (%v)", first.Status, first.Err)
	}
	if c := first.Listing.Coordinates; c == nil || c.Latitude != 36.87 {
		t.Errorf("Coordinates = %+v, want La Soukra", c)
	}
	if len(first.Listing.Embedding) != 2 {
		t.Errorf("Embedding = %v, want the provider vector", first.Listing.Embedding)
	}

	// an unresolvable city is stored without coordinates
	second := p.Process(context.Background(), detailURL(2))
	if second.Status != StatusPersisted {
		t.Fatalf("Status = %s (%v)", second.Status, second.Err)
	}
	if second.Listing.Coordinates != nil {
		t.Errorf("Coordinates = %+v, want none", second.Listing.Coordinates)
	}

	for _, row := range mem.Rows(db.TableProperties) {
		if row["sourceUrl"] == detailURL(1) {
			if row["latitude"] != 36.87 || row["descriptionEmbedding"] != "[0.25,0.5]" {
				t.Errorf("stored row = %v", row)
			}
		}
		if row["sourceUrl"] == detailURL(2) {
			if _, ok := row["latitude"]; ok {
				t.Errorf("unresolved listing stored latitude %v", row["latitude"])
			}
		}
	}
}

func TestProcess_EmbeddingFailureStillSaves(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		detailURL(1): page("Duplex à vendre", "300 000 DT", "Tunisie &gt; Sousse &gt; Sahloul"),
	}}
	p := newTestPipeline(f, db.NewMemoryStore(), func(d *Deps, _ *Options) {
		d.Embedder = fakeEmbedder{err: errors.New("quota exceeded")}
	})
	got := p.Process(context.Background(), detailURL(1))
	if got.Status != StatusPersisted {
		t.Fatalf("Status = %s (%v), want persisted", got.Status, got.Err)
	}
	if got.Listing.Embedding != nil {
		t.Errorf("Embedding = %v, want none", got.Listing.Embedding)
	}
}

func TestProcess_PartialWrite(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		detailURL(1): page("Maison à louer", "700 DT", "Tunisie &gt; Sfax &gt; Sfax Ville"),
	}}
	mem := db.NewMemoryStore()
	mem.FailOn["insert:"+db.TableImages] = errors.New("disk full")
	p := newTestPipeline(f, mem, nil)

	got := p.Process(context.Background(), detailURL(1))
	if got.Status != StatusPartial {
		t.Fatalf("Status = %s, want partial", got.Status)
	}
	var pw *db.PartialWriteError
	if !errors.As(got.Err, &pw) {
		t.Fatalf("Err = %v, want a *db.PartialWriteError", got.Err)
	}
	if got.ListingID == "" || pw.ListingID != got.ListingID {
		t.Errorf("ListingID = %q, error names %q", got.ListingID, pw.ListingID)
	}
	if !got.Stored() {
		t.Error("a partial write keeps the listing stored")
	}
}

func TestRun_OrderAndIdempotence(t *testing.T) {
	pages := map[string]string{}
	var urls []string
	for i := 1; i <= 6; i++ {
		pages[detailURL(i)] = page(fmt.Sprintf("Appartement S+%d à louer", i), fmt.Sprintf("%d00 DT", i+4), "Tunisie &gt; Tunis &gt; Le Bardo")
		urls = append(urls, detailURL(i))
	}
	urls = append(urls, detailURL(99))

	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			mem := db.NewMemoryStore()
			p := newTestPipeline(&fakeFetcher{pages: pages}, mem, func(_ *Deps, o *Options) { o.Workers = workers })

			summary := p.Run(context.Background(), urls)
			if summary.Total() != len(urls) {
				t.Fatalf("Total() = %d, want %d", summary.Total(), len(urls))
			}
			for i, r := range summary.Results {
				if r.SourceURL != urls[i] {
					t.Errorf("result %d is %s, want %s", i, r.SourceURL, urls[i])
				}
			}
			if summary.Persisted != 6 || summary.Created != 6 || summary.Failed != 1 {
				t.Errorf("summary = %s", summary)
			}
			if len(summary.Listings()) != 6 {
				t.Errorf("Listings() = %d, want 6", len(summary.Listings()))
			}

			again := p.Run(context.Background(), urls)
			if again.Persisted != 6 || again.Created != 0 {
				t.Errorf("second run = %s, want 6 persisted and none new", again)
			}
			if rows := mem.Rows(db.TableProperties); len(rows) != 6 {
				t.Errorf("stored %d properties, want 6", len(rows))
			}
		})
	}
}

func TestRun_Cancellation(t *testing.T) {
	pages := map[string]string{}
	var urls []string
	for i := 1; i <= 5; i++ {
		pages[detailURL(i)] = page("Studio à louer", "400 DT", "Tunisie &gt; Monastir &gt; Skanes")
		urls = append(urls, detailURL(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &fakeFetcher{pages: pages}
	f.onFetch = func(url string) {
		if url == detailURL(2) {
			cancel()
		}
	}
	mem := db.NewMemoryStore()
	p := newTestPipeline(f, mem, nil)

	summary := p.Run(ctx, urls)

	if summary.Results[0].Status != StatusPersisted {
		t.Errorf("first listing = %s, want persisted", summary.Results[0].Status)
	}
	for _, r := range summary.Results[1:] {
		if r.Status != StatusCancelled {
			t.Errorf("%s = %s, want cancelled", r.SourceURL, r.Status)
		}
	}
	if summary.Cancelled != 4 {
		t.Errorf("Cancelled = %d, want 4", summary.Cancelled)
	}
	if rows := mem.Rows(db.TableProperties); len(rows) != 1 {
		t.Errorf("stored %d properties, want the one finished before cancel", len(rows))
	}
	if got := f.calls.Load(); got > 3 {
		t.Errorf("fetched %d pages after cancel, want scheduling to stop", got)
	}
}

func TestSummary_String(t *testing.T) {
	s := newSummary([]Result{
		{Status: StatusPersisted, Created: true},
		{Status: StatusPartial},
		{Status: StatusInvalid},
		{Status: StatusCancelled},
	}, fixedTime, fixedTime)
	out := s.String()
	for _, want := range []string{"4 listings", "1 persisted (1 new)", "1 partial", "1 invalid", "1 cancelled"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() = %q, missing %q", out, want)
		}
	}
}
