package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"listing-factory/config"
	"listing-factory/db"
	"listing-factory/embeddings"
	"listing-factory/fetcher"
	"listing-factory/filter"
	"listing-factory/geocode"
	"listing-factory/images"
	"listing-factory/models"
	"listing-factory/normalizer"
	"listing-factory/notify"
	"listing-factory/objectstore"
	"listing-factory/parser"
	"listing-factory/pipeline"
	"listing-factory/scheduler"
	"listing-factory/sheets"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	maxListings := flag.Int("max-listings", -1, "Maximum number of listings to process (overrides config, 0 = no cap)")
	workers := flag.Int("workers", 0, "Number of listings processed concurrently (overrides config)")
	downloadImages := flag.Bool("download-images", false, "Keep a local copy of every listing photo")
	uploadImages := flag.Bool("upload-images", false, "Upload listing photos to object storage")
	generateEmbeddings := flag.Bool("generate-embeddings", false, "Store a description embedding with each listing")
	embeddingProvider := flag.String("embedding-provider", "", "Embedding provider: gemini or openai")
	skipGeocoding := flag.Bool("skip-geocoding", false, "Do not look up coordinates")
	useBrowser := flag.Bool("browser", false, "Fetch pages with a headless browser instead of plain HTTP")
	dryRun := flag.Bool("dry-run", false, "Keep listings in memory instead of writing to PostgreSQL")
	interval := flag.Duration("interval", 0, "Re-run every interval until interrupted (e.g. 6h)")
	spreadsheet := flag.String("spreadsheet", "", "Google Sheets URL or ID to export each run to")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v\n", err)
	}

	if *maxListings >= 0 {
		cfg.Pipeline.MaxListings = *maxListings
	}
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *downloadImages {
		cfg.Images.Download = true
	}
	if *uploadImages {
		cfg.Images.Upload = true
	}
	if *generateEmbeddings {
		cfg.Embeddings.Enabled = true
	}
	if *embeddingProvider != "" {
		cfg.SetEmbeddingProvider(*embeddingProvider)
	}
	if *skipGeocoding {
		cfg.Geocoding.Enabled = false
	}
	if *interval > 0 {
		cfg.Pipeline.Interval = *interval
	}
	if *spreadsheet != "" {
		cfg.Sheets.Enabled = true
		cfg.Sheets.SpreadsheetID = *spreadsheet
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup := newApp(ctx, cfg, *useBrowser, *dryRun)
	defer cleanup()

	if cfg.Pipeline.Interval > 0 {
		log.Printf("Running every %s, press Ctrl+C to stop\n", cfg.Pipeline.Interval)
		s := scheduler.NewScheduler(ctx, cfg.Pipeline.Interval, a.runOnce)
		s.Start()
		<-ctx.Done()
		s.Stop()
		return
	}

	if err := a.runOnce(ctx); err != nil {
		log.Printf("Error: %v\n", err)
		cleanup()
		os.Exit(1)
	}
}

// app holds everything one run needs
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	store    *db.ListingStore
	resolver *geocode.Resolver
	writer   *sheets.Writer
	notifier *notify.Notifier
}

// newApp wires the collaborators from cfg. An unreachable database is
// fatal; every optional collaborator that fails to start is logged and
// left out.
func newApp(ctx context.Context, cfg *config.Config, useBrowser, dryRun bool) (*app, func()) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Printf("Warning: cleanup failed: %v\n", err)
			}
		}
		closers = nil
	}

	// Persistence
	var persistent db.PersistentStore
	if dryRun {
		log.Println("Dry run: listings are kept in memory")
		persistent = db.NewMemoryStore()
	} else {
		connStr := cfg.Database.URL
		if connStr == "" {
			connStr = db.ConnString()
		}
		pg, err := db.NewPostgresStore(ctx, connStr, cfg.Database.InitSchema)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v\n", err)
		}
		closers = append(closers, pg.Close)
		persistent = pg
	}

	var storeOpts []db.Option
	if cfg.Images.Upload {
		if objects := newObjectStore(ctx, cfg.Images); objects != nil {
			storeOpts = append(storeOpts, db.WithMaterializer(images.NewMaterializer(objects, nil, cfg.Images.Prefix)))
		}
	}
	store := db.NewListingStore(persistent, storeOpts...)

	// Fetching
	fetchOpts := fetcher.Options{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Source.RequestTimeout,
		Delay:     cfg.Source.Delay,
		Encoding:  cfg.Source.Encoding,
	}
	var f fetcher.Fetcher
	if useBrowser {
		log.Println("Initializing browser...")
		rf, err := fetcher.NewRodFetcher(fetchOpts)
		if err != nil {
			log.Fatalf("Failed to start browser: %v\n", err)
		}
		closers = append(closers, rf.Close)
		f = rf
	} else {
		cf, err := fetcher.NewCollyFetcher(fetchOpts)
		if err != nil {
			log.Fatalf("Failed to create fetcher: %v\n", err)
		}
		f = cf
	}

	deps := pipeline.Deps{
		Fetcher:    f,
		Parser:     parser.NewListingParser(cfg.Source.BaseURL),
		Normalizer: normalizer.New(cfg.Source.Name, cfg.Pipeline.Currency),
		Filter:     filter.NewFilter(&cfg.Filters),
		Store:      store,
	}

	a := &app{cfg: cfg, store: store}

	if cfg.Geocoding.Enabled {
		a.resolver = geocode.NewResolver(geocode.Config{
			Endpoint:    cfg.Geocoding.Endpoint,
			UserAgent:   cfg.Geocoding.UserAgent,
			Country:     cfg.Geocoding.Country,
			CountryCode: cfg.Geocoding.CountryCode,
			MinInterval: cfg.Geocoding.MinInterval,
			Timeout:     cfg.Geocoding.Timeout,
		}, nil)
		deps.Geocoder = a.resolver
	} else {
		log.Println("Geocoding disabled")
	}

	if cfg.Embeddings.Enabled {
		provider, err := embeddings.NewProvider(ctx, embeddings.Config{
			Provider: cfg.Embeddings.Provider,
			APIKey:   cfg.Embeddings.APIKey,
			Model:    cfg.Embeddings.Model,
		})
		if err != nil {
			log.Printf("Warning: embeddings disabled: %v\n", err)
		} else {
			deps.Embedder = provider
		}
	}

	if cfg.Images.Download {
		deps.Downloader = images.NewDownloader(cfg.Images.DownloadDir, nil, cfg.Images.Delay)
	}

	if cfg.Sheets.Enabled {
		writer, err := sheets.NewWriter(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.CredentialsFile)
		if err != nil {
			log.Printf("Warning: Failed to initialize Google Sheets writer: %v\n", err)
		} else {
			a.writer = writer
		}
	}

	if cfg.Telegram.Enabled || cfg.Telegram.BotToken != "" {
		notifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Printf("Warning: Telegram notifications disabled: %v\n", err)
		} else {
			a.notifier = notifier
		}
	}

	a.pipeline = pipeline.New(deps, pipeline.Options{
		SearchURL:    cfg.Source.SearchURL,
		BaseURL:      cfg.Source.BaseURL,
		MaxListings:  cfg.Pipeline.MaxListings,
		Workers:      cfg.Pipeline.Workers,
		ListingDelay: cfg.Pipeline.ListingDelay,
	})

	return a, cleanup
}

// newObjectStore picks the local directory when one is configured, the
// bucket otherwise. Nil means uploads stay off.
func newObjectStore(ctx context.Context, cfg config.ImagesConfig) objectstore.ObjectStore {
	if cfg.LocalDir != "" {
		log.Printf("Uploading images to %s\n", cfg.LocalDir)
		return objectstore.NewLocalStore(cfg.LocalDir, "")
	}
	if cfg.Bucket == "" {
		log.Println("Warning: image upload requested but STORAGE_BUCKET is not set, uploads disabled")
		return nil
	}
	gcs, err := objectstore.NewGCSStore(ctx, cfg.Bucket)
	if err != nil {
		log.Printf("Warning: image uploads disabled: %v\n", err)
		return nil
	}
	log.Printf("Uploading images to bucket %s\n", cfg.Bucket)
	return gcs
}

// runOnce discovers, processes and reports one batch of listings
func (a *app) runOnce(ctx context.Context) error {
	urls, err := a.pipeline.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	if len(urls) == 0 {
		log.Println("No listings found on the search page")
		return nil
	}

	summary := a.pipeline.Run(ctx, urls)
	log.Printf("Run finished: %s\n", summary)

	listings := summary.Listings()
	fmt.Println("---")
	formatListingsConsole(listings)

	sheetURL := ""
	if a.writer != nil && len(listings) > 0 {
		sheetName := fmt.Sprintf("%s_%s", a.cfg.Sheets.SheetName, time.Now().Format("20060102_150405"))
		_, sheetID, err := a.writer.CreateSheetAndWriteListings(ctx, sheetName, listings, summary.String())
		if err != nil {
			log.Printf("Warning: Failed to write to Google Sheets: %v\n", err)
		} else {
			sheetURL = a.writer.SheetURL(sheetID)
			fmt.Printf("\nSuccessfully wrote %d listings to Google Sheets: %s\n", len(listings), sheetURL)
		}
	}

	if a.notifier != nil {
		if err := a.notifier.NotifyRun(summary, sheetURL); err != nil {
			log.Printf("Warning: %v\n", err)
		}
	}

	if total, err := a.store.Count(ctx); err != nil {
		log.Printf("Warning: could not count stored properties: %v\n", err)
	} else {
		fmt.Printf("\nTotal properties in database: %d\n", total)
	}

	if a.resolver != nil {
		stats := a.resolver.Stats()
		fmt.Printf("Geocode cache: %d locations\n", stats.CachedLocations)
	}

	return nil
}

// formatListingsConsole prints the stored listings of a run
func formatListingsConsole(listings []*models.CanonicalListing) {
	if len(listings) == 0 {
		fmt.Println("No listings stored in this run.")
		return
	}

	for i, l := range listings {
		fmt.Printf("\n%d. %s\n", i+1, l.Title)
		fmt.Printf("   Link: %s\n", l.SourceURL)
		fmt.Printf("   Type: %s", l.ListingType)
		if l.PropertyType.Known() {
			fmt.Printf(" / %s", l.PropertyType)
		}
		fmt.Println()

		if l.Price > 0 {
			fmt.Printf("   Price: %.0f %s", l.Price, l.Currency)
			if l.IsPriceNegotiable {
				fmt.Print(" (negotiable)")
			}
			fmt.Println()
		} else {
			fmt.Printf("   Price: Not available\n")
		}

		if l.City != nil || l.Region != nil {
			fmt.Printf("   Location: %s, %s\n", models.StringValue(l.City), models.StringValue(l.Region))
		}
		if l.Coordinates != nil {
			fmt.Printf("   Coordinates: %.5f, %.5f\n", l.Coordinates.Latitude, l.Coordinates.Longitude)
		}
		if l.SurfaceArea != nil {
			fmt.Printf("   Surface: %.0f m²\n", *l.SurfaceArea)
		}
		if len(l.Features) > 0 {
			fmt.Printf("   Features: %v\n", l.Features)
		}
	}
}
