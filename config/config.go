package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Geocoding  GeocodingConfig  `yaml:"geocoding"`
	Database   DatabaseConfig   `yaml:"database"`
	Images     ImagesConfig     `yaml:"images"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Filters    FilterConfig     `yaml:"filters"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Sheets     SheetsConfig     `yaml:"sheets"`
}

// SourceConfig describes the listing site
type SourceConfig struct {
	Name           string        `yaml:"name"`
	BaseURL        string        `yaml:"base_url"`
	SearchURL      string        `yaml:"search_url"`
	Encoding       string        `yaml:"encoding"`
	UserAgent      string        `yaml:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Delay          time.Duration `yaml:"delay"`
}

type PipelineConfig struct {
	MaxListings  int           `yaml:"max_listings"`
	Workers      int           `yaml:"workers"`
	ListingDelay time.Duration `yaml:"listing_delay"`
	Currency     string        `yaml:"currency"`
	// Interval re-runs the pipeline periodically when positive
	Interval time.Duration `yaml:"interval"`
}

type GeocodingConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Endpoint    string        `yaml:"endpoint"`
	UserAgent   string        `yaml:"user_agent"`
	Country     string        `yaml:"country"`
	CountryCode string        `yaml:"country_code"`
	MinInterval time.Duration `yaml:"min_interval"`
	Timeout     time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	// URL is empty to build the connection string from DB_* variables
	URL        string `yaml:"url"`
	InitSchema bool   `yaml:"init_schema"`
}

type ImagesConfig struct {
	Upload      bool          `yaml:"upload"`
	Bucket      string        `yaml:"bucket"`
	Prefix      string        `yaml:"prefix"`
	Download    bool          `yaml:"download"`
	DownloadDir string        `yaml:"download_dir"`
	Delay       time.Duration `yaml:"delay"`
	// LocalDir stores uploads on disk instead of the bucket when set
	LocalDir string `yaml:"local_dir"`
}

type EmbeddingsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"-"`
}

// FilterConfig represents the filter criteria
type FilterConfig struct {
	ListingTypes  []string `yaml:"listing_types"`
	PropertyTypes []string `yaml:"property_types"`
	MinPrice      float64  `yaml:"min_price"`
	MaxPrice      float64  `yaml:"max_price"`
	RequireCity   bool     `yaml:"require_city"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"-"`
	ChatID   int64  `yaml:"chat_id"`
}

type SheetsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
	CredentialsFile string `yaml:"credentials_file"`
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Name:           "TUNISIE_ANNONCE",
			BaseURL:        "http://www.tunisie-annonce.com",
			SearchURL:      "http://www.tunisie-annonce.com/AnnoncesImmobilier.asp",
			Encoding:       "windows-1252",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			RequestTimeout: 10 * time.Second,
			Delay:          time.Second,
		},
		Pipeline: PipelineConfig{
			MaxListings:  5,
			Workers:      1,
			ListingDelay: 500 * time.Millisecond,
			Currency:     "TND",
		},
		Geocoding: GeocodingConfig{
			Enabled:     true,
			Endpoint:    "https://nominatim.openstreetmap.org/search",
			UserAgent:   "TunisHome/1.0",
			Country:     "Tunisia",
			CountryCode: "tn",
			MinInterval: time.Second,
			Timeout:     10 * time.Second,
		},
		Database: DatabaseConfig{
			InitSchema: false,
		},
		Images: ImagesConfig{
			Prefix:      "properties",
			DownloadDir: "downloaded_images",
			Delay:       500 * time.Millisecond,
		},
		Embeddings: EmbeddingsConfig{
			Provider: "gemini",
		},
		Filters: FilterConfig{
			MinPrice: 0,
			MaxPrice: 1000000000,
		},
		Sheets: SheetsConfig{
			SheetName: "Listings",
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Load reads .env, the YAML file at path (defaults when it does not
// exist) and then the environment overrides
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("Config file %s not found, using defaults\n", path)
		cfg = GetDefaultConfig()
	} else if err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// applyEnv overrides secrets and deployment settings from the environment
func (c *Config) applyEnv() {
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Images.Bucket = getEnv("STORAGE_BUCKET", c.Images.Bucket)
	c.Sheets.CredentialsFile = getEnv("GOOGLE_SHEETS_CREDENTIALS", c.Sheets.CredentialsFile)
	c.Sheets.SpreadsheetID = getEnv("GOOGLE_SHEETS_SPREADSHEET_ID", c.Sheets.SpreadsheetID)
	c.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken)
	c.Telegram.ChatID = getEnvInt64("TELEGRAM_CHAT_ID", c.Telegram.ChatID)
	c.Pipeline.MaxListings = getEnvInt("MAX_LISTINGS", c.Pipeline.MaxListings)
	c.SetEmbeddingProvider(c.Embeddings.Provider)
}

// SetEmbeddingProvider switches the provider and picks up its API key
func (c *Config) SetEmbeddingProvider(provider string) {
	c.Embeddings.Provider = provider
	switch provider {
	case "openai":
		c.Embeddings.APIKey = os.Getenv("OPENAI_API_KEY")
	default:
		c.Embeddings.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Pipeline.MaxListings < 0 {
		return fmt.Errorf("pipeline.max_listings must not be negative, got %d", c.Pipeline.MaxListings)
	}
	if c.Pipeline.Workers < 1 {
		c.Pipeline.Workers = 1
	}
	if c.Filters.MaxPrice > 0 && c.Filters.MinPrice > c.Filters.MaxPrice {
		return fmt.Errorf("filters.min_price (%v) is above filters.max_price (%v)", c.Filters.MinPrice, c.Filters.MaxPrice)
	}
	switch c.Embeddings.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported embeddings.provider %q", c.Embeddings.Provider)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
		log.Printf("Warning: ignoring non-numeric %s=%q\n", key, val)
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.ParseInt(val, 10, 64)
		if err == nil {
			return n
		}
		log.Printf("Warning: ignoring non-numeric %s=%q\n", key, val)
	}
	return fallback
}
