package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  max_listings: 20
  workers: 4
  listing_delay: 2s
filters:
  listing_types: [RENT]
  min_price: 300
  max_price: 2500
geocoding:
  enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Pipeline.MaxListings != 20 || cfg.Pipeline.Workers != 4 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.ListingDelay != 2*time.Second {
		t.Errorf("ListingDelay = %v, want 2s", cfg.Pipeline.ListingDelay)
	}
	if len(cfg.Filters.ListingTypes) != 1 || cfg.Filters.ListingTypes[0] != "RENT" {
		t.Errorf("ListingTypes = %v", cfg.Filters.ListingTypes)
	}
	if cfg.Geocoding.Enabled {
		t.Error("geocoding should be disabled")
	}
	// untouched sections keep their defaults
	if cfg.Geocoding.CountryCode != "tn" {
		t.Errorf("CountryCode = %q, want default tn", cfg.Geocoding.CountryCode)
	}
	if cfg.Source.Encoding != "windows-1252" {
		t.Errorf("Encoding = %q, want default", cfg.Source.Encoding)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig() on a missing file should fail")
	}
	if _, err := LoadConfig(writeConfig(t, "pipeline: [unbalanced")); err == nil {
		t.Error("LoadConfig() on invalid YAML should fail")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/homes")
	t.Setenv("STORAGE_BUCKET", "listing-images")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("MAX_LISTINGS", "7")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.URL != "postgres://u:p@db:5432/homes" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Images.Bucket != "listing-images" {
		t.Errorf("Images.Bucket = %q", cfg.Images.Bucket)
	}
	if cfg.Telegram.BotToken != "123:abc" || cfg.Telegram.ChatID != -1001 {
		t.Errorf("Telegram = %+v", cfg.Telegram)
	}
	if cfg.Pipeline.MaxListings != 7 {
		t.Errorf("MaxListings = %d, want 7", cfg.Pipeline.MaxListings)
	}
	if cfg.Embeddings.APIKey != "gemini-key" {
		t.Errorf("APIKey = %q, want the gemini key", cfg.Embeddings.APIKey)
	}

	cfg.SetEmbeddingProvider("openai")
	if cfg.Embeddings.APIKey != "openai-key" {
		t.Errorf("APIKey after switch = %q, want the openai key", cfg.Embeddings.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no base url", func(c *Config) { c.Source.BaseURL = "" }, true},
		{"negative max listings", func(c *Config) { c.Pipeline.MaxListings = -1 }, true},
		{"inverted price range", func(c *Config) { c.Filters.MinPrice, c.Filters.MaxPrice = 500, 100 }, true},
		{"open max price", func(c *Config) { c.Filters.MinPrice, c.Filters.MaxPrice = 500, 0 }, false},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "cohere" }, true},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && cfg.Pipeline.Workers < 1 {
				t.Errorf("Workers = %d, want at least 1", cfg.Pipeline.Workers)
			}
		})
	}
}
