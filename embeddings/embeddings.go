package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"listing-factory/models"
)

// Dimensions is the vector length stored in descriptionEmbedding
const Dimensions = 768

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var (
	ErrMissingAPIKey = errors.New("embedding API key not set")
	ErrEmptyText     = errors.New("nothing to embed")
)

// Provider turns text into an embedding vector
type Provider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Config selects and configures a provider
type Config struct {
	Provider string
	APIKey   string
	Model    string
	// BaseURL overrides the provider endpoint
	BaseURL string
}

// NewProvider builds the provider named in cfg
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for provider %q", ErrMissingAPIKey, cfg.Provider)
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini, "":
		return NewGeminiProvider(ctx, cfg, nil)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// ListingText composes the text embedded for a listing: title, description,
// then city, region and property type as labelled context
func ListingText(l *models.CanonicalListing) string {
	var parts []string
	if l.Title != "" {
		parts = append(parts, l.Title)
	}
	if l.Description != nil && *l.Description != "" {
		parts = append(parts, *l.Description)
	}
	if l.City != nil {
		parts = append(parts, "Ville: "+*l.City)
	}
	if l.Region != nil {
		parts = append(parts, "Région: "+*l.Region)
	}
	if l.PropertyType.Known() {
		parts = append(parts, "Type: "+string(l.PropertyType))
	}
	return strings.Join(parts, " ")
}

// EmbedListing embeds the composed text of l
func EmbedListing(ctx context.Context, p Provider, l *models.CanonicalListing) ([]float64, error) {
	text := ListingText(l)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return p.Embed(ctx, text)
}
