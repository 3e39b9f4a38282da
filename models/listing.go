package models

import "time"

// RawListing is what the extractor pulls out of one detail page.
// Nil pointers mean the field was not found on the page.
type RawListing struct {
	SourceURL    string
	Title        string
	Description  *string
	PriceText    *string // digits only
	SurfaceText  *string // digits only
	Phone        *string
	Email        *string
	LocationPath *string
	Region       *string
	City         *string
	Images       []string
}

// CanonicalListing is a normalized property record ready for storage
type CanonicalListing struct {
	ID                string
	SourceURL         string
	Source            string
	ListingType       ListingType
	Status            Status
	Title             string
	Price             float64
	Currency          string
	Description       *string
	ContactPhone      *string
	ContactEmail      *string
	City              *string
	Region            *string
	PropertyType      PropertyType
	SurfaceArea       *float64
	Rooms             *int
	Bathrooms         *int
	PricePerArea      *float64
	IsPriceNegotiable bool
	Features          []Feature
	Coordinates       *Coordinates
	Embedding         []float64
	ScrapedAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Coordinates is a latitude/longitude pair
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences s, returning "" for nil
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
