package filter

import (
	"strings"

	"listing-factory/config"
	"listing-factory/models"
)

// Filter applies filter criteria to listings
type Filter struct {
	cfg *config.FilterConfig
}

// NewFilter creates a new Filter instance. A nil config accepts everything.
func NewFilter(cfg *config.FilterConfig) *Filter {
	if cfg == nil {
		cfg = &config.FilterConfig{}
	}
	return &Filter{
		cfg: cfg,
	}
}

// Match checks a listing against every criterion and names the first one
// it fails
func (f *Filter) Match(listing *models.CanonicalListing) (bool, string) {
	if len(f.cfg.ListingTypes) > 0 && !containsFold(f.cfg.ListingTypes, string(listing.ListingType)) {
		return false, "listing type " + string(listing.ListingType) + " not wanted"
	}

	// Unknown property types only pass when no type is requested
	if len(f.cfg.PropertyTypes) > 0 && !containsFold(f.cfg.PropertyTypes, string(listing.PropertyType)) {
		return false, "property type not wanted"
	}

	if listing.Price < f.cfg.MinPrice {
		return false, "price below minimum"
	}
	if f.cfg.MaxPrice > 0 && listing.Price > f.cfg.MaxPrice {
		return false, "price above maximum"
	}

	if f.cfg.RequireCity && listing.City == nil {
		return false, "no city"
	}

	return true, ""
}

func containsFold(values []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
