package filter

import (
	"testing"

	"listing-factory/config"
	"listing-factory/models"
)

func listing(lt models.ListingType, pt models.PropertyType, price float64, city string) *models.CanonicalListing {
	return &models.CanonicalListing{
		SourceURL:    "http://example.test/" + city,
		ListingType:  lt,
		PropertyType: pt,
		Price:        price,
		City:         models.StringPtr(city),
	}
}

func TestFilter_Match(t *testing.T) {
	cfg := &config.FilterConfig{
		ListingTypes:  []string{"rent"},
		PropertyTypes: []string{"APARTMENT", "STUDIO"},
		MinPrice:      300,
		MaxPrice:      2000,
		RequireCity:   true,
	}
	f := NewFilter(cfg)

	tests := []struct {
		name    string
		listing *models.CanonicalListing
		want    bool
	}{
		{"matches", listing(models.ListingRent, models.PropertyApartment, 900, "Tunis"), true},
		{"sale rejected", listing(models.ListingSale, models.PropertyApartment, 900, "Tunis"), false},
		{"villa rejected", listing(models.ListingRent, models.PropertyVilla, 900, "Tunis"), false},
		{"unknown type rejected", listing(models.ListingRent, models.PropertyUnknown, 900, "Tunis"), false},
		{"too cheap", listing(models.ListingRent, models.PropertyStudio, 100, "Tunis"), false},
		{"too expensive", listing(models.ListingRent, models.PropertyStudio, 2500, "Tunis"), false},
		{"bounds inclusive", listing(models.ListingRent, models.PropertyStudio, 2000, "Tunis"), true},
		{"no city", listing(models.ListingRent, models.PropertyStudio, 900, ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := f.Match(tt.listing)
			if got != tt.want {
				t.Errorf("Match() = %v (%s), want %v", got, reason, tt.want)
			}
			if !got && reason == "" {
				t.Error("rejection should carry a reason")
			}
		})
	}
}

func TestFilter_Permissive(t *testing.T) {
	f := NewFilter(nil)
	l := listing(models.ListingSale, models.PropertyUnknown, 0, "")
	if ok, reason := f.Match(l); !ok {
		t.Errorf("empty filter rejected listing: %s", reason)
	}
}
