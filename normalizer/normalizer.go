package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"listing-factory/geocode"
	"listing-factory/models"
)

const (
	DefaultSource   = "TUNISIE_ANNONCE"
	DefaultCurrency = "TND"
)

var (
	nonDigitRegex      = regexp.MustCompile(`[^\d]`)
	hashtagRegex       = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	whitespaceRegex    = regexp.MustCompile(`[\s\p{Z}]+`)
	repeatedPunctRegex = regexp.MustCompile(`\.{2,}|!{2,}|\?{2,}`)

	// Room patterns in priority order: S+<n> notation, "<n> chambres", "salon plus <n>"
	roomPatterns = []*regexp.Regexp{
		regexp.MustCompile(`s\+?(\d+)`),
		regexp.MustCompile(`(\d+)\s*chambres?`),
		regexp.MustCompile(`salon\s+plus\s+(\d+)`),
	}

	bathroomPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s*salles?\s+de\s+bains?`),
		regexp.MustCompile(`(\d+)\s*sdb`),
	}
)

// Overrides carries values known upstream of the text rules. Non-nil
// fields win over anything derived from the raw listing.
type Overrides struct {
	Price       *float64
	SurfaceArea *float64
	Rooms       *int
	Bathrooms   *int
	City        *string
	Region      *string
}

// Normalizer turns raw listings into canonical ones
type Normalizer struct {
	source   string
	currency string
	now      func() time.Time
}

// New creates a Normalizer tagging listings with source and currency.
// Empty values fall back to the defaults.
func New(source, currency string) *Normalizer {
	if source == "" {
		source = DefaultSource
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Normalizer{source: source, currency: currency, now: time.Now}
}

// Normalize derives a canonical listing from raw. It never fails: anything
// it cannot work out is left absent or defaulted.
func (n *Normalizer) Normalize(raw *models.RawListing, overrides *Overrides) *models.CanonicalListing {
	if overrides == nil {
		overrides = &Overrides{}
	}

	title := strings.TrimSpace(raw.Title)
	description := ""
	if raw.Description != nil {
		description = CleanDescription(*raw.Description)
	}

	listing := &models.CanonicalListing{
		SourceURL:    raw.SourceURL,
		Source:       n.source,
		Status:       models.StatusActive,
		Title:        title,
		Currency:     n.currency,
		Description:  models.StringPtr(description),
		ContactPhone: raw.Phone,
		ContactEmail: raw.Email,
		PropertyType: PropertyType(title),
		ListingType:  ListingType(raw.SourceURL, title, description),
		ScrapedAt:    n.now().UTC(),
	}

	if overrides.Price != nil {
		listing.Price = *overrides.Price
	} else if v, ok := parseDigits(raw.PriceText); ok {
		listing.Price = v
	}

	if overrides.SurfaceArea != nil {
		listing.SurfaceArea = overrides.SurfaceArea
	} else if v, ok := parseDigits(raw.SurfaceText); ok {
		listing.SurfaceArea = &v
	}

	listing.City = normalizePlace(firstNonNil(overrides.City, raw.City))
	listing.Region = normalizePlace(firstNonNil(overrides.Region, raw.Region))

	listing.Rooms = overrides.Rooms
	if listing.Rooms == nil {
		listing.Rooms = ExtractRooms(title, description)
	}
	listing.Bathrooms = overrides.Bathrooms
	if listing.Bathrooms == nil {
		listing.Bathrooms = ExtractBathrooms(description)
	}

	listing.Features = ExtractFeatures(description)
	listing.IsPriceNegotiable = IsNegotiable(description)

	if listing.SurfaceArea != nil && *listing.SurfaceArea > 0 {
		perArea := listing.Price / *listing.SurfaceArea
		listing.PricePerArea = &perArea
	}

	return listing
}

// PropertyType returns the type of the first keyword found in title, or
// PropertyUnknown.
func PropertyType(title string) models.PropertyType {
	lower := strings.ToLower(title)
	for _, pk := range propertyKeywords {
		if strings.Contains(lower, pk.keyword) {
			return pk.kind
		}
	}
	return models.PropertyUnknown
}

// ListingType scores rent against sale keywords over the url, title and
// description. Each distinct keyword present counts once, so repeating a
// word does not outweigh a different one. Ties go to SALE.
func ListingType(sourceURL, title, description string) models.ListingType {
	text := strings.ToLower(sourceURL + " " + title + " " + description)
	rent := countKeywords(text, rentKeywords)
	sale := countKeywords(text, saleKeywords)
	if rent > sale {
		return models.ListingRent
	}
	return models.ListingSale
}

// ExtractFeatures returns the feature tags mentioned in description, in
// canonical order
func ExtractFeatures(description string) []models.Feature {
	features := []models.Feature{}
	if description == "" {
		return features
	}
	lower := strings.ToLower(description)
	for _, fk := range featureTable {
		if containsAny(lower, fk.keywords) {
			features = append(features, fk.feature)
		}
	}
	return features
}

// IsNegotiable reports whether description says the price can be discussed
func IsNegotiable(description string) bool {
	return containsAny(strings.ToLower(description), negotiableKeywords)
}

// CleanDescription unwraps hashtags, collapses whitespace and repeated
// terminal punctuation, and trims.
func CleanDescription(description string) string {
	cleaned := hashtagRegex.ReplaceAllString(description, "$1")
	cleaned = whitespaceRegex.ReplaceAllString(cleaned, " ")
	cleaned = repeatedPunctRegex.ReplaceAllStringFunc(cleaned, func(run string) string {
		return run[:1]
	})
	return strings.TrimSpace(cleaned)
}

// ExtractRooms looks for a room count in title and description
func ExtractRooms(title, description string) *int {
	return firstCount(strings.ToLower(title+" "+description), roomPatterns)
}

// ExtractBathrooms looks for a bathroom count in description. A bare
// mention of a bathroom counts as one.
func ExtractBathrooms(description string) *int {
	lower := strings.ToLower(description)
	if count := firstCount(lower, bathroomPatterns); count != nil {
		return count
	}
	if strings.Contains(lower, "salle de bain") || strings.Contains(lower, "sdb") {
		one := 1
		return &one
	}
	return nil
}

func firstCount(text string, patterns []*regexp.Regexp) *int {
	for _, re := range patterns {
		match := re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if n, err := strconv.Atoi(match[1]); err == nil {
			return &n
		}
	}
	return nil
}

func parseDigits(text *string) (float64, bool) {
	if text == nil {
		return 0, false
	}
	digits := nonDigitRegex.ReplaceAllString(*text, "")
	if digits == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func normalizePlace(name *string) *string {
	if name == nil {
		return nil
	}
	return models.StringPtr(geocode.NormalizePlace(*name))
}

func firstNonNil(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func countKeywords(text string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			count++
		}
	}
	return count
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ValidationError names the first field that failed validation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid listing: %s %s", e.Field, e.Reason)
}

// Check returns a *ValidationError for the first missing or invalid field
func Check(l *models.CanonicalListing) error {
	required := []struct {
		field string
		value string
	}{
		{"sourceUrl", l.SourceURL},
		{"source", l.Source},
		{"listingType", string(l.ListingType)},
		{"title", l.Title},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "is missing"}
		}
	}
	if l.Price < 0 {
		return &ValidationError{Field: "price", Reason: fmt.Sprintf("is negative (%v)", l.Price)}
	}
	return nil
}

// Validate reports whether l can be persisted and, if not, which field
// is at fault.
func Validate(l *models.CanonicalListing) (bool, string) {
	if err := Check(l); err != nil {
		return false, err.(*ValidationError).Field
	}
	return true, ""
}
