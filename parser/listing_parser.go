package parser

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"listing-factory/models"

	"github.com/PuerkitoBio/goquery"
)

// ErrParse is returned when the markup cannot be read as a document at all.
// Missing fields are never an error.
var ErrParse = errors.New("markup is not a parsable document")

// maxPhotoIndex is the number of PhotoMax_<n> slots checked on a detail page
const maxPhotoIndex = 10

var nonDigitRegex = regexp.MustCompile(`[^\d]`)

// fieldStrategy tries to read one field from the document
type fieldStrategy func(doc *goquery.Document) (string, bool)

// firstOf runs strategies in order and returns the first hit
func firstOf(doc *goquery.Document, strategies ...fieldStrategy) (string, bool) {
	for _, strategy := range strategies {
		if value, ok := strategy(doc); ok {
			return value, true
		}
	}
	return "", false
}

// Field labels as they appear in the da_label_field cells
var (
	descriptionLabels = []string{"texte", "description"}
	priceLabels       = []string{"prix", "price"}
	surfaceLabels     = []string{"surface"}
	phoneLabels       = []string{"téléphone", "telephone", "phone"}
	emailLabels       = []string{"email"}
	locationLabels    = []string{"localisation", "location"}
)

// ListingParser extracts a RawListing from a detail page
type ListingParser struct {
	base *url.URL
}

// NewListingParser creates a parser resolving relative photo URLs against baseURL
func NewListingParser(baseURL string) *ListingParser {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		base = nil
	}
	return &ListingParser{base: base}
}

// ParseListing extracts every field it can find. Each field is best-effort;
// the only error is an unparsable document.
func (lp *ListingParser) ParseListing(htmlContent, sourceURL string) (*models.RawListing, error) {
	if strings.TrimSpace(htmlContent) == "" {
		return nil, fmt.Errorf("%w: empty body for %s", ErrParse, sourceURL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	listing := &models.RawListing{SourceURL: sourceURL}

	listing.Title, _ = firstOf(doc,
		selectorText("tr.da_entete"),
		selectorText("h1"),
		selectorText("title"),
	)

	if desc, ok := firstOf(doc, labeledField(descriptionLabels...)); ok {
		listing.Description = &desc
	}

	if price, ok := firstOf(doc, labeledField(priceLabels...)); ok {
		listing.PriceText = digitsOnly(price)
	}

	if surface, ok := firstOf(doc, labeledField(surfaceLabels...)); ok {
		listing.SurfaceText = digitsOnly(surface)
	}

	if phone, ok := firstOf(doc, labeledField(phoneLabels...), contactValue(false)); ok {
		listing.Phone = cleanPhone(phone)
	}

	if email, ok := firstOf(doc, labeledField(emailLabels...), mailtoLink, contactValue(true)); ok {
		listing.Email = models.StringPtr(strings.TrimSpace(email))
	}

	if loc, ok := firstOf(doc, labeledField(locationLabels...)); ok {
		listing.LocationPath = &loc
		listing.Region, listing.City = splitLocation(loc)
	}

	listing.Images = lp.extractImages(doc)

	return listing, nil
}

// selectorText returns the trimmed text of the first element matching selector
func selectorText(selector string) fieldStrategy {
	return func(doc *goquery.Document) (string, bool) {
		text := normalizeWhitespace(doc.Find(selector).First().Text())
		return text, text != ""
	}
}

// labeledField finds a td.da_label_field containing one of labels and reads
// the adjacent value cell: da_field_text first, da_contact_value second.
func labeledField(labels ...string) fieldStrategy {
	return func(doc *goquery.Document) (string, bool) {
		var value string
		var found bool
		doc.Find("td.da_label_field").EachWithBreak(func(i int, label *goquery.Selection) bool {
			text := strings.ToLower(strings.TrimSpace(label.Text()))
			if !containsAny(text, labels) {
				return true
			}
			for _, class := range []string{"td.da_field_text", "td.da_contact_value"} {
				cell := label.NextAllFiltered(class).First()
				if cell.Length() == 0 {
					continue
				}
				if v := normalizeWhitespace(cell.Text()); v != "" {
					value, found = v, true
					return false
				}
			}
			return true
		})
		return value, found
	}
}

// contactValue reads the secondary contact region. wantEmail selects the
// entry containing an @, otherwise the first one without.
func contactValue(wantEmail bool) fieldStrategy {
	return func(doc *goquery.Document) (string, bool) {
		var value string
		doc.Find(".da_contact_value").EachWithBreak(func(i int, s *goquery.Selection) bool {
			text := normalizeWhitespace(s.Text())
			if text == "" || strings.Contains(text, "@") != wantEmail {
				return true
			}
			value = text
			return false
		})
		return value, value != ""
	}
}

func mailtoLink(doc *goquery.Document) (string, bool) {
	href, ok := doc.Find(`a[href^="mailto:"]`).First().Attr("href")
	if !ok {
		return "", false
	}
	addr := strings.TrimPrefix(href, "mailto:")
	if idx := strings.Index(addr, "?"); idx != -1 {
		addr = addr[:idx]
	}
	addr = strings.TrimSpace(addr)
	return addr, addr != ""
}

// extractImages reads PhotoMax_0..9 and falls back to PhotoView1 thumbnails
func (lp *ListingParser) extractImages(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var images []string
	add := func(src string) {
		src = lp.resolve(strings.TrimSpace(src))
		if src == "" || seen[src] {
			return
		}
		seen[src] = true
		images = append(images, src)
	}

	for i := 0; i < maxPhotoIndex; i++ {
		if src, ok := doc.Find(fmt.Sprintf("img#PhotoMax_%d", i)).First().Attr("src"); ok {
			add(src)
		}
	}

	if len(images) == 0 {
		doc.Find("img.PhotoView1").Each(func(i int, s *goquery.Selection) {
			if src, ok := s.Attr("src"); ok {
				add(src)
			}
		})
	}

	return images
}

func (lp *ListingParser) resolve(src string) string {
	if src == "" {
		return ""
	}
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src
	}
	ref, err := url.Parse(strings.TrimLeft(src, "/"))
	if err != nil || lp.base == nil {
		return src
	}
	return lp.base.ResolveReference(ref).String()
}

// splitLocation reads "Country > Region > City > ..." breadcrumbs
func splitLocation(path string) (region, city *string) {
	parts := strings.Split(path, ">")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) >= 2 {
		region = models.StringPtr(parts[1])
	}
	if len(parts) >= 3 {
		city = models.StringPtr(parts[2])
	}
	return region, city
}

func digitsOnly(text string) *string {
	return models.StringPtr(nonDigitRegex.ReplaceAllString(text, ""))
}

// cleanPhone keeps digits and a leading plus sign
func cleanPhone(text string) *string {
	text = strings.TrimSpace(text)
	digits := nonDigitRegex.ReplaceAllString(text, "")
	if digits == "" {
		return nil
	}
	if strings.HasPrefix(text, "+") {
		digits = "+" + digits
	}
	return &digits
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// normalizeWhitespace replaces unicode whitespace (nbsp included) with
// spaces and collapses runs
func normalizeWhitespace(text string) string {
	normalized := strings.Builder{}
	for _, r := range text {
		if unicode.IsSpace(r) {
			normalized.WriteRune(' ')
		} else {
			normalized.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(normalized.String()), " ")
}
