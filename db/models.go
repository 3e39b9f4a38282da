package db

import (
	"strconv"
	"strings"

	"listing-factory/models"
)

// listingRow maps a canonical listing onto the properties columns. Absent
// values are left out so the schema defaults apply; id and createdAt are
// never sent.
func listingRow(l *models.CanonicalListing) Row {
	row := Row{
		"sourceUrl":         l.SourceURL,
		"source":            l.Source,
		"listingType":       string(l.ListingType),
		"status":            string(l.Status),
		"title":             l.Title,
		"price":             l.Price,
		"isPriceNegotiable": l.IsPriceNegotiable,
	}

	if l.Currency != "" {
		row["currency"] = l.Currency
	}
	putString(row, "description", l.Description)
	putString(row, "contactPhone", l.ContactPhone)
	putString(row, "contactEmail", l.ContactEmail)
	putString(row, "city", l.City)
	putString(row, "region", l.Region)

	if l.Coordinates != nil {
		row["latitude"] = l.Coordinates.Latitude
		row["longitude"] = l.Coordinates.Longitude
	}
	if l.PropertyType.Known() {
		row["propertyType"] = string(l.PropertyType)
	}
	if l.SurfaceArea != nil {
		row["surfaceArea"] = *l.SurfaceArea
	}
	if l.Rooms != nil {
		row["rooms"] = *l.Rooms
	}
	if l.Bathrooms != nil {
		row["bathrooms"] = *l.Bathrooms
	}
	if l.PricePerArea != nil {
		row["pricePerSqm"] = *l.PricePerArea
	}
	if l.Features != nil {
		features := make([]string, len(l.Features))
		for i, f := range l.Features {
			features[i] = string(f)
		}
		row["features"] = features
	}
	if len(l.Embedding) > 0 {
		row["descriptionEmbedding"] = formatVector(l.Embedding)
	}
	if !l.ScrapedAt.IsZero() {
		row["scrapedAt"] = l.ScrapedAt
	}

	return row
}

func putString(row Row, column string, value *string) {
	if value != nil {
		row[column] = *value
	}
}

func imageRows(listingID string, urls []string) []Row {
	rows := make([]Row, len(urls))
	for i, u := range urls {
		rows[i] = Row{ColURL: u, ColPropertyID: listingID}
	}
	return rows
}

// formatVector renders v in pgvector text form, e.g. [0.1,0.2]
func formatVector(v []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(x, 'f', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}
