package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"listing-factory/models"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var header = []interface{}{
	"Title", "Link", "Listing Type", "Property Type", "Price", "Currency",
	"City", "Region", "Surface (m²)", "Rooms", "Latitude", "Longitude", "Phone", "Scraped At",
}

// Writer handles writing listings to Google Sheets
type Writer struct {
	service       *sheets.Service
	spreadsheetID string
}

// NewWriter creates a new Google Sheets writer from service account
// credentials, read from credentialsPath or the GOOGLE_SHEETS_CREDENTIALS
// environment variable
func NewWriter(ctx context.Context, spreadsheetID string, credentialsPath string) (*Writer, error) {
	var credsJSON []byte
	var err error

	if credentialsPath != "" && !strings.HasPrefix(strings.TrimSpace(credentialsPath), "{") {
		credsJSON, err = os.ReadFile(credentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
	} else {
		credsEnv := strings.TrimSpace(credentialsPath)
		if credsEnv == "" {
			credsEnv = strings.TrimSpace(os.Getenv("GOOGLE_SHEETS_CREDENTIALS"))
		}
		if credsEnv == "" {
			return nil, fmt.Errorf("credentials not found: GOOGLE_SHEETS_CREDENTIALS environment variable is empty or not set")
		}
		log.Printf("Reading sheets credentials from the environment (%d bytes)\n", len(credsEnv))
		credsJSON = []byte(credsEnv)
	}

	var creds map[string]interface{}
	if err := json.Unmarshal(credsJSON, &creds); err != nil {
		return nil, fmt.Errorf("invalid credentials JSON (check if JSON is properly formatted): %w", err)
	}
	if creds["type"] != "service_account" {
		return nil, fmt.Errorf("credentials must be a service account JSON file (type: service_account), got type: %v", creds["type"])
	}

	return NewWriterWithOptions(ctx, spreadsheetID, option.WithCredentialsJSON(credsJSON))
}

// NewWriterWithOptions creates a writer with explicit client options
func NewWriterWithOptions(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Writer, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is required")
	}
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Writer{
		service:       service,
		spreadsheetID: ExtractSpreadsheetID(spreadsheetID),
	}, nil
}

// CreateSheetAndWriteListings creates a new sheet at the front of the
// spreadsheet and writes the listings to it. runInfo, when set, becomes a
// first metadata row. Returns the sheet name and sheet ID (gid).
func (w *Writer) CreateSheetAndWriteListings(ctx context.Context, sheetName string, listings []*models.CanonicalListing, runInfo string) (string, int64, error) {
	sheetName = sanitizeSheetName(sheetName)
	if len(sheetName) > 100 {
		sheetName = sheetName[:100]
	}

	batchUpdateRequest := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: sheetName,
						Index: 0,
					},
				},
			},
		},
	}

	batchUpdateResp, err := w.service.Spreadsheets.BatchUpdate(w.spreadsheetID, batchUpdateRequest).Context(ctx).Do()
	if err != nil {
		return "", 0, fmt.Errorf("failed to create sheet: %w", err)
	}

	var sheetID int64
	if len(batchUpdateResp.Replies) > 0 && batchUpdateResp.Replies[0].AddSheet != nil {
		sheetID = batchUpdateResp.Replies[0].AddSheet.Properties.SheetId
	}
	log.Printf("Created sheet '%s' with ID %d\n", sheetName, sheetID)

	var values [][]interface{}
	if runInfo != "" {
		values = append(values, []interface{}{"Run", runInfo})
	}
	values = append(values, header)
	for _, l := range listings {
		values = append(values, listingValues(l))
	}

	range_ := fmt.Sprintf("%s!A1", sheetName)
	_, err = w.service.Spreadsheets.Values.Update(w.spreadsheetID, range_, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return "", 0, fmt.Errorf("failed to write to sheet: %w", err)
	}

	log.Printf("Successfully wrote %d listings to sheet '%s'\n", len(listings), sheetName)
	return sheetName, sheetID, nil
}

// AppendListings appends listings below the existing rows of sheetName
func (w *Writer) AppendListings(ctx context.Context, sheetName string, listings []*models.CanonicalListing) error {
	if len(listings) == 0 {
		log.Println("No listings to append")
		return nil
	}

	var values [][]interface{}
	for _, l := range listings {
		values = append(values, listingValues(l))
	}

	range_ := fmt.Sprintf("%s!A1", sanitizeSheetName(sheetName))
	_, err := w.service.Spreadsheets.Values.Append(w.spreadsheetID, range_, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append to sheets: %w", err)
	}

	log.Printf("Successfully appended %d listings to '%s'\n", len(listings), sheetName)
	return nil
}

// SheetURL returns a link that opens the given sheet of the spreadsheet
func (w *Writer) SheetURL(sheetID int64) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit#gid=%d", w.spreadsheetID, sheetID)
}

// listingValues renders one listing row. Absent values are empty cells.
func listingValues(l *models.CanonicalListing) []interface{} {
	row := []interface{}{
		l.Title,
		l.SourceURL,
		string(l.ListingType),
		string(l.PropertyType),
		l.Price,
		l.Currency,
		models.StringValue(l.City),
		models.StringValue(l.Region),
		"",
		"",
		"",
		"",
		models.StringValue(l.ContactPhone),
		"",
	}
	if l.SurfaceArea != nil {
		row[8] = *l.SurfaceArea
	}
	if l.Rooms != nil {
		row[9] = *l.Rooms
	}
	if l.Coordinates != nil {
		row[10] = l.Coordinates.Latitude
		row[11] = l.Coordinates.Longitude
	}
	if !l.ScrapedAt.IsZero() {
		row[13] = l.ScrapedAt.Format("2006-01-02 15:04:05")
	}
	return row
}

// sanitizeSheetName removes invalid characters from sheet name
func sanitizeSheetName(name string) string {
	// Google Sheets sheet names cannot contain: / \ ? * [ ]
	invalidChars := []string{"/", "\\", "?", "*", "[", "]"}
	result := name
	for _, char := range invalidChars {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	if result == "" {
		result = "Sheet1"
	}
	return result
}

// ExtractSpreadsheetID extracts the spreadsheet ID from a Google Sheets
// URL. Anything that is not a URL is returned as is.
func ExtractSpreadsheetID(url string) string {
	parts := strings.Split(url, "/d/")
	if len(parts) < 2 {
		return strings.TrimSpace(url)
	}

	idPart := parts[1]
	if idx := strings.Index(idPart, "/"); idx != -1 {
		idPart = idPart[:idx]
	}
	if idx := strings.Index(idPart, "?"); idx != -1 {
		idPart = idPart[:idx]
	}

	return strings.TrimSpace(idPart)
}
