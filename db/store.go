package db

import (
	"context"
	"fmt"
)

// Table and column names shared with the web application reading the same
// database. Renaming any of them is a schema change.
const (
	TableProperties = "properties"
	TableImages     = "images"

	ColID         = "id"
	ColSourceURL  = "sourceUrl"
	ColCreatedAt  = "createdAt"
	ColUpdatedAt  = "updatedAt"
	ColURL        = "url"
	ColPropertyID = "propertyId"
)

// Row is one record keyed by column name
type Row map[string]any

// PersistentStore is a table-like store. Every call returns the rows it
// touched.
type PersistentStore interface {
	Select(ctx context.Context, table, column string, value any) ([]Row, error)
	Insert(ctx context.Context, table string, rows ...Row) ([]Row, error)
	Update(ctx context.Context, table, id string, values Row) ([]Row, error)
	Delete(ctx context.Context, table, column string, value any) ([]Row, error)
	Count(ctx context.Context, table string) (int, error)
}

// idOf returns the identity column of row as a string
func idOf(row Row) (string, error) {
	switch v := row[ColID].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case []byte:
		if len(v) > 0 {
			return string(v), nil
		}
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("row has no usable %s: %v", ColID, row[ColID])
}
