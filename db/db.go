package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// PostgresStore implements PersistentStore on PostgreSQL
type PostgresStore struct {
	conn *sql.DB
}

// ConnString returns DATABASE_URL, or a connection string built from the
// DB_* variables when it is unset
func ConnString() string {
	if connStr := os.Getenv("DATABASE_URL"); connStr != "" {
		return connStr
	}
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "")
	dbname := getEnvOrDefault("DB_NAME", "tunishome")
	sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// NewPostgresStore opens and pings the database. An unreachable database
// is an error here so callers can abort before doing any work.
func NewPostgresStore(ctx context.Context, connStr string, initSchema bool) (*PostgresStore, error) {
	if connStr == "" {
		connStr = ConnString()
	}

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{conn: conn}

	if initSchema {
		if err := store.initSchema(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return store, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.conn.Close()
}

// initSchema creates the tables if they don't exist. The web application
// normally owns the schema; this is for local runs against an empty database.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	embeddingType := "vector(768)"
	if _, err := s.conn.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		log.Printf("Note: pgvector unavailable, storing embeddings as text: %v\n", err)
		embeddingType = "TEXT"
	}
	if _, err := s.conn.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`); err != nil {
		log.Printf("Note: Could not create pgcrypto extension (may already exist): %v\n", err)
	}

	_, err := s.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS properties (
			"id" UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			"sourceUrl" TEXT NOT NULL UNIQUE,
			"source" TEXT NOT NULL,
			"listingType" TEXT NOT NULL,
			"status" TEXT NOT NULL DEFAULT 'ACTIVE',
			"title" TEXT NOT NULL,
			"price" DOUBLE PRECISION NOT NULL DEFAULT 0,
			"currency" TEXT NOT NULL DEFAULT 'TND',
			"description" TEXT,
			"contactPhone" TEXT,
			"contactEmail" TEXT,
			"city" TEXT,
			"region" TEXT,
			"latitude" DOUBLE PRECISION,
			"longitude" DOUBLE PRECISION,
			"propertyType" TEXT,
			"surfaceArea" DOUBLE PRECISION,
			"rooms" INTEGER,
			"bathrooms" INTEGER,
			"pricePerSqm" DOUBLE PRECISION,
			"isPriceNegotiable" BOOLEAN NOT NULL DEFAULT FALSE,
			"features" TEXT[] NOT NULL DEFAULT '{}',
			"descriptionEmbedding" `+embeddingType+`,
			"createdAt" TIMESTAMPTZ NOT NULL DEFAULT now(),
			"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT now(),
			"scrapedAt" TIMESTAMPTZ
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create properties table: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS images (
			"id" UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			"url" TEXT NOT NULL,
			"propertyId" UUID NOT NULL REFERENCES properties("id") ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create images table: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_images_property_id ON images("propertyId")`)
	if err != nil {
		log.Printf("Warning: Failed to create index on images.propertyId: %v\n", err)
	}

	log.Println("Database schema initialized successfully")
	return nil
}

// Select returns the rows of table where column equals value
func (s *PostgresStore) Select(ctx context.Context, table, column string, value any) ([]Row, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = $1`, pq.QuoteIdentifier(table), pq.QuoteIdentifier(column))
	return s.query(ctx, query, sqlValue(value))
}

// Insert writes rows one statement each and returns them as stored
func (s *PostgresStore) Insert(ctx context.Context, table string, rows ...Row) ([]Row, error) {
	var inserted []Row
	for _, row := range rows {
		if len(row) == 0 {
			return inserted, fmt.Errorf("insert into %s: empty row", table)
		}
		columns := sortedColumns(row)
		quoted := make([]string, len(columns))
		placeholders := make([]string, len(columns))
		args := make([]any, len(columns))
		for i, col := range columns {
			quoted[i] = pq.QuoteIdentifier(col)
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = sqlValue(row[col])
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING *`,
			pq.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
		out, err := s.query(ctx, query, args...)
		if err != nil {
			return inserted, err
		}
		inserted = append(inserted, out...)
	}
	return inserted, nil
}

// Update overwrites the given columns of the row with identity id
func (s *PostgresStore) Update(ctx context.Context, table, id string, values Row) ([]Row, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("update %s: no values", table)
	}
	columns := sortedColumns(values)
	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, col := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), i+1)
		args = append(args, sqlValue(values[col]))
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $%d RETURNING *`,
		pq.QuoteIdentifier(table), strings.Join(sets, ", "), pq.QuoteIdentifier(ColID), len(args))
	return s.query(ctx, query, args...)
}

// Delete removes the rows of table where column equals value
func (s *PostgresStore) Delete(ctx context.Context, table, column string, value any) ([]Row, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 RETURNING *`, pq.QuoteIdentifier(table), pq.QuoteIdentifier(column))
	return s.query(ctx, query, sqlValue(value))
}

// Count returns the number of rows in table
func (s *PostgresStore) Count(ctx context.Context, table string) (int, error) {
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, pq.QuoteIdentifier(table))
	if err := s.conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			// lib/pq hands back text, uuid and array columns as bytes
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// sqlValue adapts Go values lib/pq cannot bind directly
func sqlValue(v any) any {
	switch val := v.(type) {
	case []string:
		return pq.Array(val)
	case []float64:
		return pq.Array(val)
	case []int64:
		return pq.Array(val)
	}
	return v
}

func sortedColumns(row Row) []string {
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}
