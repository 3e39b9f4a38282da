package db

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process PersistentStore. It generates identities
// and timestamp defaults the way the PostgreSQL schema does, so it can
// stand in for the database in dry runs and tests.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]Row
	now    func() time.Time

	// FailOn makes the named operation ("select", "insert", "update",
	// "delete") on the named table return an error. Keys are "op:table".
	FailOn map[string]error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string][]Row),
		now:    time.Now,
		FailOn: make(map[string]error),
	}
}

func (m *MemoryStore) failure(op, table string) error {
	if err, ok := m.FailOn[op+":"+table]; ok {
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	return nil
}

func (m *MemoryStore) Select(ctx context.Context, table, column string, value any) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("select", table); err != nil {
		return nil, err
	}

	var out []Row
	for _, row := range m.tables[table] {
		if equalValues(row[column], value) {
			out = append(out, copyRow(row))
		}
	}
	return out, nil
}

func (m *MemoryStore) Insert(ctx context.Context, table string, rows ...Row) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("insert", table); err != nil {
		return nil, err
	}

	inserted := make([]Row, 0, len(rows))
	for _, row := range rows {
		stored := copyRow(row)
		if _, ok := stored[ColID]; !ok {
			stored[ColID] = uuid.NewString()
		}
		if table == TableProperties {
			now := m.now().UTC()
			if _, ok := stored[ColCreatedAt]; !ok {
				stored[ColCreatedAt] = now
			}
			if _, ok := stored[ColUpdatedAt]; !ok {
				stored[ColUpdatedAt] = now
			}
		}
		m.tables[table] = append(m.tables[table], stored)
		inserted = append(inserted, copyRow(stored))
	}
	return inserted, nil
}

func (m *MemoryStore) Update(ctx context.Context, table, id string, values Row) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("update", table); err != nil {
		return nil, err
	}

	var out []Row
	for _, row := range m.tables[table] {
		if row[ColID] != id {
			continue
		}
		for col, v := range values {
			if col == ColID {
				continue
			}
			row[col] = v
		}
		out = append(out, copyRow(row))
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, table, column string, value any) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("delete", table); err != nil {
		return nil, err
	}

	var kept, deleted []Row
	for _, row := range m.tables[table] {
		if equalValues(row[column], value) {
			deleted = append(deleted, row)
		} else {
			kept = append(kept, row)
		}
	}
	m.tables[table] = kept
	return deleted, nil
}

func (m *MemoryStore) Count(ctx context.Context, table string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table]), nil
}

// Rows returns a copy of every row in table, in insertion order
func (m *MemoryStore) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, 0, len(m.tables[table]))
	for _, row := range m.tables[table] {
		out = append(out, copyRow(row))
	}
	return out
}

func copyRow(row Row) Row {
	c := make(Row, len(row))
	for k, v := range row {
		c[k] = v
	}
	return c
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
