// Package repository exposes the business-entity tables as named
// collections of schema-less records, for snapshot and restore. The
// backup engine never interprets entity fields; it only moves them.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Record is one entity row, keyed by column name.
type Record map[string]any

// collections maps snapshot document keys to their backing tables, in
// restore order (referenced tables before referencing ones).
var collections = []struct {
	Key   string
	Table string
}{
	{"users", "users"},
	{"patients", "patients"},
	{"doctors", "doctors"},
	{"analyses", "analyses"},
	{"requests", "requests"},
	{"requestAnalyses", "request_analyses"},
	{"results", "results"},
	{"products", "products"},
	{"suppliers", "suppliers"},
	{"stockEntries", "stock_entries"},
	{"stockOuts", "stock_outs"},
	{"orders", "orders"},
	{"orderItems", "order_items"},
	{"systemConfig", "system_config"},
	{"modules", "modules"},
	{"moduleLicenses", "module_licenses"},
}

var columnName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Collections returns the snapshot keys of every known collection, in
// restore order.
func (s *Store) Collections() []string {
	keys := make([]string, len(collections))
	for i, c := range collections {
		keys[i] = c.Key
	}
	return keys
}

func tableFor(collection string) (string, error) {
	for _, c := range collections {
		if c.Key == collection {
			return c.Table, nil
		}
	}
	return "", fmt.Errorf("unknown collection %q", collection)
}

// ListEntities returns every record in the collection.
func (s *Store) ListEntities(ctx context.Context, collection string) ([]Record, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT * FROM `+table)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns for %s: %w", collection, err)
	}

	records := []Record{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		rec := make(Record, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
			} else {
				rec[col] = values[i]
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ReplaceAll clears every collection present in data and re-inserts the
// snapshot's records. Deletes run children-first and inserts parents-first
// so foreign keys hold throughout. Collections are applied sequentially;
// a failure partway leaves earlier collections applied (callers report
// this, they do not roll it back).
func (s *Store) ReplaceAll(ctx context.Context, data map[string][]Record) (applied []string, err error) {
	// Children first for deletion.
	for i := len(collections) - 1; i >= 0; i-- {
		c := collections[i]
		if _, ok := data[c.Key]; !ok {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+c.Table); err != nil {
			return applied, fmt.Errorf("clear %s: %w", c.Key, err)
		}
	}

	// Parents first for insertion.
	for _, c := range collections {
		records, ok := data[c.Key]
		if !ok {
			continue
		}
		if err := s.insertAll(ctx, c.Key, c.Table, records); err != nil {
			return applied, err
		}
		applied = append(applied, c.Key)
	}
	return applied, nil
}

func (s *Store) insertAll(ctx context.Context, collection, table string, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore tx: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		cols := make([]string, 0, len(rec))
		for col := range rec {
			if !columnName.MatchString(col) {
				return fmt.Errorf("restore %s: invalid column name %q", collection, col)
			}
			cols = append(cols, col)
		}
		sort.Strings(cols)

		args := make([]any, len(cols))
		marks := make([]string, len(cols))
		for i, col := range cols {
			args[i] = rec[col]
			marks[i] = "?"
		}

		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			table, strings.Join(cols, ", "), strings.Join(marks, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("restore %s: %w", collection, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore of %s: %w", collection, err)
	}
	return nil
}
