package record

import (
	"context"
	"sync"
)

// SchemaCache remembers each table's column names for the process lifetime.
// Reads take the shared lock; population and invalidation are brief writes.
type SchemaCache struct {
	mu   sync.RWMutex
	cols map[string][]string
}

// DefaultSchema is shared by mappers that do not supply their own.
var DefaultSchema = NewSchemaCache()

func NewSchemaCache() *SchemaCache {
	return &SchemaCache{cols: make(map[string][]string)}
}

// Columns returns the columns of table, introspecting on first use.
// Introspection is best effort: failures yield an empty list, which is not
// cached so a later call can retry.
func (s *SchemaCache) Columns(ctx context.Context, conn Conn, table string) []string {
	s.mu.RLock()
	cols, ok := s.cols[table]
	s.mu.RUnlock()
	if ok {
		return cols
	}
	if checkIdents(table) != nil {
		return nil
	}

	cols = introspect(ctx, conn, table)
	if len(cols) == 0 {
		return nil
	}
	s.mu.Lock()
	s.cols[table] = cols
	s.mu.Unlock()
	return cols
}

// Invalidate drops the cached columns of table after a schema change.
func (s *SchemaCache) Invalidate(table string) {
	s.mu.Lock()
	delete(s.cols, table)
	s.mu.Unlock()
}

func introspect(ctx context.Context, conn Conn, table string) []string {
	rows, err := conn.QueryContext(ctx, "SELECT * FROM "+table+" LIMIT 1")
	if err == nil {
		cols, cerr := rows.Columns()
		_ = rows.Close()
		if cerr == nil && len(cols) > 0 {
			return cols
		}
	}

	rows, err = conn.QueryContext(ctx,
		"SELECT COLUMN_NAME FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION",
		table)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil
		}
		cols = append(cols, c)
	}
	if rows.Err() != nil {
		return nil
	}
	return cols
}
