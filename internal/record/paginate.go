package record

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	MaxPerPage = 100
	// CountTTL bounds how stale a cached table count can be.
	CountTTL = 5 * time.Minute
)

// Meta describes one page of results.
type Meta struct {
	Total       int64 `json:"total"`
	PerPage     int   `json:"per_page"`
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
	From        int64 `json:"from"`
	To          int64 `json:"to"`
}

type Page struct {
	Data []Record `json:"data"`
	Meta Meta     `json:"meta"`
}

// CountKey is the cache key of a table's row count.
func CountKey(table string) string { return "table_count:" + table }

// Count returns the current row count, bypassing the cache.
func (m *Mapper) Count(ctx context.Context) (int64, error) {
	if err := checkIdents(m.model.Table); err != nil {
		return 0, err
	}
	q := "SELECT COUNT(*) FROM " + m.model.Table
	var n int64
	rows, err := m.conn.QueryContext(ctx, q)
	if err != nil {
		m.log.Error("count failed", zap.String("sql", q), zap.Error(err))
		return 0, fmt.Errorf("record: count %s: %w", m.model.Table, err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("record: count %s: %w", m.model.Table, err)
		}
	}
	return n, rows.Err()
}

// Paginate returns one page ordered by primary key. perPage is clamped to
// [1, MaxPerPage] and page to at least 1. The total comes from the count
// cache when one is configured.
func (m *Mapper) Paginate(ctx context.Context, page, perPage int) (Page, error) {
	page = max(page, 1)
	perPage = clamp(perPage, 1, MaxPerPage)
	if err := checkIdents(m.model.Table, m.model.PrimaryKey); err != nil {
		return Page{}, err
	}

	total, err := m.cachedCount(ctx)
	if err != nil {
		return Page{}, err
	}

	offset := (page - 1) * perPage
	q := fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT ? OFFSET ?", m.model.Table, m.model.PrimaryKey)
	data, err := m.fetch(ctx, q, []any{perPage, offset})
	if err != nil {
		return Page{}, err
	}

	meta := Meta{
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    max(1, int((total+int64(perPage)-1)/int64(perPage))),
	}
	if len(data) > 0 {
		meta.From = int64(offset) + 1
		meta.To = int64(offset + len(data))
	}
	return Page{Data: data, Meta: meta}, nil
}

func (m *Mapper) cachedCount(ctx context.Context) (int64, error) {
	if m.cache == nil {
		return m.Count(ctx)
	}
	return m.cache.Remember(ctx, CountKey(m.model.Table), CountTTL, m.Count)
}

func (m *Mapper) forgetCount(ctx context.Context) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Delete(ctx, CountKey(m.model.Table)); err != nil {
		m.log.Warn("count cache invalidation failed", zap.String("table", m.model.Table), zap.Error(err))
	}
}
