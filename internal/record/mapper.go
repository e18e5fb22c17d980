package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/apperr"
	"github.com/iliyamo/restkit/internal/cache"
)

// Mapper executes Model-driven queries against a Conn. A Mapper is safe for
// concurrent use; With returns a copy instead of mutating the receiver.
type Mapper struct {
	conn   Conn
	model  Model
	cache  cache.Cache
	schema *SchemaCache
	log    *zap.Logger
	now    func() time.Time
	with   []string
	hidden map[string]bool
}

type Option func(*Mapper)

// WithCache enables the aggregate-count cache used by Paginate.
func WithCache(c cache.Cache) Option { return func(m *Mapper) { m.cache = c } }

// WithSchema replaces the process-wide column cache.
func WithSchema(s *SchemaCache) Option { return func(m *Mapper) { m.schema = s } }

func WithLogger(l *zap.Logger) Option { return func(m *Mapper) { m.log = l } }

func WithClock(now func() time.Time) Option { return func(m *Mapper) { m.now = now } }

func New(conn Conn, model Model, opts ...Option) *Mapper {
	if model.PrimaryKey == "" {
		model.PrimaryKey = "id"
	}
	m := &Mapper{
		conn:   conn,
		model:  model,
		schema: DefaultSchema,
		log:    zap.NewNop(),
		now:    time.Now,
		hidden: make(map[string]bool, len(model.Hidden)),
	}
	for _, h := range model.Hidden {
		m.hidden[h] = true
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	return m
}

func (m *Mapper) Model() Model  { return m.model }
func (m *Mapper) Table() string { return m.model.Table }

// With returns a copy that eager-loads the named relations on every read.
func (m *Mapper) With(relations ...string) *Mapper {
	cp := *m
	cp.with = append(append([]string(nil), m.with...), relations...)
	return &cp
}

// All returns every row.
func (m *Mapper) All(ctx context.Context, cols ...string) ([]Record, error) {
	return m.Where(ctx, nil, cols...)
}

// Find returns the row with the given primary key, or nil.
func (m *Mapper) Find(ctx context.Context, id any, cols ...string) (Record, error) {
	return m.First(ctx, map[string]any{m.model.PrimaryKey: id}, cols...)
}

// Where returns the rows matching every condition. No conditions means all rows.
func (m *Mapper) Where(ctx context.Context, conds map[string]any, cols ...string) ([]Record, error) {
	q, args, err := m.selectSQL(conds, cols)
	if err != nil {
		return nil, err
	}
	return m.fetch(ctx, q, args)
}

// First returns the first row matching conds, or nil.
func (m *Mapper) First(ctx context.Context, conds map[string]any, cols ...string) (Record, error) {
	q, args, err := m.selectSQL(conds, cols)
	if err != nil {
		return nil, err
	}
	recs, err := m.fetch(ctx, q+" LIMIT 1", args)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// Search matches term as a substring of any of the given columns.
func (m *Mapper) Search(ctx context.Context, cols []string, term string, limit int) ([]Record, error) {
	if len(cols) == 0 {
		return nil, apperr.InvalidArgument("search on %s needs at least one column", m.model.Table)
	}
	if err := checkIdents(append([]string{m.model.Table, m.model.PrimaryKey}, cols...)...); err != nil {
		return nil, err
	}
	limit = clamp(limit, 1, MaxPerPage)

	like := "%" + term + "%"
	parts := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		parts[i] = c + " LIKE ?"
		args = append(args, like)
	}
	args = append(args, limit)
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY %s LIMIT ?",
		m.model.Table, strings.Join(parts, " OR "), m.model.PrimaryKey)
	return m.fetch(ctx, q, args)
}

// Query runs raw SQL. Hidden columns are still stripped.
func (m *Mapper) Query(ctx context.Context, query string, args ...any) ([]Record, error) {
	return m.fetch(ctx, query, args)
}

func (m *Mapper) selectSQL(conds map[string]any, cols []string) (string, []any, error) {
	if err := checkIdents(m.model.Table); err != nil {
		return "", nil, err
	}
	list, err := columnList(cols)
	if err != nil {
		return "", nil, err
	}
	where, args, err := whereClause(conds)
	if err != nil {
		return "", nil, err
	}
	return "SELECT " + list + " FROM " + m.model.Table + where, args, nil
}

func (m *Mapper) fetch(ctx context.Context, q string, args []any) ([]Record, error) {
	rows, err := m.conn.QueryContext(ctx, q, args...)
	if err != nil {
		m.log.Error("query failed", zap.String("sql", q), zap.Any("params", args), zap.Error(err))
		return nil, fmt.Errorf("record: query %s: %w", m.model.Table, err)
	}
	recs, err := scanRows(rows)
	if err != nil {
		m.log.Error("scan failed", zap.String("sql", q), zap.Error(err))
		return nil, fmt.Errorf("record: scan %s: %w", m.model.Table, err)
	}
	if err := m.loadRelations(ctx, recs); err != nil {
		return nil, err
	}
	for _, r := range recs {
		m.strip(r)
	}
	return recs, nil
}

func (m *Mapper) strip(r Record) {
	for h := range m.hidden {
		delete(r, h)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
