// Package record is a generic table mapper. A Model describes a table
// declaratively (fillable and hidden columns, relations, audit policy,
// lifecycle hooks); a Mapper turns that description into parameterized SQL
// for MySQL and SQLite.
package record

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/iliyamo/restkit/internal/apperr"
)

// Record is one row keyed by column name.
type Record map[string]any

// Conn is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Actor identifies who performs a write, for created_by/updated_by.
type Actor interface {
	ActorID() (int64, bool)
}

func actorID(a Actor) (int64, bool) {
	if a == nil {
		return 0, false
	}
	return a.ActorID()
}

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// checkIdents rejects any name that is not safe to interpolate into SQL.
func checkIdents(names ...string) error {
	for _, n := range names {
		if !identPattern.MatchString(n) {
			return apperr.InvalidArgument("invalid identifier %q", n)
		}
	}
	return nil
}

func columnList(cols []string) (string, error) {
	if len(cols) == 0 || (len(cols) == 1 && cols[0] == "*") {
		return "*", nil
	}
	if err := checkIdents(cols...); err != nil {
		return "", err
	}
	return strings.Join(cols, ", "), nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// whereClause builds "WHERE a = ? AND b = ?" with keys in sorted order. A
// nil value matches NULL.
func whereClause(conds map[string]any) (string, []any, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}
	keys := sortedKeys(conds)
	if err := checkIdents(keys...); err != nil {
		return "", nil, err
	}
	parts := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		v := conds[k]
		if v == nil {
			parts = append(parts, k+" IS NULL")
			continue
		}
		parts = append(parts, k+" = ?")
		args = append(args, v)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// scanRows reads every row into a Record and closes rows.
func scanRows(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	out := []Record{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[c] = normalize(vals[i], types[i].DatabaseTypeName())
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// normalize turns driver byte slices into strings or numbers. The MySQL
// text protocol returns every column as []byte.
func normalize(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)
	t := strings.ToUpper(dbType)
	switch {
	case strings.Contains(t, "INT"):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case t == "FLOAT" || t == "DOUBLE" || t == "REAL":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// keyOf groups relation values so that 5 and "5" land together.
func keyOf(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}
