package record

import (
	"context"
	"fmt"
)

// UniqueLookup answers "does another row already hold this value" for the
// validator's unique rule.
type UniqueLookup struct {
	conn     Conn
	idColumn string
}

func NewUniqueLookup(conn Conn) *UniqueLookup {
	return &UniqueLookup{conn: conn, idColumn: "id"}
}

// Exists reports whether table has a row with column = value, ignoring the
// row whose id equals except when except is set.
func (u *UniqueLookup) Exists(ctx context.Context, table, column string, value, except any) (bool, error) {
	if err := checkIdents(table, column, u.idColumn); err != nil {
		return false, err
	}
	q := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", table, column)
	args := []any{value}
	if except != nil && keyOf(except) != "" {
		q += fmt.Sprintf(" AND %s <> ?", u.idColumn)
		args = append(args, except)
	}
	q += " LIMIT 1"

	rows, err := u.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("record: unique lookup %s.%s: %w", table, column, err)
	}
	defer rows.Close()
	found := rows.Next()
	return found, rows.Err()
}
