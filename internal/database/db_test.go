package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsConstraint_MySQL(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
		dup  bool
	}{
		{"duplicate", &mysql.MySQLError{Number: 1062}, true, true},
		{"fk", fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1452}), true, false},
		{"syntax", &mysql.MySQLError{Number: 1064}, false, false},
		{"plain", errors.New("boom"), false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConstraint(tt.err); got != tt.want {
				t.Errorf("IsConstraint() = %v, want %v", got, tt.want)
			}
			if got := IsDuplicate(tt.err); got != tt.dup {
				t.Errorf("IsDuplicate() = %v, want %v", got, tt.dup)
			}
		})
	}
}

func TestIsConstraint_SQLite(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, email TEXT NOT NULL UNIQUE)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO t (email) VALUES (?)", "a@b.com"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err = db.ExecContext(ctx, "INSERT INTO t (email) VALUES (?)", "a@b.com")
	if !IsConstraint(err) || !IsDuplicate(err) {
		t.Errorf("duplicate insert: IsConstraint=%v IsDuplicate=%v err=%v", IsConstraint(err), IsDuplicate(err), err)
	}

	_, err = db.ExecContext(ctx, "INSERT INTO t (email) VALUES (NULL)")
	if !IsConstraint(err) {
		t.Errorf("null insert should be a constraint violation: %v", err)
	}
	if IsDuplicate(err) {
		t.Error("null insert is not a duplicate")
	}
}
