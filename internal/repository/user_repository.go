// Package repository wraps record mappers with the queries the auth and
// user endpoints need.
package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/restkit/internal/record"
)

const datetimeLayout = "2006-01-02 15:04:05"

// Credentials is the subset of a user row needed to check a login. It is
// the only read path that sees the password hash.
type Credentials struct {
	ID           int64
	PasswordHash string
	Status       string
}

type UserRepo struct {
	users *record.Mapper
	conn  record.Conn
	now   func() time.Time
}

func NewUserRepo(conn record.Conn, model record.Model, opts ...record.Option) *UserRepo {
	return &UserRepo{users: record.New(conn, model, opts...), conn: conn, now: time.Now}
}

// Mapper exposes the underlying mapper for generic reads.
func (r *UserRepo) Mapper() *record.Mapper { return r.users }

// NormalizeEmail lower-cases and trims an address before lookups and writes.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a user and returns the stored row (without the password).
// The model hook hashes the password.
func (r *UserRepo) Create(ctx context.Context, actor record.Actor, data record.Record) (record.Record, error) {
	if e, ok := data["email"].(string); ok {
		data["email"] = NormalizeEmail(e)
	}
	id, err := r.users.Create(ctx, actor, data)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("repository: user insert was vetoed")
	}
	return r.users.Find(ctx, id)
}

func (r *UserRepo) FindByID(ctx context.Context, id int64) (record.Record, error) {
	return r.users.Find(ctx, id)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (record.Record, error) {
	return r.users.First(ctx, map[string]any{"email": NormalizeEmail(email)})
}

// Credentials fetches the hash and status for email. found is false when no
// user has that address.
func (r *UserRepo) Credentials(ctx context.Context, email string) (c Credentials, found bool, err error) {
	rows, err := r.conn.QueryContext(ctx,
		"SELECT id, password, status FROM users WHERE email = ? LIMIT 1", NormalizeEmail(email))
	if err != nil {
		return c, false, fmt.Errorf("repository: credentials: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return c, false, rows.Err()
	}
	if err := rows.Scan(&c.ID, &c.PasswordHash, &c.Status); err != nil {
		return c, false, fmt.Errorf("repository: credentials: %w", err)
	}
	return c, true, nil
}

// TouchLogin records the login time.
func (r *UserRepo) TouchLogin(ctx context.Context, id int64) error {
	_, err := r.users.Update(ctx, nil, id, record.Record{
		"last_login_at": r.now().UTC().Format(datetimeLayout),
	})
	return err
}

// SetPassword stores a new password for the user. The model hook
// hashes it. It reports whether a user matched.
func (r *UserRepo) SetPassword(ctx context.Context, actor record.Actor, id int64, plain string) (bool, error) {
	return r.users.Update(ctx, actor, id, record.Record{"password": plain})
}

// IDOf extracts a numeric id from a record column.
func IDOf(rec record.Record, col string) int64 {
	switch v := rec[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	}
	return 0
}
