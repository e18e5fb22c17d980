// Package model declares the tables behind the bundled endpoints as record
// models.
package model

import (
	"context"
	"fmt"

	"github.com/iliyamo/restkit/internal/auth"
	"github.com/iliyamo/restkit/internal/record"
)

const (
	UsersTable          = "users"
	PasswordResetsTable = "password_resets"
	RememberTokensTable = "remember_tokens"

	RoleUser  = "user"
	RoleAdmin = "admin"

	StatusActive   = "active"
	StatusInactive = "inactive"
)

// UserSearchColumns are matched by the users index search.
var UserSearchColumns = []string{"name", "username", "email", "status"}

// Users describes the users table. Passwords are hashed with the given
// bcrypt cost on every write that carries a plain-text password, and are
// never returned by reads.
func Users(bcryptCost int, format record.TimestampFormat) record.Model {
	return record.Model{
		Table:      UsersTable,
		PrimaryKey: "id",
		Fillable: []string{
			"name", "username", "email", "password", "role", "status",
			"email_verified_at", "last_login_at",
		},
		Hidden: []string{"password"},
		Relations: map[string]record.Relation{
			"remember_tokens": {
				Kind: record.KindHasMany, Table: RememberTokensTable,
				ForeignKey: "user_id", LocalKey: "id",
				Hidden: []string{"token_hash"},
			},
		},
		Audit: record.AuditPolicy{TimestampFormat: format},
		Hooks: record.Hooks{
			BeforeSave: hashPassword(bcryptCost),
		},
	}
}

func hashPassword(cost int) func(ctx context.Context, data record.Record, insert bool) (bool, error) {
	return func(_ context.Context, data record.Record, _ bool) (bool, error) {
		v, ok := data["password"]
		if !ok || v == nil {
			return true, nil
		}
		plain := fmt.Sprint(v)
		if plain == "" {
			return true, nil
		}
		hash, err := auth.HashPassword(plain, cost)
		if err != nil {
			return false, err
		}
		data["password"] = hash
		return true, nil
	}
}
