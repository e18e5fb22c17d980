package model

import "github.com/iliyamo/restkit/internal/record"

// PasswordResets stores SHA-256 digests of reset tokens, never the tokens.
func PasswordResets() record.Model {
	return record.Model{
		Table:    PasswordResetsTable,
		Fillable: []string{"email", "token", "expires_at"},
		Hidden:   []string{"token"},
		Audit:    record.AuditPolicy{TimestampFormat: record.TimestampDatetime},
	}
}

// RememberTokens are long-lived refresh credentials, stored as digests.
func RememberTokens() record.Model {
	owner := record.BelongsTo(UsersTable, "user_id", "id")
	owner.Hidden = []string{"password"}
	return record.Model{
		Table:    RememberTokensTable,
		Fillable: []string{"user_id", "token_hash", "expires_at"},
		Relations: map[string]record.Relation{
			"user": owner,
		},
		Audit: record.AuditPolicy{TimestampFormat: record.TimestampDatetime},
	}
}
