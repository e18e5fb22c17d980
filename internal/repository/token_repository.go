package repository

import (
	"context"
	"time"

	"github.com/iliyamo/restkit/internal/auth"
	"github.com/iliyamo/restkit/internal/record"
)

// TokenRepo persists remember tokens by their SHA-256 digest.
type TokenRepo struct {
	tokens *record.Mapper
	now    func() time.Time
}

func NewTokenRepo(conn record.Conn, model record.Model, opts ...record.Option) *TokenRepo {
	return &TokenRepo{tokens: record.New(conn, model, opts...), now: time.Now}
}

// Issue stores a new remember token for userID and returns the plain value.
func (r *TokenRepo) Issue(ctx context.Context, userID int64, ttl time.Duration) (string, time.Time, error) {
	plain, err := auth.NewOpaqueToken(32)
	if err != nil {
		return "", time.Time{}, err
	}
	exp := r.now().Add(ttl).UTC()
	_, err = r.tokens.Create(ctx, nil, record.Record{
		"user_id":    userID,
		"token_hash": auth.HashOpaque(plain),
		"expires_at": exp.Format(datetimeLayout),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return plain, exp, nil
}

// Validate returns the owner of an unexpired token.
func (r *TokenRepo) Validate(ctx context.Context, plain string) (int64, bool, error) {
	if plain == "" {
		return 0, false, nil
	}
	recs, err := r.tokens.Query(ctx,
		"SELECT user_id FROM remember_tokens WHERE token_hash = ? AND expires_at > ? LIMIT 1",
		auth.HashOpaque(plain), r.now().UTC().Format(datetimeLayout))
	if err != nil || len(recs) == 0 {
		return 0, false, err
	}
	return IDOf(recs[0], "user_id"), true, nil
}

// Revoke deletes a token and reports whether it existed.
func (r *TokenRepo) Revoke(ctx context.Context, plain string) (bool, error) {
	if plain == "" {
		return false, nil
	}
	n, err := r.tokens.DeleteWhere(ctx, map[string]any{"token_hash": auth.HashOpaque(plain)})
	return n > 0, err
}

// RevokeAllForUser deletes every token the user holds.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID int64) error {
	_, err := r.tokens.DeleteWhere(ctx, map[string]any{"user_id": userID})
	return err
}
