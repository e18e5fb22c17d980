package repository

import (
	"context"
	"time"

	"github.com/iliyamo/restkit/internal/auth"
	"github.com/iliyamo/restkit/internal/record"
)

// PasswordResetRepo keeps at most one live reset token per email. Only the
// SHA-256 digest of a token is stored.
type PasswordResetRepo struct {
	resets *record.Mapper
	now    func() time.Time
}

func NewPasswordResetRepo(conn record.Conn, model record.Model, opts ...record.Option) *PasswordResetRepo {
	return &PasswordResetRepo{resets: record.New(conn, model, opts...), now: time.Now}
}

// Issue deletes earlier tokens for email and stores a new one valid for
// ttl. The plain token is returned to be mailed and is not recoverable.
func (r *PasswordResetRepo) Issue(ctx context.Context, email string, ttl time.Duration) (string, error) {
	email = NormalizeEmail(email)
	if _, err := r.resets.DeleteWhere(ctx, map[string]any{"email": email}); err != nil {
		return "", err
	}
	plain, err := auth.NewOpaqueToken(32)
	if err != nil {
		return "", err
	}
	_, err = r.resets.Create(ctx, nil, record.Record{
		"email":      email,
		"token":      auth.HashOpaque(plain),
		"expires_at": r.now().Add(ttl).UTC().Format(datetimeLayout),
	})
	if err != nil {
		return "", err
	}
	return plain, nil
}

// Valid reports whether token is the current, unexpired token for email.
func (r *PasswordResetRepo) Valid(ctx context.Context, email, token string) (bool, error) {
	recs, err := r.resets.Query(ctx,
		"SELECT id FROM password_resets WHERE email = ? AND token = ? AND expires_at > ? LIMIT 1",
		NormalizeEmail(email), auth.HashOpaque(token), r.now().UTC().Format(datetimeLayout))
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// Consume deletes every token for email so a token works once.
func (r *PasswordResetRepo) Consume(ctx context.Context, email string) error {
	_, err := r.resets.DeleteWhere(ctx, map[string]any{"email": NormalizeEmail(email)})
	return err
}
