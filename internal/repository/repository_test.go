package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/iliyamo/restkit/internal/auth"
	"github.com/iliyamo/restkit/internal/database"
	"github.com/iliyamo/restkit/internal/model"
	"github.com/iliyamo/restkit/internal/record"
)

// ============================================================================
// Fixtures
// ============================================================================

func newDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(context.Background(), db, "sqlite3"); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func opts() []record.Option {
	return []record.Option{record.WithSchema(record.NewSchemaCache())}
}

func seedUser(t *testing.T, users *UserRepo, email string) record.Record {
	t.Helper()
	u, err := users.Create(context.Background(), nil, record.Record{
		"name": "Ada", "email": email, "password": "Secret123!", "role": model.RoleUser, "status": model.StatusActive,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return u
}

// ============================================================================
// Users
// ============================================================================

func TestUserRepo_CreateAndCredentials(t *testing.T) {
	db := newDB(t)
	users := NewUserRepo(db, model.Users(4, record.TimestampDatetime), opts()...)
	ctx := context.Background()

	u := seedUser(t, users, "  Ada@Example.com ")
	if u["email"] != "ada@example.com" {
		t.Errorf("email = %v", u["email"])
	}
	if _, ok := u["password"]; ok {
		t.Error("password leaked into the read")
	}

	creds, found, err := users.Credentials(ctx, "ADA@example.com")
	if err != nil || !found {
		t.Fatalf("Credentials() = %v, %v", found, err)
	}
	if creds.ID != IDOf(u, "id") || creds.Status != model.StatusActive {
		t.Errorf("creds = %+v", creds)
	}
	if !auth.VerifyPassword(creds.PasswordHash, "Secret123!") {
		t.Error("stored password is not the bcrypt hash of the input")
	}

	if _, found, err := users.Credentials(ctx, "nobody@example.com"); err != nil || found {
		t.Errorf("unknown email: found = %v err = %v", found, err)
	}
}

func TestUserRepo_SetPasswordAndTouchLogin(t *testing.T) {
	db := newDB(t)
	users := NewUserRepo(db, model.Users(4, record.TimestampDatetime), opts()...)
	users.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	ctx := context.Background()
	id := IDOf(seedUser(t, users, "ada@example.com"), "id")

	ok, err := users.SetPassword(ctx, nil, id, "NewSecret1!")
	if err != nil || !ok {
		t.Fatalf("SetPassword() = %v, %v", ok, err)
	}
	creds, _, _ := users.Credentials(ctx, "ada@example.com")
	if !auth.VerifyPassword(creds.PasswordHash, "NewSecret1!") {
		t.Error("password not updated")
	}

	if err := users.TouchLogin(ctx, id); err != nil {
		t.Fatal(err)
	}
	u, _ := users.FindByID(ctx, id)
	if u["last_login_at"] != "2026-03-04 05:06:07" {
		t.Errorf("last_login_at = %v", u["last_login_at"])
	}
}

// ============================================================================
// Password resets
// ============================================================================

func TestPasswordResetRepo_SingleLiveToken(t *testing.T) {
	db := newDB(t)
	resets := NewPasswordResetRepo(db, model.PasswordResets(), opts()...)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	resets.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := resets.Issue(ctx, "ada@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	second, err := resets.Issue(ctx, "Ada@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var rows int
	var stored string
	if err := db.QueryRow("SELECT COUNT(*), MAX(token) FROM password_resets").Scan(&rows, &stored); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("rows = %d, want 1", rows)
	}
	if stored == second || stored != auth.HashOpaque(second) {
		t.Error("token must be stored as its digest")
	}

	if ok, _ := resets.Valid(ctx, "ada@example.com", first); ok {
		t.Error("superseded token still valid")
	}
	if ok, _ := resets.Valid(ctx, "ada@example.com", second); !ok {
		t.Error("current token rejected")
	}
	if ok, _ := resets.Valid(ctx, "eve@example.com", second); ok {
		t.Error("token accepted for another email")
	}

	now = now.Add(2 * time.Hour)
	if ok, _ := resets.Valid(ctx, "ada@example.com", second); ok {
		t.Error("expired token accepted")
	}

	if err := resets.Consume(ctx, "ada@example.com"); err != nil {
		t.Fatal(err)
	}
	_ = db.QueryRow("SELECT COUNT(*) FROM password_resets").Scan(&rows)
	if rows != 0 {
		t.Errorf("rows after consume = %d", rows)
	}
}

// ============================================================================
// Remember tokens
// ============================================================================

func TestTokenRepo_Lifecycle(t *testing.T) {
	db := newDB(t)
	users := NewUserRepo(db, model.Users(4, record.TimestampDatetime), opts()...)
	tokens := NewTokenRepo(db, model.RememberTokens(), opts()...)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }
	ctx := context.Background()
	uid := IDOf(seedUser(t, users, "ada@example.com"), "id")

	plain, exp, err := tokens.Issue(ctx, uid, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !exp.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("expires = %v", exp)
	}

	got, ok, err := tokens.Validate(ctx, plain)
	if err != nil || !ok || got != uid {
		t.Fatalf("Validate() = %d, %v, %v", got, ok, err)
	}
	if _, ok, _ := tokens.Validate(ctx, "not-a-token"); ok {
		t.Error("unknown token accepted")
	}

	// The owning user loads through the relation without its password.
	recs, err := tokens.tokens.With("user").All(ctx)
	if err != nil || len(recs) != 1 {
		t.Fatalf("All() = %v, %v", recs, err)
	}
	owner, _ := recs[0]["user"].(record.Record)
	if owner == nil || owner["email"] != "ada@example.com" {
		t.Fatalf("owner = %v", recs[0]["user"])
	}
	if _, leaked := owner["password"]; leaked {
		t.Error("owner password leaked")
	}

	now = now.Add(25 * time.Hour)
	if _, ok, _ := tokens.Validate(ctx, plain); ok {
		t.Error("expired token accepted")
	}

	if revoked, err := tokens.Revoke(ctx, plain); err != nil || !revoked {
		t.Errorf("Revoke() = %v, %v", revoked, err)
	}
	if revoked, _ := tokens.Revoke(ctx, plain); revoked {
		t.Error("second revoke reported a row")
	}

	_, _, _ = tokens.Issue(ctx, uid, time.Hour)
	_, _, _ = tokens.Issue(ctx, uid, time.Hour)
	if err := tokens.RevokeAllForUser(ctx, uid); err != nil {
		t.Fatal(err)
	}
	var n int
	_ = db.QueryRow("SELECT COUNT(*) FROM remember_tokens").Scan(&n)
	if n != 0 {
		t.Errorf("tokens left = %d", n)
	}
}
