package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/restkit/internal/apperr"
)

// ============================================================================
// Construction
// ============================================================================

func TestNew_Configuration(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty secret", Config{Secret: ""}, true},
		{"unsupported algorithm", Config{Secret: "s", Algorithm: "RS256"}, true},
		{"default algorithm", Config{Secret: "s"}, false},
		{"hs512", Config{Secret: "s", Algorithm: "HS512"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperr.IsKind(err, apperr.KindConfiguration) {
				t.Errorf("expected configuration failure, got %v", err)
			}
		})
	}
}

// ============================================================================
// Generate / Verify
// ============================================================================

func newTestAuth(t *testing.T) *TokenAuth {
	t.Helper()
	a, err := New(Config{Secret: "test-secret", TTL: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestGenerateVerify_RoundTrip(t *testing.T) {
	a := newTestAuth(t)

	tok, err := a.Generate(Claims{UserID: 7, Email: "a@b.com", Role: "user"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if tok.Value == "" {
		t.Fatal("expected a token value")
	}

	claims, ok := a.Verify(tok.Value)
	if !ok {
		t.Fatal("Verify() rejected a fresh token")
	}
	if claims.UserID != 7 || claims.Email != "a@b.com" || claims.Role != "user" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.Subject != "7" {
		t.Errorf("Subject = %q, want 7", claims.Subject)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		t.Error("expected exp and iat to be stamped")
	}
}

func TestVerify_Expired(t *testing.T) {
	a := newTestAuth(t)
	base := time.Now()
	a.SetClock(func() time.Time { return base })

	tok, err := a.Generate(Claims{UserID: 1}, time.Minute)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, ok := a.Verify(tok.Value); !ok {
		t.Fatal("token should be valid before expiry")
	}

	a.SetClock(func() time.Time { return base.Add(2 * time.Minute) })
	if _, ok := a.Verify(tok.Value); ok {
		t.Error("Verify() accepted an expired token")
	}
}

func TestVerify_Rejects(t *testing.T) {
	a := newTestAuth(t)
	tok, err := a.Generate(Claims{UserID: 1, Role: "user"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	other, _ := New(Config{Secret: "other-secret"})
	foreign, _ := other.Generate(Claims{UserID: 1})

	hs512, _ := New(Config{Secret: "test-secret", Algorithm: "HS512"})
	wrongAlg, _ := hs512.Generate(Claims{UserID: 1})

	parts := strings.Split(tok.Value, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"tampered signature", tampered},
		{"other secret", foreign.Value},
		{"other algorithm", wrongAlg.Value},
		{"unsigned", "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJ1c2VyX2lkIjoxfQ."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := a.Verify(tt.token); ok {
				t.Errorf("Verify(%q) accepted an invalid token", tt.name)
			}
		})
	}
}

// ============================================================================
// Principal context
// ============================================================================

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFrom(ctx); ok {
		t.Error("empty context should have no principal")
	}
	if UserID(ctx) != 0 {
		t.Error("anonymous UserID should be 0")
	}

	ctx = WithPrincipal(ctx, &Claims{UserID: 42, Role: "admin"})
	c, ok := PrincipalFrom(ctx)
	if !ok || c.Role != "admin" {
		t.Fatalf("PrincipalFrom() = %+v, %v", c, ok)
	}
	if UserID(ctx) != 42 {
		t.Errorf("UserID() = %d, want 42", UserID(ctx))
	}
}

func TestClaimsActorID(t *testing.T) {
	var nilClaims *Claims
	if _, ok := nilClaims.ActorID(); ok {
		t.Error("nil claims must not report an actor")
	}
	if id, ok := (&Claims{UserID: 3}).ActorID(); !ok || id != 3 {
		t.Errorf("ActorID() = %d, %v", id, ok)
	}
}
