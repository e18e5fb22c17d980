package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Secret1!", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if cost, err := bcrypt.Cost([]byte(hash)); err != nil || cost != bcrypt.MinCost {
		t.Errorf("bcrypt.Cost() = %d, %v", cost, err)
	}
	if !VerifyPassword(hash, "Secret1!") {
		t.Error("VerifyPassword() rejected the right password")
	}
	if VerifyPassword(hash, "secret1!") {
		t.Error("VerifyPassword() accepted the wrong password")
	}
}

func TestCheckPasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"Secret1!", true},
		{"Passw0rd#", true},
		{"secret1!", false},
		{"SECRET1!", false},
		{"Secret!!", false},
		{"Secret12", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			if got := CheckPasswordStrength(tt.password); got != tt.want {
				t.Errorf("CheckPasswordStrength(%q) = %v, want %v", tt.password, got, tt.want)
			}
		})
	}
}

func TestOpaqueToken(t *testing.T) {
	a, err := NewOpaqueToken(32)
	if err != nil {
		t.Fatalf("NewOpaqueToken() error = %v", err)
	}
	b, _ := NewOpaqueToken(32)
	if len(a) != 64 {
		t.Errorf("len = %d, want 64", len(a))
	}
	if a == b {
		t.Error("tokens should differ")
	}
	if HashOpaque(a) != HashOpaque(a) || HashOpaque(a) == HashOpaque(b) {
		t.Error("HashOpaque must be deterministic and distinguish inputs")
	}
	if len(HashOpaque(a)) != 64 {
		t.Error("SHA-256 hex digest should be 64 chars")
	}
}
