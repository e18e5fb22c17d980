package validation

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/iliyamo/restkit/internal/apperr"
)

// ============================================================================
// Mocks
// ============================================================================

type mockLookup struct {
	ExistsFunc func(table, column string, value, except any) (bool, error)
	calls      int
}

func (m *mockLookup) Exists(_ context.Context, table, column string, value, except any) (bool, error) {
	m.calls++
	return m.ExistsFunc(table, column, value, except)
}

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindValidation {
		t.Fatalf("expected validation failure, got %v", err)
	}
	return e.Errors
}

// ============================================================================
// Compile
// ============================================================================

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		rules map[string]string
	}{
		{"unknown rule", map[string]string{"a": "required|shiny"}},
		{"min without number", map[string]string{"a": "min:abc"}},
		{"max without argument", map[string]string{"a": "max"}},
		{"unique missing column", map[string]string{"a": "unique:users"}},
		{"in without values", map[string]string{"a": "in:"}},
		{"argument on simple rule", map[string]string{"a": "required:yes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.rules)
			if !apperr.IsKind(err, apperr.KindConfiguration) {
				t.Errorf("Compile() error = %v, want configuration failure", err)
			}
		})
	}
}

func TestMustCompile_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustCompile should panic on a bad rule")
		}
	}()
	MustCompile(map[string]string{"a": "nope"})
}

// ============================================================================
// required
// ============================================================================

func TestRequired(t *testing.T) {
	rules := MustCompile(map[string]string{"v": "required"})
	tests := []struct {
		name    string
		value   any
		present bool
		wantErr bool
	}{
		{"absent", nil, false, true},
		{"nil", nil, true, true},
		{"empty string", "", true, true},
		{"whitespace", "  \t", true, true},
		{"empty slice", []any{}, true, true},
		{"empty map", map[string]any{}, true, true},
		{"string zero", "0", true, false},
		{"int zero", 0, true, false},
		{"json zero", json.Number("0"), true, false},
		{"false", false, true, false},
		{"text", "x", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := map[string]any{}
			if tt.present {
				data["v"] = tt.value
			}
			_, err := rules.Validate(context.Background(), data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if got := fieldErrors(t, err)["v"]; len(got) != 1 || got[0] != "The v field is required." {
					t.Errorf("messages = %v", got)
				}
			}
		})
	}
}

// ============================================================================
// Individual rules
// ============================================================================

func TestRules(t *testing.T) {
	tests := []struct {
		name    string
		rule    string
		value   any
		wantErr bool
	}{
		{"string ok", "string", "x", false},
		{"string bad", "string", json.Number("5"), true},
		{"integer json", "integer", json.Number("5"), false},
		{"integer float json", "integer", json.Number("5.5"), true},
		{"integer string", "integer", "12", false},
		{"integer bad", "integer", "twelve", true},
		{"numeric float", "numeric", json.Number("5.5"), false},
		{"numeric bad", "numeric", "abc", true},
		{"boolean true", "boolean", true, false},
		{"boolean string", "boolean", "1", false},
		{"boolean bad", "boolean", "maybe", true},
		{"email ok", "email", "a@b.com", false},
		{"email bad", "email", "not-an-email", true},
		{"url ok", "url", "https://example.com/x", false},
		{"url bad", "url", "example", true},
		{"min length ok", "min:3", "abc", false},
		{"min length bad", "min:3", "ab", true},
		{"min counts runes", "min:3", "héé", false},
		{"max length bad", "max:3", "abcd", true},
		{"min numeric", "integer|min:18", json.Number("17"), true},
		{"max numeric ok", "numeric|max:10", json.Number("9.5"), false},
		{"min numeric string without numeric rule", "min:3", "1000", false},
		{"min items", "min:2", []any{1}, true},
		{"in ok", "in:admin,user", "user", false},
		{"in bad", "in:admin,user", "root", true},
		{"nullable nil", "nullable|email", nil, false},
		{"optional empty", "email", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := MustCompile(map[string]string{"f": tt.rule})
			_, err := rules.Validate(context.Background(), map[string]any{"f": tt.value})
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q, %v) error = %v, wantErr %v", tt.rule, tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestConfirmed(t *testing.T) {
	rules := MustCompile(map[string]string{"password": "required|confirmed"})
	ctx := context.Background()

	if _, err := rules.Validate(ctx, map[string]any{"password": "x", "password_confirmation": "x"}); err != nil {
		t.Errorf("matching confirmation rejected: %v", err)
	}
	_, err := rules.Validate(ctx, map[string]any{"password": "x", "password_confirmation": "y"})
	if got := fieldErrors(t, err)["password"]; len(got) != 1 {
		t.Errorf("messages = %v", got)
	}
}

// ============================================================================
// unique
// ============================================================================

func TestUnique(t *testing.T) {
	lookup := &mockLookup{ExistsFunc: func(table, column string, value, except any) (bool, error) {
		if table != "users" || column != "email" {
			t.Errorf("lookup on %s.%s", table, column)
		}
		if value != "taken@example.com" {
			return false, nil
		}
		return except != "7", nil
	}}
	rules := MustCompile(map[string]string{"email": "required|email|unique:users,email,{id}"})
	ctx := context.Background()

	_, err := rules.Validate(ctx, map[string]any{"email": "taken@example.com"}, WithLookup(lookup))
	if got := fieldErrors(t, err)["email"]; len(got) != 1 || got[0] != "The email has already been taken." {
		t.Errorf("messages = %v", got)
	}

	if _, err := rules.Validate(ctx, map[string]any{"email": "taken@example.com"}, WithLookup(lookup), Bind("id", 7)); err != nil {
		t.Errorf("own row should be excluded: %v", err)
	}
	if _, err := rules.Validate(ctx, map[string]any{"email": "free@example.com"}, WithLookup(lookup)); err != nil {
		t.Errorf("free value rejected: %v", err)
	}

	if _, err := rules.Validate(ctx, map[string]any{"email": "x@example.com"}); !apperr.IsKind(err, apperr.KindConfiguration) {
		t.Errorf("missing lookup error = %v", err)
	}
}

// ============================================================================
// Aggregation and output
// ============================================================================

func TestValidate_CollectsAllFailures(t *testing.T) {
	rules := MustCompile(map[string]string{
		"name":     "required|min:3",
		"email":    "required|email",
		"password": "required|min:8|max:10",
	})
	_, err := rules.Validate(context.Background(), map[string]any{
		"name":     "Al",
		"email":    "nope",
		"password": "",
	})
	errs := fieldErrors(t, err)
	if len(errs) != 3 {
		t.Fatalf("errors = %v, want all three fields", errs)
	}
	if errs["name"][0] != "The name field must be at least 3 characters." {
		t.Errorf("name message = %q", errs["name"][0])
	}
	if apperr.StatusOf(err) != 422 {
		t.Errorf("status = %d, want 422", apperr.StatusOf(err))
	}
}

func TestValidate_OutputSubset(t *testing.T) {
	rules := MustCompile(map[string]string{
		"name":  "string",
		"email": "required|email",
		"role":  "in:user,admin",
	})
	got, err := rules.Validate(context.Background(), map[string]any{
		"email":    "a@b.com",
		"name":     "Ada",
		"is_admin": true,
	})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	want := map[string]any{"email": "a@b.com", "name": "Ada"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Validate() = %v, want %v", got, want)
	}
}
