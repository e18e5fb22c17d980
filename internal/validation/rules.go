// Package validation compiles pipe-delimited rule strings ("required|email")
// into typed checks once and applies them to decoded request bodies.
package validation

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/iliyamo/restkit/internal/apperr"
)

type kind int

const (
	kRequired kind = iota
	kNullable
	kString
	kInteger
	kNumeric
	kBoolean
	kEmail
	kURL
	kMin
	kMax
	kIn
	kConfirmed
	kUnique
)

type rule struct {
	kind   kind
	n      float64
	values []string

	table, column, except string
}

type fieldRules struct {
	rules    []rule
	required bool
	nullable bool
	numeric  bool
}

// Lookup checks whether a value is already stored. Implemented by
// record.UniqueLookup.
type Lookup interface {
	Exists(ctx context.Context, table, column string, value, except any) (bool, error)
}

// Rules is a compiled rule set. It is immutable and safe to share.
type Rules struct {
	fields map[string]fieldRules
}

// Compile parses every rule string. Unknown rules and malformed arguments
// are configuration failures.
func Compile(defs map[string]string) (Rules, error) {
	out := Rules{fields: make(map[string]fieldRules, len(defs))}
	for _, field := range sortedFields(defs) {
		fr := fieldRules{}
		for _, part := range strings.Split(defs[field], "|") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			r, err := parseRule(part)
			if err != nil {
				return Rules{}, apperr.Configuration("field %q: %s", field, err.Message)
			}
			switch r.kind {
			case kRequired:
				fr.required = true
			case kNullable:
				fr.nullable = true
			case kInteger, kNumeric:
				fr.numeric = true
			}
			fr.rules = append(fr.rules, r)
		}
		out.fields[field] = fr
	}
	return out, nil
}

// MustCompile is Compile for package-level rule tables.
func MustCompile(defs map[string]string) Rules {
	r, err := Compile(defs)
	if err != nil {
		panic(err)
	}
	return r
}

func parseRule(s string) (rule, *apperr.Error) {
	name, arg, hasArg := strings.Cut(s, ":")
	simple := map[string]kind{
		"required":  kRequired,
		"nullable":  kNullable,
		"string":    kString,
		"integer":   kInteger,
		"numeric":   kNumeric,
		"boolean":   kBoolean,
		"email":     kEmail,
		"url":       kURL,
		"confirmed": kConfirmed,
	}
	if k, ok := simple[name]; ok {
		if hasArg {
			return rule{}, apperr.Configuration("rule %q takes no argument", name)
		}
		return rule{kind: k}, nil
	}

	switch name {
	case "min", "max":
		n, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
		if !hasArg || err != nil {
			return rule{}, apperr.Configuration("rule %q needs a numeric argument", name)
		}
		k := kMin
		if name == "max" {
			k = kMax
		}
		return rule{kind: k, n: n}, nil
	case "in":
		values := splitArgs(arg)
		if len(values) == 0 {
			return rule{}, apperr.Configuration("rule \"in\" needs at least one value")
		}
		return rule{kind: kIn, values: values}, nil
	case "unique":
		args := splitArgs(arg)
		if len(args) < 2 || len(args) > 3 {
			return rule{}, apperr.Configuration("rule \"unique\" expects table,column[,except]")
		}
		r := rule{kind: kUnique, table: args[0], column: args[1]}
		if len(args) == 3 {
			r.except = args[2]
		}
		return r, nil
	}
	return rule{}, apperr.Configuration("unknown rule %q", name)
}

func splitArgs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedFields[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
