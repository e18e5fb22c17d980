package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/restkit/internal/apperr"
)

var formats = validator.New()

type options struct {
	lookup Lookup
	binds  map[string]string
}

type Option func(*options)

// WithLookup supplies the store used by unique rules.
func WithLookup(l Lookup) Option { return func(o *options) { o.lookup = l } }

// Bind fills "{name}" placeholders in rule arguments, e.g.
// unique:users,email,{id} with Bind("id", 5).
func Bind(name string, value any) Option {
	return func(o *options) {
		if o.binds == nil {
			o.binds = map[string]string{}
		}
		o.binds["{"+name+"}"] = fmt.Sprint(value)
	}
}

// Validate checks data and returns the ruled fields present in data. Every
// failure across every field is collected into one validation error.
func (r Rules) Validate(ctx context.Context, data map[string]any, opts ...Option) (map[string]any, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	errs := map[string][]string{}
	out := map[string]any{}
	for _, field := range sortedFields(r.fields) {
		fr := r.fields[field]
		value, present := data[field]
		if present {
			out[field] = value
		}

		if isEmpty(value) {
			if fr.required {
				errs[field] = append(errs[field], fmt.Sprintf("The %s field is required.", label(field)))
			}
			continue
		}

		for _, ru := range fr.rules {
			msg, err := check(ctx, o, fr, field, value, data, ru)
			if err != nil {
				return nil, err
			}
			if msg != "" {
				errs[field] = append(errs[field], msg)
			}
		}
	}

	if len(errs) > 0 {
		return nil, apperr.Validation(errs)
	}
	return out, nil
}

func check(ctx context.Context, o *options, fr fieldRules, field string, value any, data map[string]any, ru rule) (string, error) {
	name := label(field)
	switch ru.kind {
	case kRequired, kNullable:
		return "", nil

	case kString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("The %s field must be a string.", name), nil
		}

	case kInteger:
		if !isInteger(value) {
			return fmt.Sprintf("The %s field must be an integer.", name), nil
		}

	case kNumeric:
		if _, ok := toFloat(value); !ok {
			return fmt.Sprintf("The %s field must be a number.", name), nil
		}

	case kBoolean:
		if !isBoolean(value) {
			return fmt.Sprintf("The %s field must be true or false.", name), nil
		}

	case kEmail:
		s, ok := value.(string)
		if !ok || formats.Var(s, "email") != nil {
			return fmt.Sprintf("The %s field must be a valid email address.", name), nil
		}

	case kURL:
		s, ok := value.(string)
		if !ok || formats.Var(s, "url") != nil {
			return fmt.Sprintf("The %s field must be a valid URL.", name), nil
		}

	case kMin, kMax:
		return sizeCheck(fr, name, value, ru), nil

	case kIn:
		s := fmt.Sprint(value)
		for _, v := range ru.values {
			if v == s {
				return "", nil
			}
		}
		return fmt.Sprintf("The selected %s is invalid.", name), nil

	case kConfirmed:
		if other, ok := data[field+"_confirmation"]; !ok || fmt.Sprint(other) != fmt.Sprint(value) {
			return fmt.Sprintf("The %s field confirmation does not match.", name), nil
		}

	case kUnique:
		if o.lookup == nil {
			return "", apperr.Configuration("unique rule on %q needs a lookup", field)
		}
		var except any
		if ru.except != "" {
			e := ru.except
			for ph, v := range o.binds {
				e = strings.ReplaceAll(e, ph, v)
			}
			if !strings.HasPrefix(e, "{") {
				except = e
			}
		}
		taken, err := o.lookup.Exists(ctx, ru.table, ru.column, value, except)
		if err != nil {
			return "", err
		}
		if taken {
			return fmt.Sprintf("The %s has already been taken.", name), nil
		}
	}
	return "", nil
}

// sizeCheck compares values for numeric fields, rune length for strings and
// element count for collections.
func sizeCheck(fr fieldRules, name string, value any, ru rule) string {
	bound := strconv.FormatFloat(ru.n, 'f', -1, 64)
	var size float64
	var unit string

	if f, ok := toFloat(value); ok && (fr.numeric || !isString(value)) {
		size = f
	} else if s, ok := value.(string); ok {
		size = float64(utf8.RuneCountInString(s))
		unit = " characters"
	} else if n, ok := length(value); ok {
		size = float64(n)
		unit = " items"
	} else {
		return ""
	}

	if ru.kind == kMin && size < ru.n {
		if unit == " items" {
			return fmt.Sprintf("The %s field must have at least %s items.", name, bound)
		}
		return fmt.Sprintf("The %s field must be at least %s%s.", name, bound, unit)
	}
	if ru.kind == kMax && size > ru.n {
		if unit == " items" {
			return fmt.Sprintf("The %s field must not have more than %s items.", name, bound)
		}
		return fmt.Sprintf("The %s field must not be greater than %s%s.", name, bound, unit)
	}
	return ""
}

// isEmpty is the required rule: nil, "", whitespace-only strings and empty
// collections are empty; "0", 0 and false are not.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	if n, ok := length(v); ok {
		return n == 0
	}
	return false
}

func length(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	return 0, false
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case bool:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case json.Number:
		_, err := n.Int64()
		return err == nil
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return err == nil
	case float32, float64:
		f, _ := toFloat(v)
		return f == math.Trunc(f)
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isBoolean(v any) bool {
	switch b := v.(type) {
	case bool:
		return true
	case string:
		switch strings.ToLower(b) {
		case "0", "1", "true", "false":
			return true
		}
	case json.Number:
		return b == "0" || b == "1"
	default:
		if f, ok := toFloat(v); ok {
			return f == 0 || f == 1
		}
	}
	return false
}

func label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}
