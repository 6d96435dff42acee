package schema

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FieldType is the JSON type a field must hold.
type FieldType string

const (
	TypeAny     FieldType = ""
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBool    FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// Field describes one property of an Object schema.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Default  any

	// Numeric bounds, checked when non-nil.
	Min *float64
	Max *float64

	// String length bounds, checked when positive.
	MinLength int
	MaxLength int

	Pattern string
	Enum    []string
}

// Object validates JSON objects decoded as map[string]any.
// String values are coerced to numbers and booleans where the field asks for
// them, so query-string input validates the same way as a JSON body.
type Object struct {
	Fields []Field

	// Strict rejects properties not listed in Fields.
	Strict bool

	// Optional accepts a nil value as an empty object.
	Optional bool
}

// Bound returns a pointer to v, for Field.Min and Field.Max.
func Bound(v float64) *float64 {
	return &v
}

// Validate implements Schema.
func (o Object) Validate(_ context.Context, value any) Result {
	var in map[string]any
	switch v := value.(type) {
	case map[string]any:
		in = v
	case nil:
		if !o.Optional && o.hasRequired() {
			return Invalid(Issue{Message: "expected object, got null"})
		}
		in = map[string]any{}
	default:
		return Invalid(Issue{Message: fmt.Sprintf("expected object, got %s", typeName(value))})
	}

	out := make(map[string]any, len(in))
	known := make(map[string]bool, len(o.Fields))
	var issues []Issue

	for _, f := range o.Fields {
		known[f.Name] = true
		v, ok := in[f.Name]
		if !ok || v == nil {
			if f.Default != nil {
				out[f.Name] = f.Default
				continue
			}
			if f.Required {
				issues = append(issues, Issue{Message: "field is required", Path: []any{f.Name}})
			}
			continue
		}

		coerced, msg := f.check(v)
		if msg != "" {
			issues = append(issues, Issue{Message: msg, Path: []any{f.Name}})
			continue
		}
		out[f.Name] = coerced
	}

	for name, v := range in {
		if known[name] {
			continue
		}
		if o.Strict {
			issues = append(issues, Issue{Message: fmt.Sprintf("unknown field '%s'", name), Path: []any{name}})
			continue
		}
		out[name] = v
	}

	if len(issues) > 0 {
		return Invalid(issues...)
	}
	return Valid(out)
}

func (o Object) hasRequired() bool {
	for _, f := range o.Fields {
		if f.Required && f.Default == nil {
			return true
		}
	}
	return false
}

// check validates v against f and returns the coerced value, or a message
// describing the failure.
func (f Field) check(v any) (any, string) {
	switch f.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Sprintf("expected string, got %s", typeName(v))
		}
		return f.checkString(s)

	case TypeNumber, TypeInteger:
		n, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Sprintf("expected %s, got %s", f.Type, typeName(v))
		}
		if f.Type == TypeInteger && n != float64(int64(n)) {
			return nil, "expected integer"
		}
		if f.Min != nil && n < *f.Min {
			return nil, fmt.Sprintf("must be at least %v", *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return nil, fmt.Sprintf("must be at most %v", *f.Max)
		}
		if f.Type == TypeInteger {
			return int64(n), ""
		}
		return n, ""

	case TypeBool:
		switch b := v.(type) {
		case bool:
			return b, ""
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, "expected boolean"
			}
			return parsed, ""
		}
		return nil, fmt.Sprintf("expected boolean, got %s", typeName(v))

	case TypeObject:
		if _, ok := v.(map[string]any); !ok {
			return nil, fmt.Sprintf("expected object, got %s", typeName(v))
		}
	case TypeArray:
		if _, ok := v.([]any); !ok {
			return nil, fmt.Sprintf("expected array, got %s", typeName(v))
		}
	}
	return v, ""
}

func (f Field) checkString(s string) (any, string) {
	if f.MinLength > 0 && len(s) < f.MinLength {
		return nil, fmt.Sprintf("must be at least %d characters", f.MinLength)
	}
	if f.MaxLength > 0 && len(s) > f.MaxLength {
		return nil, fmt.Sprintf("must be at most %d characters", f.MaxLength)
	}
	if f.Pattern != "" {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return nil, fmt.Sprintf("invalid pattern %q", f.Pattern)
		}
		if !re.MatchString(s) {
			return nil, fmt.Sprintf("must match pattern %s", f.Pattern)
		}
	}
	if len(f.Enum) > 0 {
		for _, e := range f.Enum {
			if s == e {
				return s, ""
			}
		}
		return nil, fmt.Sprintf("must be one of: %s", strings.Join(f.Enum, ", "))
	}
	return s, ""
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}
