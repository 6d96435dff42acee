// Package schema defines the validation capability procedures consume.
// A Schema validates a value and may return a transformed value; issues are
// reported as data, never as Go errors.
package schema

import (
	"context"
	"fmt"
	"strings"
)

// Issue is a single validation failure.
type Issue struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

func (i Issue) String() string {
	if len(i.Path) == 0 {
		return i.Message
	}
	parts := make([]string, len(i.Path))
	for k, p := range i.Path {
		parts[k] = fmt.Sprint(p)
	}
	return strings.Join(parts, ".") + ": " + i.Message
}

// Result is the outcome of a validation. An empty Issues slice means success.
type Result struct {
	Value  any
	Issues []Issue
}

// OK reports whether validation succeeded.
func (r Result) OK() bool {
	return len(r.Issues) == 0
}

// Schema validates and optionally transforms a value.
type Schema interface {
	Validate(ctx context.Context, value any) Result
}

// Func adapts a function to the Schema interface.
type Func func(ctx context.Context, value any) Result

// Validate calls f.
func (f Func) Validate(ctx context.Context, value any) Result {
	return f(ctx, value)
}

// Validate runs s against value. A nil schema accepts any value unchanged.
func Validate(ctx context.Context, s Schema, value any) Result {
	if s == nil {
		return Result{Value: value}
	}
	return s.Validate(ctx, value)
}

// Valid returns a successful result.
func Valid(value any) Result {
	return Result{Value: value}
}

// Invalid returns a failed result.
func Invalid(issues ...Issue) Result {
	return Result{Issues: issues}
}

// Any accepts every value.
var Any Schema = Func(func(_ context.Context, value any) Result {
	return Result{Value: value}
})
