package schema

import (
	"context"
	"errors"

	"github.com/go-viper/mapstructure/v2"
)

// Decode returns a schema that converts decoded JSON (maps, slices and
// scalars) into a T using its json tags. Strings are weakly converted to
// numbers and booleans.
func Decode[T any]() Schema {
	return Func(func(_ context.Context, value any) Result {
		if v, ok := value.(T); ok {
			return Valid(v)
		}
		if p, ok := value.(*T); ok && p != nil {
			return Valid(*p)
		}

		var out T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &out,
			TagName:          "json",
			WeaklyTypedInput: true,
			Squash:           true,
		})
		if err != nil {
			return Invalid(Issue{Message: err.Error()})
		}
		if err := dec.Decode(value); err != nil {
			return Invalid(decodeIssues(err)...)
		}
		return Valid(out)
	})
}

func decodeIssues(err error) []Issue {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var issues []Issue
		for _, e := range joined.Unwrap() {
			issues = append(issues, decodeIssues(e)...)
		}
		if len(issues) > 0 {
			return issues
		}
	}
	return []Issue{{Message: err.Error()}}
}

// Chain runs schemas in order, feeding each one the previous value.
// Validation stops at the first schema reporting issues.
func Chain(schemas ...Schema) Schema {
	return Func(func(ctx context.Context, value any) Result {
		res := Valid(value)
		for _, s := range schemas {
			res = Validate(ctx, s, res.Value)
			if !res.OK() {
				return res
			}
		}
		return res
	})
}
