// Package cueschema validates procedure input and output against CUE
// definitions.
package cueschema

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/artpar/procgate/domain/schema"
)

// Schema is a compiled CUE definition. Validation unifies the value with
// the definition, so defaults declared in CUE are applied to the result.
type Schema struct {
	// cue.Context is not safe for concurrent use.
	mu  sync.Mutex
	ctx *cue.Context
	def cue.Value
	// prefix is stripped from issue paths reported under the definition.
	prefix []string
}

// Compile compiles src and selects the definition at path, e.g. "#Planet".
func Compile(src, path string) (*Schema, error) {
	ctx := cuecontext.New()

	v := ctx.CompileString(src, cue.Filename("schema.cue"))
	if v.Err() != nil {
		return nil, fmt.Errorf("compile schema: %w", v.Err())
	}
	def := v.LookupPath(cue.ParsePath(path))
	if !def.Exists() {
		return nil, fmt.Errorf("schema definition %s not found", path)
	}
	if def.Err() != nil {
		return nil, fmt.Errorf("schema definition %s: %w", path, def.Err())
	}
	var prefix []string
	for _, sel := range cue.ParsePath(path).Selectors() {
		prefix = append(prefix, sel.String())
	}
	return &Schema{ctx: ctx, def: def, prefix: prefix}, nil
}

// MustCompile is like Compile but panics on error. It is meant for schemas
// declared as package variables.
func MustCompile(src, path string) *Schema {
	s, err := Compile(src, path)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate implements schema.Schema.
func (s *Schema) Validate(_ context.Context, value any) schema.Result {
	// Round-trip through JSON so whole numbers decoded as float64 unify
	// with CUE int constraints.
	raw, err := json.Marshal(value)
	if err != nil {
		return schema.Invalid(schema.Issue{Message: "value is not representable: " + err.Error()})
	}
	expr, err := cuejson.Extract("input", raw)
	if err != nil {
		return schema.Invalid(schema.Issue{Message: err.Error()})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unified := s.def.Unify(s.ctx.BuildExpr(expr))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return schema.Invalid(issues(err, s.prefix)...)
	}

	var out any
	if err := unified.Decode(&out); err != nil {
		return schema.Invalid(issues(err, s.prefix)...)
	}
	return schema.Valid(out)
}

// issues converts CUE errors into schema issues with JSON-style paths.
func issues(err error, prefix []string) []schema.Issue {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []schema.Issue{{Message: err.Error()}}
	}

	out := make([]schema.Issue, 0, len(errs))
	seen := make(map[string]bool, len(errs))
	for _, e := range errs {
		segs := trimPrefix(cueerrors.Path(e), prefix)
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)

		key := strings.Join(segs, ".") + "\x00" + msg
		if seen[key] {
			continue
		}
		seen[key] = true

		path := make([]any, len(segs))
		for i, seg := range segs {
			if n, err := strconv.Atoi(seg); err == nil {
				path[i] = n
			} else {
				path[i] = seg
			}
		}
		out = append(out, schema.Issue{Message: msg, Path: path})
	}
	return out
}

func trimPrefix(segs, prefix []string) []string {
	if len(segs) < len(prefix) {
		return segs
	}
	for i, p := range prefix {
		if segs[i] != p {
			return segs
		}
	}
	return segs[len(prefix):]
}
