package procedure

import (
	"context"

	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/artpar/procgate/domain/schema"
)

// ExecuteOptions carries per-call state into Execute.
type ExecuteOptions struct {
	Context Context
	Path    []string
}

// Execute runs p's middlewares, validations and handler for one call.
// Middlewares run in order going down and in reverse coming back up. Input
// is validated on entering position InputValidationIndex and output on
// leaving position OutputValidationIndex. Errors are returned as produced;
// use Call to get them normalized against the error map.
func Execute(ctx context.Context, p *Procedure, input any, opts ExecuteOptions) (any, error) {
	if p.handler == nil {
		return nil, &rpcerror.ConfigurationError{Path: opts.Path, Reason: "procedure has no handler"}
	}

	e := &executor{
		p:      p,
		path:   opts.Path,
		errors: rpcerror.BuildConstructors(p.errorMap),
		inIdx:  clamp(p.inputValidationIndex, len(p.middlewares)),
		outIdx: clamp(p.outputValidationIndex, len(p.middlewares)),
	}

	initial := opts.Context
	if initial == nil {
		initial = Context{}
	}
	return e.next(ctx, 0, initial, input)
}

type executor struct {
	p      *Procedure
	path   []string
	errors rpcerror.Constructors
	inIdx  int
	outIdx int
}

func (e *executor) next(ctx context.Context, index int, cc Context, input any) (any, error) {
	current := input
	if index == e.inIdx {
		validated, err := validateInput(ctx, e.p.input, input)
		if err != nil {
			return nil, err
		}
		current = validated
	}

	var (
		out any
		err error
	)
	if index < len(e.p.middlewares) {
		var res Result
		res, err = e.p.middlewares[index].Handle(ctx, current, MiddlewareOptions{
			Context:   cc,
			Path:      e.path,
			Procedure: e.p,
			Errors:    e.errors,
			Next: func(ctx context.Context, delta Context) (Result, error) {
				out, err := e.next(ctx, index+1, cc.Merge(delta), current)
				if err != nil {
					return Result{}, err
				}
				return Result{Output: out, Context: delta}, nil
			},
		})
		out = res.Output
	} else {
		out, err = e.p.handler(ctx, current, HandlerOptions{
			Context:   cc,
			Path:      e.path,
			Procedure: e.p,
			Errors:    e.errors,
		})
	}
	if err != nil {
		return nil, err
	}

	if index == e.outIdx {
		return validateOutput(ctx, e.p.output, out)
	}
	return out, nil
}

func validateInput(ctx context.Context, s schema.Schema, input any) (any, error) {
	if s == nil {
		return input, nil
	}
	res := s.Validate(ctx, input)
	if res.OK() {
		return res.Value, nil
	}
	return nil, rpcerror.Must(rpcerror.CodeBadRequest, rpcerror.Options{
		Message: "Input validation failed",
		Data:    map[string]any{"issues": res.Issues},
		Cause:   &schema.ValidationError{Stage: schema.StageInput, Issues: res.Issues, Value: input},
	})
}

func validateOutput(ctx context.Context, s schema.Schema, output any) (any, error) {
	if s == nil {
		return output, nil
	}
	res := s.Validate(ctx, output)
	if res.OK() {
		return res.Value, nil
	}
	return nil, rpcerror.Must(rpcerror.CodeInternalServerError, rpcerror.Options{
		Message: "Output validation failed",
		Cause:   &schema.ValidationError{Stage: schema.StageOutput, Issues: res.Issues, Value: output},
	})
}

func clamp(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

// Call executes p and normalizes any failure: the error is converted to an
// *rpcerror.Error and validated against p's error map, so Defined can be
// trusted relative to this procedure. Panics are recovered the same way.
// A non-nil error is always an *rpcerror.Error.
func Call(ctx context.Context, p *Procedure, input any, opts ExecuteOptions) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = rpcerror.ValidateAgainstMap(ctx, p.errorMap, rpcerror.FromPanic(r))
		}
	}()

	out, err = Execute(ctx, p, input, opts)
	if err != nil {
		return nil, rpcerror.ValidateAgainstMap(ctx, p.errorMap, rpcerror.From(err))
	}
	return out, nil
}
