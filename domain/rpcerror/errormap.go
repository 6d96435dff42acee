package rpcerror

import (
	"context"
	"fmt"
	"sort"

	"github.com/artpar/procgate/domain/schema"
)

// ErrorMapItem declares one error a procedure may return.
// Zero Status and Message fall back to the code's conventional values.
type ErrorMapItem struct {
	Status  int
	Message string
	Data    schema.Schema
}

// ErrorMap declares the errors a procedure may return, by code.
type ErrorMap map[Code]ErrorMapItem

// Validate checks that every declared status is an error status.
func (m ErrorMap) Validate() error {
	for _, code := range m.Codes() {
		status := FallbackStatus(code, m[code].Status)
		if !ValidStatus(status) {
			return fmt.Errorf("%w: %s has status %d", ErrInvalidStatus, code, status)
		}
	}
	return nil
}

// Codes returns the declared codes in sorted order.
func (m ErrorMap) Codes() []Code {
	codes := make([]Code, 0, len(m))
	for c := range m {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// MergeErrorMap returns a new map holding base overridden by extension,
// per code.
func MergeErrorMap(base, extension ErrorMap) ErrorMap {
	out := make(ErrorMap, len(base)+len(extension))
	for c, item := range base {
		out[c] = item
	}
	for c, item := range extension {
		out[c] = item
	}
	return out
}

// ValidateAgainstMap returns a copy of err whose Defined flag reflects the
// map: a code missing from the map, or declared with a different status, is
// undeclared; a declared code without a data schema is defined; a declared
// code with a data schema is defined only when its data validates, in which
// case the validated data replaces the original.
func ValidateAgainstMap(ctx context.Context, m ErrorMap, err *Error) *Error {
	out := err.clone()

	item, ok := m[err.Code]
	if !ok || FallbackStatus(err.Code, item.Status) != err.Status {
		out.Defined = false
		return out
	}

	if item.Data == nil {
		out.Defined = true
		return out
	}

	res := item.Data.Validate(ctx, err.Data)
	if !res.OK() {
		out.Defined = false
		return out
	}
	out.Defined = true
	out.Data = res.Value
	return out
}
