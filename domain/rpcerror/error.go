package rpcerror

import (
	"context"
	"errors"
	"fmt"
)

// Error is the normalized error envelope.
// Defined reports that code, status and data were checked against the
// error map of the procedure that produced it.
type Error struct {
	Code    Code   `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Defined bool   `json:"defined"`
	Cause   error  `json:"-"`
}

// Options configures a new Error. Zero values fall back to the code's
// conventional status and message.
type Options struct {
	Status  int
	Message string
	Data    any
	Defined bool
	Cause   error
}

// ErrInvalidStatus is returned when an error status is outside [400, 599].
var ErrInvalidStatus = errors.New("error status must be in range 400-599")

// New constructs an Error.
func New(code Code, opts Options) (*Error, error) {
	status := FallbackStatus(code, opts.Status)
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: %s has status %d", ErrInvalidStatus, code, status)
	}
	return &Error{
		Code:    code,
		Status:  status,
		Message: FallbackMessage(code, opts.Message),
		Data:    opts.Data,
		Defined: opts.Defined,
		Cause:   opts.Cause,
	}, nil
}

// Must is like New but panics on an invalid status.
func Must(code Code, opts Options) *Error {
	e, err := New(code, opts)
	if err != nil {
		panic(err)
	}
	return e
}

// Make constructs an undeclared error with the code's conventional status.
func Make(code Code, message string) *Error {
	return Must(code, Options{Message: message})
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// clone returns a shallow copy.
func (e *Error) clone() *Error {
	c := *e
	return &c
}

// From normalizes any error into an *Error. Errors already carrying an
// *Error in their chain are returned as that value; context cancellation
// and deadlines map to CLIENT_CLOSED_REQUEST and TIMEOUT; anything else
// becomes an undeclared INTERNAL_SERVER_ERROR with err as its cause.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, context.Canceled):
		return Must(CodeClientClosedRequest, Options{Cause: err})
	case errors.Is(err, context.DeadlineExceeded):
		return Must(CodeTimeout, Options{Cause: err})
	}

	return Must(CodeInternalServerError, Options{
		Message: "Internal server error",
		Cause:   err,
	})
}

// FromPanic converts a recovered panic value into an *Error.
func FromPanic(v any) *Error {
	if err, ok := v.(error); ok {
		return From(fmt.Errorf("panic: %w", err))
	}
	return From(fmt.Errorf("panic: %v", v))
}

// IsDefined reports whether err carries a defined *Error.
func IsDefined(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Defined
}

// GetCode extracts the error code, or "" when err is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
