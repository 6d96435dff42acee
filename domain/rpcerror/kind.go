package rpcerror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/procgate/domain/schema"
)

// ConfigurationError reports a matched path that resolves to something that
// cannot be executed: a lazy node with invalid content, a failing loader, or
// a contract stub with no implementation.
type ConfigurationError struct {
	Path   []string
	Reason string
	Cause  error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error at %q: %s", strings.Join(e.Path, "."), e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Kind classifies an error for transports and metrics.
type Kind string

const (
	KindNone             Kind = ""
	KindInputValidation  Kind = "input_validation"
	KindOutputValidation Kind = "output_validation"
	KindDeclared         Kind = "declared"
	KindUndeclared       Kind = "undeclared"
	KindConfiguration    Kind = "configuration"
)

// KindOf classifies err.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var cfg *ConfigurationError
	if errors.As(err, &cfg) {
		return KindConfiguration
	}

	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		if ve.Stage == schema.StageInput {
			return KindInputValidation
		}
		return KindOutputValidation
	}

	if IsDefined(err) {
		return KindDeclared
	}
	return KindUndeclared
}
