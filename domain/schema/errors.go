package schema

import (
	"fmt"
	"strings"
)

// Stage identifies which side of a procedure failed validation.
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
)

// ValidationError carries the issues and the offending value of a failed
// input or output validation.
type ValidationError struct {
	Stage  Stage
	Issues []Issue
	Value  any
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.String()
	}
	return fmt.Sprintf("%s validation failed: %s", e.Stage, strings.Join(msgs, "; "))
}
