package pipeline

import (
	"errors"
	"fmt"
)

// ErrMalformed marks a line that could not be parsed. Such lines are counted
// and skipped.
var ErrMalformed = errors.New("malformed record")

// MalformedRecordError wraps the parse failure of a single line.
type MalformedRecordError struct {
	Err error
}

func (e *MalformedRecordError) Error() string {
	if e.Err == nil {
		return ErrMalformed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrMalformed, e.Err)
}

func (e *MalformedRecordError) Unwrap() []error {
	return []error{ErrMalformed, e.Err}
}

// Malformed wraps err so the driver treats it as a recoverable bad line.
func Malformed(err error) error {
	return &MalformedRecordError{Err: err}
}

// RunError is a fatal error that aborted a run, annotated with the source
// and the line being processed.
type RunError struct {
	Source string
	Line   int64
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("source %s failed at line %d: %v", e.Source, e.Line, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
