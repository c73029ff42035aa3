package fwdsplit

import "fmt"

// InputError reports a record that cannot be segmented, e.g. one without a text body.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// NewInputError creates a new InputError
func NewInputError(reason string) *InputError {
	return &InputError{Reason: reason}
}

// InternalConsistencyError reports that the boundary detector found a header cluster
// from which the cluster extractor recovered no field. It is a defect in the rules, not
// in the input.
type InternalConsistencyError struct {
	Depth int
	Line  int
	Text  string
}

func (e *InternalConsistencyError) Error() string {
	return fmt.Sprintf("header cluster at depth %d, line %d yielded no fields: %q", e.Depth, e.Line, e.Text)
}

// NewInternalConsistencyError creates a new InternalConsistencyError
func NewInternalConsistencyError(depth, line int, text string) *InternalConsistencyError {
	return &InternalConsistencyError{Depth: depth, Line: line, Text: text}
}
