// SPDX-License-Identifier: Apache-2.0

package jsonmerge

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple error checking with [errors.Is].
// For detailed error information, use [errors.As] with the typed errors below.
var (
	// ErrInvalidOptions indicates invalid merge options were provided.
	ErrInvalidOptions = errors.New("invalid options")
	// ErrMalformedInput indicates a document is not valid JSON.
	ErrMalformedInput = errors.New("malformed input")
	// ErrTooDeep indicates a document nests deeper than the configured limit.
	ErrTooDeep = errors.New("document nested too deeply")
	// ErrUnsupportedValue indicates a decoded value has no JSON representation.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// MalformedInputError is returned when a document cannot be parsed as JSON.
type MalformedInputError struct {
	// Err is the underlying error returned by the decoder.
	Err error
	// DocIndex tells which document the error occurred in.
	DocIndex int
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed document at position %d: %v", e.DocIndex, e.Err)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}

// DepthError is returned when a document exceeds [ParseOptions.MaxDepth].
type DepthError struct {
	// MaxDepth is the limit that was exceeded.
	MaxDepth int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("document nests deeper than %d levels", e.MaxDepth)
}

func (e *DepthError) Is(target error) bool {
	return target == ErrTooDeep
}

// UnsupportedValueError is returned by [FromAny] for values that have no
// JSON representation, such as channels or non-finite numbers.
type UnsupportedValueError struct {
	// Value is the offending value.
	Value any
	// Path is where in the tree the value occurred.
	Path string
}

func (e *UnsupportedValueError) Error() string {
	path := e.Path
	if path == "" {
		path = "(root)"
	}
	return fmt.Sprintf("unsupported value %v (type %T) at path %s", e.Value, e.Value, path)
}

func (e *UnsupportedValueError) Is(target error) bool {
	return target == ErrUnsupportedValue
}
