package surrogate

import (
	"errors"
	"fmt"
	"strings"
)

//////
// Sentinel errors.
//////

var (
	// ErrInvalidInput is returned for empty, ragged or otherwise malformed
	// training data or candidates.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedShape is returned when a tensor does not have the layout
	// an operation requires, e.g. a multi-output target.
	ErrUnsupportedShape = errors.New("unsupported shape")

	// ErrUnsupportedConfig is returned for model params a family does not
	// accept, and for search spaces a family cannot handle.
	ErrUnsupportedConfig = errors.New("unsupported configuration")

	// ErrNotFitted is returned when a posterior is requested before Fit.
	ErrNotFitted = errors.New("surrogate has not been fitted")
)

//////
// Typed errors.
//////

// ShapeError reports a tensor whose shape is not what an operation expects.
// It matches both ErrUnsupportedShape and ErrInvalidInput with errors.Is.
type ShapeError struct {
	// Op is the operation that rejected the tensor.
	Op string

	// Shape is the offending shape.
	Shape []int

	// Want describes the expected layout.
	Want string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: shape %v not supported, want %s", e.Op, e.Shape, e.Want)
}

// Unwrap exposes both sentinels.
func (e *ShapeError) Unwrap() []error {
	return []error{ErrUnsupportedShape, ErrInvalidInput}
}

// ParamError reports model params a family does not accept.
type ParamError struct {
	// Family the params were given for.
	Family Family

	// Keys are the offending param names, sorted.
	Keys []string

	// NoParams is set for families that accept no params at all.
	NoParams bool
}

func (e *ParamError) Error() string {
	if e.NoParams {
		return fmt.Sprintf("%s does not accept model params, got: %s", e.Family, strings.Join(e.Keys, ", "))
	}

	return fmt.Sprintf("%s: unsupported model params: %s", e.Family, strings.Join(e.Keys, ", "))
}

func (e *ParamError) Unwrap() error {
	return ErrUnsupportedConfig
}
