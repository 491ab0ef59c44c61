package schema

import (
	"errors"
	"fmt"
)

// Errors returned by schema definition and resolution.
var (
	// ErrCyclicSchema indicates a schema reachably contains itself.
	ErrCyclicSchema = errors.New("cyclic schema")

	// ErrNoDefaultValue indicates a scalar property with neither a default
	// nor the optional flag.
	ErrNoDefaultValue = errors.New("no default value")

	// ErrTypeMismatch indicates a value does not satisfy a property type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnknownSchema indicates a section refers to an undefined schema.
	ErrUnknownSchema = errors.New("unknown schema")

	// ErrInvalidName indicates a schema or property name that cannot be
	// used as a key path segment.
	ErrInvalidName = errors.New("invalid name")

	// ErrDuplicate indicates a schema or property name was declared twice.
	ErrDuplicate = errors.New("duplicate name")

	// ErrValidation indicates a value is outside a property's constraints.
	ErrValidation = errors.New("validation failed")
)

// TypeError is returned when a value cannot be converted to a property type.
type TypeError struct {
	// Path is the key path, when known.
	Path string
	// Expected is the expected type name.
	Expected string
	// Actual describes the offending value.
	Actual string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Actual)
	}
	return fmt.Sprintf("type mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// Is implements error matching for TypeError.
func (e *TypeError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// WithPath returns err with the key path filled in if err is a TypeError.
func WithPath(err error, path string) error {
	var te *TypeError
	if errors.As(err, &te) && te.Path == "" {
		return &TypeError{Path: path, Expected: te.Expected, Actual: te.Actual}
	}
	return err
}

// CycleError describes the chain of schemas forming a cycle.
type CycleError struct {
	// Chain lists schema names from the first repeated schema back to itself.
	Chain []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	msg := "cyclic schema: "
	for i, name := range e.Chain {
		if i > 0 {
			msg += " -> "
		}
		msg += name
	}
	return msg
}

// Is implements error matching for CycleError.
func (e *CycleError) Is(target error) bool {
	return target == ErrCyclicSchema
}
