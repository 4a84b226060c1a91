package engine

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrEmptyRace is returned by Race when called with no entries.
var ErrEmptyRace = errors.New("race has no entries")

// ConfigError represents an invalid definition detected before a session
// starts.
//
// Configuration errors include:
//   - Duplicate tag: two invariants share a tag
//   - Reserved tag: an invariant uses the primary race tag
//   - Missing saga: no task was supplied
//
// A ConfigError never reaches a running session.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Message is a human-readable description.
	Message string

	// Tag is the offending invariant tag, if any.
	Tag string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeDuplicateTag indicates two invariants share a tag.
	ErrCodeDuplicateTag ConfigErrorCode = "DUPLICATE_TAG"

	// ErrCodeReservedTag indicates an invariant uses PrimaryTag.
	ErrCodeReservedTag ConfigErrorCode = "RESERVED_TAG"

	// ErrCodeEmptyTag indicates an invariant tag is blank after normalization.
	ErrCodeEmptyTag ConfigErrorCode = "EMPTY_TAG"

	// ErrCodeMissingSaga indicates no task was supplied.
	ErrCodeMissingSaga ConfigErrorCode = "MISSING_SAGA"

	// ErrCodeMissingCondition indicates a reactor has no transition condition.
	ErrCodeMissingCondition ConfigErrorCode = "MISSING_CONDITION"

	// ErrCodeNilPredicate indicates a nil predicate or callback was supplied.
	ErrCodeNilPredicate ConfigErrorCode = "NIL_PREDICATE"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("%s: %s (tag=%q)", e.Code, e.Message, e.Tag)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigError returns true if err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// HasConfigCode returns true if err wraps a ConfigError with the given code.
func HasConfigCode(err error, code ConfigErrorCode) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

func newConfigError(code ConfigErrorCode, tag, format string, args ...any) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Tag:     tag,
	}
}

// PredicateError wraps a failure raised inside a caller-supplied predicate,
// transition condition or argument function. It aborts the enclosing wait,
// loop or race.
type PredicateError struct {
	// Tag names the predicate: an invariant tag, or "predicate", "when",
	// "until", "args".
	Tag string
	Err error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("predicate %s: %v", e.Tag, e.Err)
}

func (e *PredicateError) Unwrap() error { return e.Err }

// IsPredicateError returns true if err is, or wraps, a PredicateError.
func IsPredicateError(err error) bool {
	var pe *PredicateError
	return errors.As(err, &pe)
}

// TaskRole identifies which task of a session failed.
type TaskRole string

const (
	RolePrimary   TaskRole = "primary"
	RoleReaction  TaskRole = "reaction"
	RoleViolation TaskRole = "violation"
)

// TaskError wraps a failure returned by a primary task, a forked reaction or
// a violation callback.
type TaskError struct {
	Role TaskRole
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s task: %v", e.Role, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// IsTaskError returns true if err wraps a TaskError with the given role.
func IsTaskError(err error, role TaskRole) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Role == role
	}
	return false
}

// PanicError carries a panic recovered from caller-supplied code.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}
