// Package errors provides custom error types for the merge engine
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	// ErrCodeConfigurationFailure marks a requested strategy with no safe
	// default, such as a custom field strategy without a supplied merger.
	ErrCodeConfigurationFailure ErrorCode = "CONFIGURATION_FAILURE"

	// ErrCodeComparisonFailure marks values that could not be deep-compared
	// (cyclic structures, unsupported types). The engine treats the affected
	// field as changed rather than failing the resolution.
	ErrCodeComparisonFailure ErrorCode = "COMPARISON_FAILURE"

	// ErrCodeInternalFailure marks any other unexpected failure caught at
	// the resolve boundary and converted to the safe fallback.
	ErrCodeInternalFailure ErrorCode = "INTERNAL_FAILURE"

	// ErrCodeValidationFailure marks configuration that was rejected before
	// it could be registered.
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"

	// ErrCodeStorageFailure marks audit-trail persistence failures.
	ErrCodeStorageFailure ErrorCode = "STORAGE_FAILURE"
)

// Operation represents the engine operation in progress when the error occurred
type Operation string

const (
	OpClassify    Operation = "classify"
	OpDiff        Operation = "diff"
	OpResolve     Operation = "resolve"
	OpMergeField  Operation = "merge_field"
	OpMergeArray  Operation = "merge_array"
	OpRegister    Operation = "register"
	OpLoadConfig  Operation = "load_config"
	OpBuildConfig Operation = "build_config"
	OpAuditSave   Operation = "audit_save"
	OpAuditLoad   Operation = "audit_load"
	OpClose       Operation = "close"
)

// ResolveError represents an error raised while deciding or persisting a
// conflict resolution
type ResolveError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "resolver", "store")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Metadata for additional context (field names, entity types)
	Metadata map[string]interface{}
}

func (e *ResolveError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a ResolveError for a strategy or config
// gap the engine degrades around
func NewConfigurationError(op Operation, cause error) *ResolveError {
	return &ResolveError{
		Code:      ErrCodeConfigurationFailure,
		Op:        op,
		Component: "resolver",
		Err:       cause,
	}
}

// NewComparisonError creates a ResolveError for values that could not be
// deep-compared
func NewComparisonError(op Operation, cause error) *ResolveError {
	return &ResolveError{
		Code:      ErrCodeComparisonFailure,
		Op:        op,
		Component: "resolver",
		Err:       cause,
	}
}

// NewInternalError creates a ResolveError for an unexpected failure caught
// at the resolve boundary
func NewInternalError(op Operation, cause error) *ResolveError {
	return &ResolveError{
		Code:      ErrCodeInternalFailure,
		Op:        op,
		Component: "resolver",
		Err:       cause,
	}
}

// NewValidationError creates a ResolveError for rejected configuration
func NewValidationError(op Operation, cause error) *ResolveError {
	return &ResolveError{
		Code: ErrCodeValidationFailure,
		Op:   op,
		Err:  cause,
	}
}

// NewStorageError creates a ResolveError for audit-store failures
func NewStorageError(op Operation, cause error) *ResolveError {
	return &ResolveError{
		Code:      ErrCodeStorageFailure,
		Op:        op,
		Component: "store",
		Err:       cause,
		Retryable: true,
	}
}

// New creates a new ResolveError
func New(op Operation, err error) *ResolveError {
	return &ResolveError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new ResolveError with component information
func NewWithComponent(op Operation, component string, err error) *ResolveError {
	return &ResolveError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// NewRetryable creates a new retryable ResolveError
func NewRetryable(op Operation, err error) *ResolveError {
	return &ResolveError{
		Op:        op,
		Err:       err,
		Retryable: true,
	}
}

// IsRetryable checks if an error is a retryable ResolveError
func IsRetryable(err error) bool {
	var resolveErr *ResolveError
	if errors.As(err, &resolveErr) {
		return resolveErr.Retryable
	}
	return false
}

// CodeOf returns the ErrorCode carried by err, or the empty code when err
// is not a ResolveError
func CodeOf(err error) ErrorCode {
	var resolveErr *ResolveError
	if errors.As(err, &resolveErr) {
		return resolveErr.Code
	}
	return ""
}
