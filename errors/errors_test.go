package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestResolveError_Error(t *testing.T) {
	tests := []struct {
		name      string
		op        Operation
		component string
		code      ErrorCode
		err       error
		want      string
	}{
		{
			name:      "with component and code",
			op:        OpResolve,
			component: "resolver",
			code:      ErrCodeInternalFailure,
			err:       fmt.Errorf("unexpected state"),
			want:      "resolve operation failed in resolver component [INTERNAL_FAILURE]: unexpected state",
		},
		{
			name:      "with component no code",
			op:        OpAuditSave,
			component: "store",
			err:       fmt.Errorf("failed to connect"),
			want:      "audit_save operation failed in store component: failed to connect",
		},
		{
			name: "without component with code",
			op:   OpMergeField,
			code: ErrCodeComparisonFailure,
			err:  fmt.Errorf("cyclic value"),
			want: "merge_field operation failed [COMPARISON_FAILURE]: cyclic value",
		},
		{
			name: "without component or code",
			op:   OpDiff,
			err:  fmt.Errorf("bad input"),
			want: "diff operation failed: bad input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &ResolveError{
				Op:        tt.op,
				Component: tt.component,
				Err:       tt.err,
				Code:      tt.code,
			}

			if got := e.Error(); got != tt.want {
				t.Errorf("ResolveError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewConfigurationError(t *testing.T) {
	cause := fmt.Errorf("custom strategy without merger")
	resolveErr := NewConfigurationError(OpMergeField, cause)

	if resolveErr.Code != ErrCodeConfigurationFailure {
		t.Errorf("NewConfigurationError() Code = %v, want %v", resolveErr.Code, ErrCodeConfigurationFailure)
	}
	if resolveErr.Component != "resolver" {
		t.Errorf("NewConfigurationError() Component = %v, want %v", resolveErr.Component, "resolver")
	}
	if resolveErr.Err != cause {
		t.Errorf("NewConfigurationError() Err = %v, want %v", resolveErr.Err, cause)
	}
	if resolveErr.Retryable {
		t.Error("NewConfigurationError() created retryable error when it shouldn't")
	}
}

func TestNewComparisonError(t *testing.T) {
	cause := fmt.Errorf("nesting exceeds maximum depth")
	resolveErr := NewComparisonError(OpDiff, cause)

	if resolveErr.Code != ErrCodeComparisonFailure {
		t.Errorf("NewComparisonError() Code = %v, want %v", resolveErr.Code, ErrCodeComparisonFailure)
	}
	if resolveErr.Component != "resolver" {
		t.Errorf("NewComparisonError() Component = %v, want %v", resolveErr.Component, "resolver")
	}
	if resolveErr.Retryable {
		t.Error("NewComparisonError() created retryable error when it shouldn't")
	}
}

func TestNewInternalError(t *testing.T) {
	cause := fmt.Errorf("panic: nil map write")
	resolveErr := NewInternalError(OpResolve, cause)

	if resolveErr.Code != ErrCodeInternalFailure {
		t.Errorf("NewInternalError() Code = %v, want %v", resolveErr.Code, ErrCodeInternalFailure)
	}
	if resolveErr.Err != cause {
		t.Errorf("NewInternalError() Err = %v, want %v", resolveErr.Err, cause)
	}
}

func TestNewStorageError(t *testing.T) {
	cause := fmt.Errorf("storage failure")
	resolveErr := NewStorageError(OpAuditSave, cause)

	if resolveErr.Code != ErrCodeStorageFailure {
		t.Errorf("NewStorageError() Code = %v, want %v", resolveErr.Code, ErrCodeStorageFailure)
	}
	if resolveErr.Component != "store" {
		t.Errorf("NewStorageError() Component = %v, want %v", resolveErr.Component, "store")
	}
	if !resolveErr.Retryable {
		t.Error("NewStorageError() created non-retryable error")
	}
}

func TestNewValidationError(t *testing.T) {
	cause := fmt.Errorf("validation failed")
	resolveErr := NewValidationError(OpLoadConfig, cause)

	if resolveErr.Code != ErrCodeValidationFailure {
		t.Errorf("NewValidationError() Code = %v, want %v", resolveErr.Code, ErrCodeValidationFailure)
	}
	if resolveErr.Err != cause {
		t.Errorf("NewValidationError() Err = %v, want %v", resolveErr.Err, cause)
	}
	if resolveErr.Retryable {
		t.Error("NewValidationError() created retryable error when it shouldn't")
	}
}

func TestResolveError_Unwrap(t *testing.T) {
	originalErr := fmt.Errorf("original error")
	e := &ResolveError{
		Op:  OpResolve,
		Err: originalErr,
	}

	if unwrapped := e.Unwrap(); unwrapped != originalErr {
		t.Errorf("ResolveError.Unwrap() = %v, want %v", unwrapped, originalErr)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable resolve error",
			err:  NewRetryable(OpAuditSave, fmt.Errorf("temporary error")),
			want: true,
		},
		{
			name: "non-retryable resolve error",
			err:  New(OpResolve, fmt.Errorf("permanent error")),
			want: false,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("regular error"),
			want: false,
		},
		{
			name: "wrapped retryable error",
			err:  fmt.Errorf("wrapped: %w", NewRetryable(OpAuditSave, fmt.Errorf("temporary"))),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "comparison error",
			err:  NewComparisonError(OpDiff, fmt.Errorf("too deep")),
			want: ErrCodeComparisonFailure,
		},
		{
			name: "wrapped configuration error",
			err:  fmt.Errorf("wrapped: %w", NewConfigurationError(OpMergeField, fmt.Errorf("no merger"))),
			want: ErrCodeConfigurationFailure,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("regular error"),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	originalErr := fmt.Errorf("test error")

	t.Run("New", func(t *testing.T) {
		e := New(OpResolve, originalErr)
		if e.Op != OpResolve {
			t.Errorf("New() Op = %v, want %v", e.Op, OpResolve)
		}
		if e.Err != originalErr {
			t.Errorf("New() Err = %v, want %v", e.Err, originalErr)
		}
		if e.Retryable {
			t.Error("New() created retryable error when it shouldn't")
		}
	})

	t.Run("NewWithComponent", func(t *testing.T) {
		e := NewWithComponent(OpAuditSave, "store", originalErr)
		if e.Op != OpAuditSave {
			t.Errorf("NewWithComponent() Op = %v, want %v", e.Op, OpAuditSave)
		}
		if e.Component != "store" {
			t.Errorf("NewWithComponent() Component = %v, want %v", e.Component, "store")
		}
		if e.Err != originalErr {
			t.Errorf("NewWithComponent() Err = %v, want %v", e.Err, originalErr)
		}
	})
}

func TestErrorsAs(t *testing.T) {
	var resolveErr *ResolveError
	err := fmt.Errorf("wrapped: %w", New(OpResolve, fmt.Errorf("inner")))

	if !errors.As(err, &resolveErr) {
		t.Error("errors.As() failed to detect ResolveError")
	}

	if resolveErr.Op != OpResolve {
		t.Errorf("errors.As() Op = %v, want %v", resolveErr.Op, OpResolve)
	}
}
