package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeCatalog    = "CATALOG_ERROR"
	ErrCodeExpression = "EXPRESSION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeProcess    = "PROCESS_ERROR"
	ErrCodeSeal       = "SEAL_ERROR"
	ErrCodeStore      = "STORE_ERROR"
)

// OutpostError is the structured error type for all outpost operations.
type OutpostError struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Cause       error          `json:"-"`
}

func (e *OutpostError) Error() string {
	if e.ExecutionID != "" {
		return fmt.Sprintf("[%s] execution %s: %s", e.Code, e.ExecutionID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *OutpostError) Unwrap() error {
	return e.Cause
}

// NewError creates a new OutpostError.
func NewError(code, message string) *OutpostError {
	return &OutpostError{Code: code, Message: message}
}

// NewErrorf creates a new OutpostError with a formatted message.
func NewErrorf(code, format string, args ...any) *OutpostError {
	return &OutpostError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithExecution attaches an execution ID to the error.
func (e *OutpostError) WithExecution(id string) *OutpostError {
	e.ExecutionID = id
	return e
}

// WithCause attaches an underlying cause.
func (e *OutpostError) WithCause(err error) *OutpostError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *OutpostError) WithDetails(details map[string]any) *OutpostError {
	e.Details = details
	return e
}
