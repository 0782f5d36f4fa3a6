package domain

import "fmt"

// Error codes for command failures. Validation and invariant problems surface
// as error strings in a ValidationResult; CommandError is used where a single
// classified failure must cross the command boundary.
const (
	ErrCodeMissingParameter   = "MISSING_PARAMETER"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInvalidFormat      = "INVALID_FORMAT"
	ErrCodeInvariantViolation = "INVARIANT_VIOLATION"
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeUnexpected         = "UNEXPECTED"
)

// CommandError is a classified failure produced by the command pipeline.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *CommandError) Unwrap() error {
	return e.Cause
}

// NewMissingParameter reports a required parameter absent from the bag.
func NewMissingParameter(key string) *CommandError {
	return &CommandError{
		Code:    ErrCodeMissingParameter,
		Message: fmt.Sprintf("missing required parameter: %s", key),
	}
}

// NewNotFound reports a missing document, entry or referenced diagnosis.
func NewNotFound(kind, id string) *CommandError {
	return &CommandError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Cause:   ErrNotFound,
	}
}

// NewInvalidFormat reports a malformed field value such as a classification
// code that does not match the expected pattern or an unknown enum member.
func NewInvalidFormat(field, detail string) *CommandError {
	return &CommandError{
		Code:    ErrCodeInvalidFormat,
		Message: fmt.Sprintf("invalid %s: %s", field, detail),
	}
}

// NewInvariantViolation reports a medical-record invariant breach.
func NewInvariantViolation(detail string) *CommandError {
	return &CommandError{
		Code:    ErrCodeInvariantViolation,
		Message: detail,
	}
}

// NewPermissionDenied reports a session lacking the required permission.
func NewPermissionDenied(p Permission) *CommandError {
	return &CommandError{
		Code:    ErrCodePermissionDenied,
		Message: fmt.Sprintf("session lacks permission %s", p),
	}
}

// NewUnexpected wraps a runtime fault caught at the command boundary. The
// original cause is preserved for diagnostics.
func NewUnexpected(cause error) *CommandError {
	return &CommandError{
		Code:    ErrCodeUnexpected,
		Message: "unexpected failure during command execution",
		Cause:   cause,
	}
}
