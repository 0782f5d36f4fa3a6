package domain

import (
	"fmt"
	"strings"
)

// ValidationResult accumulates errors and warnings raised while validating a
// command. Success is defined by the absence of errors; warnings flag
// inconsistent-but-not-invalid states and never block execution.
type ValidationResult struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidationResult returns an empty, successful validation result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{}
}

// AddError records a blocking validation failure.
func (v *ValidationResult) AddError(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// AddWarning records a non-blocking advisory.
func (v *ValidationResult) AddWarning(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// AddErrors appends pre-formatted error strings.
func (v *ValidationResult) AddErrors(errs ...string) {
	v.Errors = append(v.Errors, errs...)
}

// Merge folds another result's errors and warnings into this one.
func (v *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	v.Errors = append(v.Errors, other.Errors...)
	v.Warnings = append(v.Warnings, other.Warnings...)
}

// OK reports whether validation succeeded (zero errors).
func (v *ValidationResult) OK() bool {
	return len(v.Errors) == 0
}

// Summary joins all errors into a single message for logging.
func (v *ValidationResult) Summary() string {
	if v.OK() {
		return "validation passed"
	}
	return "validation failed: " + strings.Join(v.Errors, "; ")
}
