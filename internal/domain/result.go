package domain

// OperationResult is the uniform envelope returned by every command. It
// carries a human-readable message, an optional payload, and for validation
// failures the structured list of violated rules.
type OperationResult struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Payload  any      `json:"payload,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Cause    error    `json:"-"`
}

// OK builds a successful result with an optional payload.
func OK(message string, payload any) *OperationResult {
	return &OperationResult{
		Success: true,
		Message: message,
		Payload: payload,
	}
}

// Fail builds a failed result, preserving the underlying cause for
// diagnostics. The cause never reaches callers as a raised error.
func Fail(message string, cause error) *OperationResult {
	r := &OperationResult{
		Success: false,
		Message: message,
		Cause:   cause,
	}
	if cause != nil {
		r.Errors = append(r.Errors, cause.Error())
	}
	return r
}

// ValidationFailed builds a failed result carrying the violated rules.
func ValidationFailed(v *ValidationResult) *OperationResult {
	return &OperationResult{
		Success:  false,
		Message:  "validation failed",
		Errors:   v.Errors,
		Warnings: v.Warnings,
	}
}
