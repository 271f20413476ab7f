package model

// ProviderError is the uniform boundary error for upstream HTTP APIs.
// Code is a stable machine-readable identifier; Body carries the raw
// upstream response so callers can react programmatically.
type ProviderError struct {
	Code       string
	Message    string
	Retryable  bool
	StatusCode int
	Body       string
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Stable provider error codes.
const (
	CodeMissingCredential = "MISSING_CREDENTIAL"
	CodeMissingInput      = "MISSING_INPUT"
	CodeUpstreamFailed    = "UPSTREAM_FAILED"
	CodeMissingJobID      = "MISSING_JOB_ID"
)
