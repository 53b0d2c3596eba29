package providers

import (
	"errors"
	"fmt"
)

// ProviderError is a transient failure of a capability provider.
type ProviderError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s provider error: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// TailorError means the tailored document violated authenticity constraints.
// It is never retried.
type TailorError struct {
	Message    string
	Violations []string
}

func (e *TailorError) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("tailoring rejected: %s: %v", e.Message, e.Violations)
	}
	return fmt.Sprintf("tailoring rejected: %s", e.Message)
}

// SubmissionError is a failed application submission.
type SubmissionError struct {
	Message    string
	StatusCode int
	// Permanent marks failures that another attempt cannot fix (e.g. posting closed).
	Permanent bool
	Cause     error
}

func (e *SubmissionError) Error() string {
	msg := "submission failed: " + e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt may succeed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var tailorErr *TailorError
	if errors.As(err, &tailorErr) {
		return false
	}
	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		return !subErr.Permanent
	}
	return true
}
