package authority

import (
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized failure taxonomy
type ErrorCategory string

const (
	// ErrorTimeout indicates the authority took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the authority returned invalid/malformed data
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorProviderOutage indicates the authority is unreachable or failing
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorContractMismatch indicates a status code this client does not understand
	ErrorContractMismatch ErrorCategory = "contract_mismatch"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorInternal indicates an unexpected local error
	ErrorInternal ErrorCategory = "internal"
)

// LookupError wraps authority failures with normalized categorization.
// Every LookupError makes the lookup indeterminate.
type LookupError struct {
	Category   ErrorCategory
	Username   string
	Message    string
	Underlying error
}

func (e *LookupError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("authority lookup %s [%s]: %s: %v", e.Username, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("authority lookup %s [%s]: %s", e.Username, e.Category, e.Message)
}

func (e *LookupError) Unwrap() error {
	return e.Underlying
}

func newLookupError(category ErrorCategory, username, message string, underlying error) *LookupError {
	return &LookupError{
		Category:   category,
		Username:   username,
		Message:    message,
		Underlying: underlying,
	}
}

// GetCategory extracts the error category from an error
func GetCategory(err error) ErrorCategory {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Category
	}
	return ErrorInternal
}
