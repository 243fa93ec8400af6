package openbilling

import "fmt"

// BillingError represents a usage or configuration error. Setup and
// operation outcomes are never reported this way; those travel to listeners
// as Results.
type BillingError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *BillingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeIllegalState    = "illegal_state"
	ErrCodeInvalidArgument = "invalid_argument"
	ErrCodeInvalidKey      = "invalid_key"
)

// NewBillingError creates a new billing error
func NewBillingError(code, message string, details map[string]interface{}) *BillingError {
	return &BillingError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// errIllegalState builds the usage error returned when an operation is
// attempted in the wrong setup state. It always names the operation.
func errIllegalState(operation string, state SetupState) *BillingError {
	return &BillingError{
		Code:    ErrCodeIllegalState,
		Message: fmt.Sprintf("%s: can't perform operation %q", state, operation),
		Details: map[string]interface{}{
			"operation": operation,
			"state":     state.String(),
		},
	}
}

func errMissingListener(operation string) *BillingError {
	return &BillingError{
		Code:    ErrCodeInvalidArgument,
		Message: fmt.Sprintf("%s: listener must not be nil", operation),
		Details: map[string]interface{}{"operation": operation},
	}
}
