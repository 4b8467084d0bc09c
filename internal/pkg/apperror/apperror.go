package apperror

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrNotFound is returned when a record does not exist or is not visible to the caller.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed or out-of-range input, field by field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// FromValidator converts validator/v10 errors into a ValidationError.
func FromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		if fe.Param() != "" {
			fields[name] = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		} else {
			fields[name] = fe.Tag()
		}
	}
	return &ValidationError{Fields: fields}
}

// AuthorizationError is an ownership or role mismatch. Its message never leaves the server.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return "forbidden: " + e.Reason
}

func Forbidden(reason string) *AuthorizationError {
	return &AuthorizationError{Reason: reason}
}

// ProviderError wraps a payment gateway failure. Unknown is set when the
// outcome cannot be known (timeout, connection reset); callers must then
// leave local state untouched and let the webhook resolve it.
type ProviderError struct {
	Provider string
	Op       string
	Unknown  bool
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Unknown {
		return fmt.Sprintf("%s %s: unknown outcome: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsUnknownOutcome reports whether err carries a provider call whose result is not known.
func IsUnknownOutcome(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Unknown
}

// Conflict reasons.
const (
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonDuplicate           = "duplicate"
	ReasonRefundWindowExpired = "refund_window_expired"
	ReasonRefundActive        = "refund_already_active"
	ReasonInvalidTransition   = "invalid_transition"
	ReasonNotRefundable       = "not_refundable"
	ReasonUnsupported         = "unsupported"
	ReasonQuotaExhausted      = "quota_exhausted"
)

// StateConflictError is a well-formed request that the current state does not allow.
type StateConflictError struct {
	Reason  string
	Message string
	Details map[string]interface{}
}

func (e *StateConflictError) Error() string {
	if e.Message != "" {
		return e.Reason + ": " + e.Message
	}
	return e.Reason
}

func Conflict(reason, msg string) *StateConflictError {
	return &StateConflictError{Reason: reason, Message: msg}
}

// InsufficientBalance carries the requested and available amounts for the client.
func InsufficientBalance(requested, available int64) *StateConflictError {
	return &StateConflictError{
		Reason:  ReasonInsufficientBalance,
		Message: "requested amount exceeds available balance",
		Details: map[string]interface{}{"requested": requested, "available": available},
	}
}

// IsConflict reports whether err is a StateConflictError with the given reason.
func IsConflict(err error, reason string) bool {
	var ce *StateConflictError
	return errors.As(err, &ce) && ce.Reason == reason
}
