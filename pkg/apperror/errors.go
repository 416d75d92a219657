package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string            `json:"error_code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	Fields     map[string]string `json:"fields,omitempty"` // Field-level validation failures
	Err        error             `json:"-"`                // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code so errors.Is works against the
// constructors below (errors.Is(err, apperror.ErrForbidden())).
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ---- Ledger domain ----

func ErrUserNotResolved() *AppError {
	return New("USER_NOT_RESOLVED", "Account could not be resolved", http.StatusNotFound)
}

func ErrInsufficientFunds() *AppError {
	return New("INSUFFICIENT_FUNDS", "Insufficient available balance", http.StatusPaymentRequired)
}

func ErrInsufficientFundsAtCapture() *AppError {
	return New("INSUFFICIENT_FUNDS_AT_CAPTURE", "Insufficient balance to capture hold", http.StatusPaymentRequired)
}

func ErrForbidden() *AppError {
	return New("FORBIDDEN", "Hold does not belong to this account", http.StatusForbidden)
}

func ErrHoldNotFound() *AppError {
	return New("HOLD_NOT_FOUND", "Hold not found", http.StatusNotFound)
}

func ErrAccountExists() *AppError {
	return New("ACCOUNT_EXISTS", "An account with this subject already exists", http.StatusConflict)
}

func ErrIdempotencyConflict() *AppError {
	return New("IDEMPOTENCY_CONFLICT", "Idempotency key already used for another resource", http.StatusConflict)
}

// ---- Ephemeral token authorization ----
// Messages are the stable reason strings clients match on.

func ErrMissingBearer() *AppError {
	return New("MISSING_BEARER", "missing bearer", http.StatusUnauthorized)
}

func ErrBadTokenFormat() *AppError {
	return New("BAD_TOKEN_FORMAT", "bad token format", http.StatusUnauthorized)
}

func ErrBadSignature() *AppError {
	return New("BAD_SIGNATURE", "bad signature", http.StatusUnauthorized)
}

func ErrInvalidPublicKey() *AppError {
	return New("INVALID_PUBLIC_KEY", "invalid public key", http.StatusUnauthorized)
}

func ErrTokenExpired() *AppError {
	return New("TOKEN_EXPIRED", "token expired", http.StatusUnauthorized)
}

func ErrInvalidIat() *AppError {
	return New("INVALID_IAT", "invalid iat", http.StatusUnauthorized)
}

func ErrMissingClaim(field string) *AppError {
	return New("MISSING_CLAIM", "payload missing "+field, http.StatusBadRequest)
}

func ErrMethodMismatch() *AppError {
	return New("METHOD_MISMATCH", "method mismatch", http.StatusUnauthorized)
}

func ErrPathMismatch() *AppError {
	return New("PATH_MISMATCH", "path mismatch", http.StatusUnauthorized)
}

func ErrBodyHashMismatch() *AppError {
	return New("BODY_HASH_MISMATCH", "bodyHash mismatch", http.StatusUnauthorized)
}

func ErrReplayDetected() *AppError {
	return New("REPLAY_DETECTED", "replay detected", http.StatusUnauthorized)
}

func ErrInvalidAPIKey() *AppError {
	return New("INVALID_API_KEY", "Invalid API key", http.StatusUnauthorized)
}

// ---- Rate Limiting ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_LIMITED", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure ----

func ErrKeyServiceUnavailable(err error) *AppError {
	return Wrap("KEY_SERVICE_UNAVAILABLE", "Signing key service unavailable", http.StatusServiceUnavailable, err)
}

func ErrPayloadTooLarge() *AppError {
	return New("PAYLOAD_TOO_LARGE", "Request body too large", http.StatusRequestEntityTooLarge)
}

// InternalError wraps an internal error; the cause never reaches the client.
func InternalError(err error) *AppError {
	return Wrap("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("VALIDATION_ERROR", message, http.StatusBadRequest)
}

// ValidationFields returns a validation error carrying per-field reasons.
func ValidationFields(fields map[string]string) *AppError {
	e := New("VALIDATION_ERROR", "Request validation failed", http.StatusBadRequest)
	e.Fields = fields
	return e
}
