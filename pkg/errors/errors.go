package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by every storefront layer.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrConflict        = errors.New("conflict")
	ErrInternal        = errors.New("internal error")
	ErrServiceUnavail  = errors.New("service unavailable")
	ErrPaymentFailed   = errors.New("payment failed")
	ErrSessionRequired = errors.New("active session required")
	ErrCheckoutBlocked = errors.New("checkout step incomplete")
	ErrBusy            = errors.New("operation already in progress")
)

// AppError is an error that carries a stable code, a user-presentable
// message and the status the local API answers with.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// SessionRequired is returned when an operation needs a signed-in shopper
// and the backend reports no active session.
func SessionRequired(message string) *AppError {
	return &AppError{
		Code:    "SESSION_REQUIRED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrSessionRequired,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Busy creates a 409 error for re-entrant calls while a sync or payment runs.
func Busy(message string) *AppError {
	return &AppError{
		Code:    "BUSY",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrBusy,
	}
}

// CheckoutBlocked creates a 422 error for a wizard gate that did not pass.
func CheckoutBlocked(message string) *AppError {
	return &AppError{
		Code:    "CHECKOUT_BLOCKED",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrCheckoutBlocked,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// PaymentFailed creates a 402 error for a declined or unconfirmed payment.
func PaymentFailed(message string) *AppError {
	return &AppError{
		Code:    "PAYMENT_FAILED",
		Message: message,
		Status:  http.StatusPaymentRequired,
		Err:     ErrPaymentFailed,
	}
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     ErrServiceUnavail,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrSessionRequired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrCheckoutBlocked):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
