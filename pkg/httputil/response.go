package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
	"github.com/Christian112b/InonicApp/pkg/logger"
	"github.com/Christian112b/InonicApp/pkg/validator"
)

// Notice is a user-facing message raised while serving a request.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Response is the JSON envelope of the local storefront API. Notifications
// and CardError carry the UI side effects of the call.
type Response struct {
	Data          any            `json:"data,omitempty"`
	Error         *ErrorResponse `json:"error,omitempty"`
	Notifications []Notice       `json:"notifications,omitempty"`
	CardError     string         `json:"card_error,omitempty"`
}

// ErrorResponse represents an error in the envelope.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent.
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorEnvelope builds the envelope for err and the status to send it with.
// 500s are logged through the request-scoped logger, or fallback.
func ErrorEnvelope(r *http.Request, err error, fallback *slog.Logger) (int, Response) {
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest, Response{Error: &ErrorResponse{
			Code:      "VALIDATION_ERROR",
			Message:   "request validation failed",
			Fields:    valErr.Fields(),
			RequestID: requestID,
		}}
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Status, Response{Error: &ErrorResponse{
			Code:      appErr.Code,
			Message:   appErr.Message,
			RequestID: requestID,
		}}
	}

	status := apperrors.HTTPStatus(err)
	code, message := "INTERNAL_ERROR", "an internal error occurred"
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code, message = "NOT_FOUND", "resource not found"
	case errors.Is(err, apperrors.ErrInvalidInput):
		code, message = "INVALID_INPUT", err.Error()
	case errors.Is(err, apperrors.ErrBusy):
		code, message = "BUSY", err.Error()
	case errors.Is(err, apperrors.ErrServiceUnavail):
		code, message = "SERVICE_UNAVAILABLE", "backend unavailable"
	}

	if status == http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	return status, Response{Error: &ErrorResponse{Code: code, Message: message, RequestID: requestID}}
}

// WriteError writes the error envelope for err.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	status, resp := ErrorEnvelope(r, err, fallback)
	WriteJSON(w, status, resp)
}

// ParseID parses a positive integer path parameter. On failure it writes a
// 400 and returns false.
func ParseID(w http.ResponseWriter, param string) (int64, bool) {
	id, err := strconv.ParseInt(param, 10, 64)
	if err != nil || id <= 0 {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "INVALID_PARAMETER",
				Message: "invalid id: " + param,
			},
		})
		return 0, false
	}
	return id, true
}
