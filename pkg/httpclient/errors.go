package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/Christian112b/InonicApp/pkg/errors"
)

// BackendErrorBody covers the error shapes the store backend answers with:
// {"ok":false,"mensaje":...}, {"ok":false,"message":...} and {"error":...}.
type BackendErrorBody struct {
	Mensaje string `json:"mensaje"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Text returns the first non-empty message field.
func (b BackendErrorBody) Text() string {
	for _, s := range []string{b.Mensaje, b.Message, b.Error} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// ParseResponseError consumes and closes a non-2xx response and maps it to an
// AppError carrying the backend's own message when one is present.
func ParseResponseError(resp *http.Response, endpoint string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", endpoint, resp.StatusCode, err)
	}
	return ErrorFromBody(resp.StatusCode, body, endpoint)
}

// ErrorFromBody maps a status and raw body to an error.
func ErrorFromBody(status int, body []byte, endpoint string) error {
	var parsed BackendErrorBody
	if json.Unmarshal(body, &parsed) == nil {
		if msg := parsed.Text(); msg != "" {
			return mapBackendError(status, msg, endpoint)
		}
	}
	return fmt.Errorf("%s returned status %d: %s", endpoint, status, strings.TrimSpace(string(body)))
}

func mapBackendError(status int, message, endpoint string) error {
	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(endpoint, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(message)
	case status == http.StatusConflict:
		return apperrors.Conflict(message)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return apperrors.SessionRequired(message)
	case status == http.StatusPaymentRequired, status == http.StatusUnprocessableEntity:
		return apperrors.PaymentFailed(message)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(message)
	case status >= 500:
		return fmt.Errorf("%s server error %d: %s", endpoint, status, message)
	default:
		return &apperrors.AppError{
			Code:    "BACKEND_ERROR",
			Message: message,
			Status:  status,
		}
	}
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
