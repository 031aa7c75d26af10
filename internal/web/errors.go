package web

// errors.go turns service errors into JSON responses.
//
// The technical error is logged with the request id; the client receives the
// user-facing message from core.MapError plus an HTTP status derived from the
// error type.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/invoicedesk/internal/core"
	"github.com/JonMunkholm/invoicedesk/internal/ingest"
	"github.com/JonMunkholm/invoicedesk/internal/logging"
	"github.com/JonMunkholm/invoicedesk/internal/staging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Action  string       `json:"action,omitempty"`
	Code    string       `json:"code"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError is one field violation in a 400 response.
type FieldError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var (
		maxBytes *http.MaxBytesError
		ve       *core.ValidationError
		de       *core.DecodeError
	)
	switch {
	case errors.Is(err, ingest.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, staging.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &ve), errors.As(err, &de):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the mapped JSON error.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	body := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Details: fieldErrors(err),
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSONStatus(w, status, body)
}

// fieldErrors lists every ValidationError carried by err.
func fieldErrors(err error) []FieldError {
	var list core.ValidationErrors
	if errors.As(err, &list) {
		out := make([]FieldError, 0, len(list))
		for _, ve := range list {
			out = append(out, FieldError{Field: ve.Field, Value: ve.Value, Message: ve.Message})
		}
		return out
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return []FieldError{{Field: ve.Field, Value: ve.Value, Message: ve.Message}}
	}
	return nil
}
