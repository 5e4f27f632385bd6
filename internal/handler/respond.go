package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/waveforge/storefront/internal/domain"
	"github.com/waveforge/storefront/internal/middleware"
)

// errorResponse is the JSON error envelope for API responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// writeJSON serializes v to the response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError translates a domain error into an HTTP response. Internal
// errors are logged with detail but reported to the client generically.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	status := errorCodeToHTTPStatus(code)

	// Status transition rejections carry no domain code; they are
	// conflicts between the request and current order state.
	var transitionErr *domain.InvalidTransitionError
	var paymentErr *domain.InvalidPaymentTransitionError
	if errors.As(err, &transitionErr) || errors.As(err, &paymentErr) {
		code = domain.ECONFLICT
		message = err.Error()
		status = http.StatusConflict
	}

	logger := middleware.GetLogger(r.Context())
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"status", status,
	}
	if status >= 500 {
		logger.Error("request failed", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}

	body := errorBody{Code: code, Message: message}
	if fields := domain.GetValidationFields(err); len(fields) > 0 {
		body.Fields = fields
	}

	writeJSON(w, status, errorResponse{Error: body})
}

// errorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EPAYMENT:
		return http.StatusPaymentRequired
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.ENOTIMPL:
		return http.StatusNotImplemented
	case domain.EINTERNAL:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
