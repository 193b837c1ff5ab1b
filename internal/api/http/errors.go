package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
)

type errorResponse struct {
	Code      domain.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	Shortfall string           `json:"shortfall,omitempty"`
}

// statusFor maps a domain error code onto an HTTP status
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeResourceUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case domain.CodeConcurrencyConflict, domain.CodeInvalidTransition:
		return http.StatusConflict
	case domain.CodePhysicalVerification:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	status := statusFor(code)
	body := errorResponse{Code: code, Message: err.Error()}
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Message = "internal error"
	}
	var derr *domain.Error
	if errors.As(err, &derr) && code == domain.CodeInsufficientFunds {
		body.Shortfall = derr.Shortfall.StringFixed(2)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("malformed request body: %v", err)
	}
	return nil
}
