package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"taxi-dispatch/internal/domain"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorStatus maps a service error to its HTTP status and stable code.
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden", "forbidden"
	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, domain.ErrOrderStatusConflict):
		return http.StatusConflict, "order_status_conflict", "order is not in a status that allows this action"
	case errors.Is(err, domain.ErrActiveOrderConflict):
		return http.StatusConflict, "active_order_conflict", "an active order already exists"
	case errors.Is(err, domain.ErrDriverUnavailable):
		return http.StatusConflict, "driver_unavailable", "driver is not active"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already_exists", "already exists"
	case errors.Is(err, domain.ErrInvalid):
		return http.StatusUnprocessableEntity, "invalid", "invalid request"
	case errors.Is(err, domain.ErrRoutingUnavailable):
		return http.StatusServiceUnavailable, "routing_unavailable", "route could not be computed"
	case errors.Is(err, domain.ErrBusy):
		return http.StatusServiceUnavailable, "busy", "resource busy, retry"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code, message := errorStatus(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	respondJSON(w, status, errorResponse{Code: code, Message: message})
}
