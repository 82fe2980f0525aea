package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrOrderStatusConflict = errors.New("order status conflict")
	ErrActiveOrderConflict = errors.New("active order already exists")
	ErrAccessDenied        = errors.New("access denied")
	ErrRoutingUnavailable  = errors.New("routing unavailable")
	ErrDriverUnavailable   = errors.New("driver is not active")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalid             = errors.New("invalid")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	// ErrBusy means a row lock could not be taken in time. Callers may retry.
	ErrBusy = errors.New("resource busy")
)
