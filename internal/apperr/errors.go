package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrExists   = errors.New("already exists")
	ErrConflict = errors.New("conflict")
	ErrSecurity = errors.New("security violation")
	ErrMirror   = errors.New("mirror failure")
	ErrStorage  = errors.New("storage failure")
)

// Code maps an error chain onto the boundary error codes callers see.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "E_NOT_FOUND"
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrExists), errors.Is(err, ErrSecurity):
		return "E_SCHEMA"
	case errors.Is(err, ErrConflict):
		return "E_IDEMPOTENCY"
	case errors.Is(err, ErrMirror):
		return "E_GIT"
	default:
		return "E_IO"
	}
}

// HTTPStatus maps an error chain onto an HTTP status for the bridge.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrExists), errors.Is(err, ErrSecurity):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrMirror):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
