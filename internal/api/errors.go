package api

import (
	"errors"
	"net/http"

	"github.com/prospecthq/prospect-api/internal/domain"
	"github.com/prospecthq/prospect-api/internal/service"
	"github.com/prospecthq/prospect-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrCompanyNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrURLExists):
		return http.StatusConflict

	case errors.Is(err, domain.ErrEmptyURL),
		errors.Is(err, domain.ErrInvalidURL),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrDispatchFailed):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for the error.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, store.ErrCompanyNotFound):
		return "Company not found"

	case errors.Is(err, store.ErrURLExists):
		return "A company with this URL already exists"

	case errors.Is(err, domain.ErrEmptyURL), errors.Is(err, domain.ErrInvalidURL):
		return "Invalid company URL"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid company data"

	case errors.Is(err, service.ErrDispatchFailed):
		return "Failed to start research; please try again"

	default:
		return "An unexpected error occurred"
	}
}
