package apperr

import (
	"errors"
	"net/http"
)

// Error kinds shared by the payment, reconciliation and storage layers.
// Wrap them with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrProcessor     = errors.New("payment processor error")
	ErrConflict      = errors.New("reconciliation conflict")
	ErrPersistence   = errors.New("persistence failure")
	ErrNotConfigured = errors.New("payment system not configured")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("signature verification failed")
)

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrProcessor):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
