package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: nil, want: http.StatusOK},
		{err: fmt.Errorf("amount: %w", ErrValidation), want: http.StatusBadRequest},
		{err: fmt.Errorf("verif-hash: %w", ErrUnauthorized), want: http.StatusUnauthorized},
		{err: fmt.Errorf("tx_ref mismatch: %w", ErrConflict), want: http.StatusConflict},
		{err: fmt.Errorf("donation 9: %w", ErrNotFound), want: http.StatusNotFound},
		{err: fmt.Errorf("stripe: %w", ErrProcessor), want: http.StatusBadGateway},
		{err: fmt.Errorf("stripe key: %w", ErrNotConfigured), want: http.StatusInternalServerError},
		{err: fmt.Errorf("insert: %w", ErrPersistence), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "HTTPStatus(%v)", tt.err)
	}
}
