package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrAmountOutOfRange, http.StatusBadRequest},
		{ErrInvalidState, http.StatusConflict},
		{ErrForbidden, http.StatusForbidden},
		{ErrAccountBlocked, http.StatusForbidden},
		{ErrInsufficientCredit, http.StatusPaymentRequired},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrUnauthenticated, http.StatusUnauthorized},
		{ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("failed to login: %w", ErrRateLimited), http.StatusTooManyRequests},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWriteRateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, ErrRateLimited)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Contains(t, rec.Body.String(), `"error":"RATE_LIMITED"`)
	assert.Equal(t, RateLimited, KindOf(ErrRateLimited))
}
