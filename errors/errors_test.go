package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	testCases := []struct {
		err  error
		code int
	}{
		{nil, http.StatusOK},
		{ErrAuthRejected, http.StatusUnauthorized},
		{fmt.Errorf("login: %w", ErrInvalidCredentials), http.StatusUnauthorized},
		{fmt.Errorf("edit: %w", ErrForbidden), http.StatusForbidden},
		{ErrMessageNotFound, http.StatusNotFound},
		{ErrUserNotFound, http.StatusNotFound},
		{ErrUserAlreadyExists, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: text too long", ErrInvalidMessage), http.StatusBadRequest},
		{ErrInvalidRequest, http.StatusBadRequest},
		{ErrInvalidPassword, http.StatusBadRequest},
		{fmt.Errorf("store: %w", ErrPersistenceFailure), http.StatusServiceUnavailable},
		{New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		name := "nil"
		if tc.err != nil {
			name = tc.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.code, StatusCode(tc.err))
		})
	}
}
