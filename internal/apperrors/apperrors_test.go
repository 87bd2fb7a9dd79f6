package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("reservation 7: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: trip is full", ErrInvalidState), http.StatusBadRequest},
		{ErrValidation, http.StatusBadRequest},
		{fmt.Errorf("%w: duplicate active reservation", ErrConflict), http.StatusConflict},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("lock wait timeout: %w", ErrRetryable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CheckError(tc.err), "err=%v", tc.err)
	}
}
