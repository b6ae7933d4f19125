package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mintcal/mintcal/internal/domain"
)

func TestWriteErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err      error
		wantHTTP int
		wantCode string
	}{
		{fmt.Errorf("bad: %w", domain.ErrInvalidArgument), http.StatusBadRequest, "INVALID_ARGUMENT"},
		{fmt.Errorf("who: %w", domain.ErrUnauthorized), http.StatusUnauthorized, "UNAUTHORIZED"},
		{fmt.Errorf("no: %w", domain.ErrForbidden), http.StatusForbidden, "FORBIDDEN"},
		{fmt.Errorf("gone: %w", domain.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("locked: %w", domain.ErrConflict), http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("done: %w", domain.ErrAlreadyTerminal), http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("slow down: %w", domain.ErrRateLimited), http.StatusTooManyRequests, "RATE_LIMITED"},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.wantCode, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, httptest.NewRequest(http.MethodGet, "/", nil), tc.err, nil)

			require.Equal(t, tc.wantHTTP, w.Code)
			require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

			var env errorEnvelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			require.Equal(t, tc.wantCode, env.Error.Code)
			require.Equal(t, tc.err.Error(), env.Error.Message)
		})
	}
}

func TestWriteErrorCarriesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, httptest.NewRequest(http.MethodPost, "/", nil),
		fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument),
		map[string]string{"userid": "max"})
	require.Contains(t, w.Body.String(), `"details":{"userid":"max"}`)
}
