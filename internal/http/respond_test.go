package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/album-of-the-day/internal/ledger"
	"github.com/Clark-Hu/album-of-the-day/internal/validation"
)

func TestRespondLedgerError(t *testing.T) {
	srv := &Server{logger: zerolog.Nop()}
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{validation.NewFieldError("rating", "required", "is required"), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{ledger.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{ledger.ErrConflict, http.StatusConflict, "CONFLICT"},
		{ledger.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{fmt.Errorf("%w: deadlock", ledger.ErrUnavailable), http.StatusServiceUnavailable, "UNAVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		srv.respondLedgerError(rec, tc.err, "submit review")
		if rec.Code != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		body := decodeBody[errorResponse](t, rec)
		if body.Code != tc.code {
			t.Fatalf("%v: code = %q, want %q", tc.err, body.Code, tc.code)
		}
		if tc.status == http.StatusServiceUnavailable && rec.Header().Get("Retry-After") == "" {
			t.Fatalf("unavailable responses must carry Retry-After")
		}
	}
}
