package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type teapotError struct{}

func (teapotError) Error() string      { return "short and stout" }
func (teapotError) ProblemStatus() int { return http.StatusTeapot }

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"typed", fmt.Errorf("wrap: %w", teapotError{}), http.StatusTeapot, "wrap: short and stout"},
		{"tx failed", fmt.Errorf("%w: deadlock", db.ErrTransactionFailed), http.StatusInternalServerError, "transaction failed, retry"},
		{"not found", fmt.Errorf("orders: order %w", shared.ErrNotFound), http.StatusNotFound, "orders: order not found"},
		{"idempotency", shared.ErrIdempotencyConflict, http.StatusConflict, shared.ErrIdempotencyConflict.Error()},
		{"validation", fmt.Errorf("%w: quantity", shared.ErrValidation), http.StatusBadRequest, "validation failed: quantity"},
		{"unauthenticated", shared.ErrUnauthenticated, http.StatusUnauthorized, shared.ErrUnauthenticated.Error()},
		{"other", errors.New("db exploded"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			require.Equal(t, tc.status, rr.Code)
			require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

			var body ProblemDetail
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, tc.status, body.Status)
			require.Equal(t, tc.detail, body.Detail)
		})
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","total_amount":1}`))
	require.Error(t, DecodeJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	require.ErrorContains(t, DecodeJSON(req, &target), "empty request body")
}
