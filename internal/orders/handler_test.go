package orders

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
)

type authorizerStub struct {
	deny map[rbac.Action]bool
}

func (a authorizerStub) Authorize(_ context.Context, _ rbac.Principal, _ rbac.Feature, action rbac.Action) (rbac.Decision, error) {
	if a.deny[action] {
		return rbac.Deny(rbac.ReasonInsufficientAction), nil
	}
	return rbac.Allow, nil
}

type handlerFixture struct {
	*serviceFixture
	router chi.Router
}

func newHandlerFixture(t *testing.T, auth authorizerStub, products ...inventory.Product) *handlerFixture {
	t.Helper()
	fx := newServiceFixture(t, ServiceConfig{}, products...)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, fx.svc, rbac.Middleware{Authorizer: auth, Logger: logger})
	r := chi.NewRouter()
	r.Route("/orders", h.MountRoutes)
	return &handlerFixture{serviceFixture: fx, router: r}
}

var clerk = rbac.Principal{UserID: 7, RoleIDs: []int64{2}, RoleNames: []string{"client"}}

func (fx *handlerFixture) do(p *rbac.Principal, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	if p != nil {
		req = req.WithContext(rbac.WithPrincipal(req.Context(), *p))
	}
	rr := httptest.NewRecorder()
	fx.router.ServeHTTP(rr, req)
	return rr
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var pd httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&pd))
	return pd
}

func TestCreateOrderIgnoresClientTotal(t *testing.T) {
	fx := newHandlerFixture(t, authorizerStub{}, product(9, "10.00", 5))

	rr := fx.do(&clerk, http.MethodPost, "/orders/",
		`{"client_id":1,"items":[{"product_id":9,"quantity":3}],"payments":[{"method":"card","amount":"30.00"}],"total_amount":"1.00"}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var order Order
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&order))
	assert.Equal(t, "30.00", order.TotalAmount.StringFixed(2))
	assert.Equal(t, int64(7), order.CreatedBy)
	assert.Len(t, order.Items, 1)
	assert.Equal(t, "/orders/1", rr.Header().Get("Location"))
	assert.Equal(t, 2, fx.repo.stock(9))
}

func TestCreateOrderFailuresMapToProblems(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		detail string
	}{
		{"insufficient stock", `{"client_id":1,"items":[{"product_id":9,"quantity":6}],"payments":[{"method":"card","amount":60}]}`, http.StatusConflict, "product 9"},
		{"unknown product", `{"client_id":1,"items":[{"product_id":8,"quantity":1}],"payments":[]}`, http.StatusBadRequest, "product 8 not found"},
		{"payment mismatch", `{"client_id":1,"items":[{"product_id":9,"quantity":1}],"payments":[{"method":"cash","amount":"9.50"}]}`, http.StatusUnprocessableEntity, "expected 10.00, got 9.50"},
		{"no items", `{"client_id":1,"items":[]}`, http.StatusBadRequest, ""},
		{"bad status", `{"client_id":1,"items":[{"product_id":9,"quantity":1}],"status":"lost"}`, http.StatusBadRequest, ""},
		{"unknown field", `{"client_id":1,"items":[{"product_id":9,"quantity":1}],"coupon":"X"}`, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newHandlerFixture(t, authorizerStub{}, product(9, "10.00", 5))
			rr := fx.do(&clerk, http.MethodPost, "/orders/", tc.body, nil)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
			pd := decodeProblem(t, rr)
			assert.Contains(t, pd.Detail, tc.detail)
			assert.Equal(t, 5, fx.repo.stock(9))
		})
	}
}

func TestCreateOrderIdempotencyReplay(t *testing.T) {
	fx := newHandlerFixture(t, authorizerStub{}, product(9, "10.00", 5))
	body := `{"client_id":1,"items":[{"product_id":9,"quantity":1}],"payments":[{"method":"card","amount":"10"}]}`
	header := http.Header{IdempotencyHeader: []string{"abc"}}

	first := fx.do(&clerk, http.MethodPost, "/orders/", body, header)
	require.Equal(t, http.StatusCreated, first.Code)
	second := fx.do(&clerk, http.MethodPost, "/orders/", body, header)
	require.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, 4, fx.repo.stock(9))
}

func TestCreateOrderRequiresPrincipalAndPermission(t *testing.T) {
	fx := newHandlerFixture(t, authorizerStub{deny: map[rbac.Action]bool{rbac.ActionCreate: true}}, product(9, "10.00", 5))
	body := `{"client_id":1,"items":[{"product_id":9,"quantity":1}],"payments":[{"method":"card","amount":"10"}]}`

	rr := fx.do(nil, http.MethodPost, "/orders/", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = fx.do(&clerk, http.MethodPost, "/orders/", body, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "insufficient permission for action", decodeProblem(t, rr).Detail)
	assert.Zero(t, fx.repo.txCount())
}

func TestOrderReadAndStatusRoutes(t *testing.T) {
	fx := newHandlerFixture(t, authorizerStub{}, product(9, "10.00", 5))
	rr := fx.do(&clerk, http.MethodPost, "/orders/",
		`{"client_id":1,"items":[{"product_id":9,"quantity":1}],"payments":[{"method":"card","amount":"10"}]}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = fx.do(&clerk, http.MethodGet, "/orders/1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = fx.do(&clerk, http.MethodGet, "/orders/2", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = fx.do(&clerk, http.MethodPatch, "/orders/1/status", `{"status":"Shipped"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var order Order
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&order))
	assert.Equal(t, StatusShipped, order.Status)

	rr = fx.do(&clerk, http.MethodPatch, "/orders/1/status", `{"status":"lost"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = fx.do(&clerk, http.MethodPatch, "/orders/5/status", `{"status":"pending"}`, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = fx.do(&clerk, http.MethodGet, "/orders/?status=shipped&month=2024-03&per_page=5", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list ListResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list.Orders, 1)
	assert.Equal(t, 5, list.Pagination.PerPage)

	rr = fx.do(&clerk, http.MethodGet, "/orders/?month=March", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
