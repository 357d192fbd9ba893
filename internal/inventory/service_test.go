package inventory

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/rbac"
)

type memoryRepo struct {
	products map[int64]Product
}

func newMemoryRepo(products ...Product) *memoryRepo {
	repo := &memoryRepo{products: make(map[int64]Product)}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) LowStock(_ context.Context, threshold int, ids []int64) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if p.Stock > threshold {
			continue
		}
		if len(ids) > 0 && !containsID(ids, p.ID) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestAvailability(t *testing.T) {
	svc := NewService(newMemoryRepo(Product{ID: 9, Name: "Widget", Price: decimal.RequireFromString("10.00"), Stock: 5}))
	ctx := context.Background()

	a, err := svc.Availability(ctx, 9, 5)
	require.NoError(t, err)
	require.True(t, a.Available)

	a, err = svc.Availability(ctx, 9, 6)
	require.NoError(t, err)
	require.False(t, a.Available)
	require.Equal(t, 5, a.Stock)

	_, err = svc.Availability(ctx, 404, 1)
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.Availability(ctx, 9, -1)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestLowStockRestrictsToIDs(t *testing.T) {
	svc := NewService(newMemoryRepo(
		Product{ID: 1, Stock: 2},
		Product{ID: 2, Stock: 1},
		Product{ID: 3, Stock: 50},
	))

	low, err := svc.LowStock(context.Background(), 3, []int64{2, 3})
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, int64(2), low[0].ID)
}

type allowAll struct{}

func (allowAll) Authorize(context.Context, rbac.Principal, rbac.Feature, rbac.Action) (rbac.Decision, error) {
	return rbac.Allow, nil
}

func TestStockEndpoint(t *testing.T) {
	svc := NewService(newMemoryRepo(Product{ID: 9, Name: "Widget", Price: decimal.RequireFromString("10.00"), Stock: 2}))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, svc, rbac.Middleware{Authorizer: allowAll{}, Logger: logger}, 5)

	r := chi.NewRouter()
	r.Route("/products", h.MountRoutes)

	req := httptest.NewRequest(http.MethodGet, "/products/9/stock?qty=3", nil)
	req = req.WithContext(rbac.WithPrincipal(req.Context(), rbac.Principal{UserID: 1, Admin: true}))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var a Availability
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &a))
	require.False(t, a.Available)
	require.Equal(t, 2, a.Stock)

	req = httptest.NewRequest(http.MethodGet, "/products/77/stock", nil)
	req = req.WithContext(rbac.WithPrincipal(req.Context(), rbac.Principal{UserID: 1, Admin: true}))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
