package inventory

import (
	"context"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Product, error)
	LowStock(ctx context.Context, threshold int, ids []int64) ([]Product, error)
}

// Service exposes read-side inventory queries. Stock is only ever written by
// order placement through TxLedger.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Product returns the product with its current stock.
func (s *Service) Product(ctx context.Context, id int64) (Product, error) {
	return s.repo.Get(ctx, id)
}

// Availability reports whether qty units of productID are in stock. A zero qty
// just reports the current level.
func (s *Service) Availability(ctx context.Context, productID int64, qty int) (Availability, error) {
	if qty < 0 {
		return Availability{}, ErrInvalidQuantity
	}
	p, err := s.repo.Get(ctx, productID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		ProductID: p.ID,
		Stock:     p.Stock,
		Requested: qty,
		Available: p.Stock > 0 && p.Stock >= qty,
	}, nil
}

// LowStock lists products at or below threshold, optionally restricted to ids.
func (s *Service) LowStock(ctx context.Context, threshold int, ids []int64) ([]Product, error) {
	if threshold < 0 {
		threshold = 0
	}
	return s.repo.LowStock(ctx, threshold, ids)
}
