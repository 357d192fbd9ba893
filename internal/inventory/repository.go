package inventory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

const productColumns = `id, name, price, stock, updated_at`

// Repository reads products outside of any order transaction.
type Repository struct {
	pool db.Querier
}

// NewRepository constructs Repository.
func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

// Get fetches one product.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return Product{}, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// LowStock lists products whose stock is at or below threshold. When ids is
// non-empty only those products are considered.
func (r *Repository) LowStock(ctx context.Context, threshold int, ids []int64) ([]Product, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(ids) == 0 {
		rows, err = r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE stock <= $1 ORDER BY stock, id`, threshold)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE stock <= $1 AND id = ANY($2) ORDER BY stock, id`, threshold, ids)
	}
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanProduct)
}

// TxLedger is the inventory ledger bound to one open transaction.
type TxLedger struct {
	tx db.Querier
}

// NewTxLedger binds the ledger to tx.
func NewTxLedger(tx db.Querier) *TxLedger {
	return &TxLedger{tx: tx}
}

// LockProducts reads and row-locks the given products for the rest of the
// transaction. Locks are taken in ascending id order so two transactions
// touching overlapping products cannot deadlock on each other. Missing ids are
// simply absent from the result.
func (l *TxLedger) LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	rows, err := l.tx.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		return nil, fmt.Errorf("inventory: lock products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("inventory: lock products: %w", err)
	}
	out := make(map[int64]Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// Decrement subtracts qty from the product's stock. The guard in the WHERE
// clause keeps stock non-negative even without a prior lock; zero affected
// rows means the product is missing or short.
func (l *TxLedger) Decrement(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	tag, err := l.tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		return fmt.Errorf("inventory: decrement %d: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.UpdatedAt)
	return p, err
}
