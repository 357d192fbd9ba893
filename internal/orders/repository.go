package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository is the persistence port of the order service.
type Repository interface {
	// WithTx runs fn in one atomic unit of work; any error rolls it back.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	LockProducts(ctx context.Context, ids []int64) (map[int64]inventory.Product, error)
	DecrementStock(ctx context.Context, productID int64, qty int) error
	InsertOrder(ctx context.Context, order Order) (Order, error)
	InsertItems(ctx context.Context, orderID int64, items []Item) error
	InsertPayments(ctx context.Context, orderID int64, payments []Payment) error
	LockStatus(ctx context.Context, orderID int64) (Status, error)
	SetStatus(ctx context.Context, orderID int64, status Status) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool db.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool db.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithTx runs fn at READ COMMITTED. Stock consistency comes from the row locks
// taken by LockProducts, so a transaction that waited for a lock sees the
// committed stock instead of failing with a serialization error.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, ledger: inventory.NewTxLedger(tx)})
	})
}

// Get loads the order with its items and payments.
func (r *PGRepository) Get(ctx context.Context, id int64) (Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return Order{}, err
	}
	order, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	list := []Order{order}
	if err := r.attachLines(ctx, list); err != nil {
		return Order{}, err
	}
	return list[0], nil
}

// List returns one page of orders (newest first) and the total match count.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.ClientID > 0 {
		add("client_id = $%d", filter.ClientID)
	}
	if !filter.Month.IsZero() {
		add("created_at >= $%d", filter.Month)
		add("created_at < $%d", filter.Month.AddDate(0, 1, 0))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("orders: count: %w", err)
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, shared.Offset(page, perPage))
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, orderColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, err
	}
	if err := r.attachLines(ctx, list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *PGRepository) attachLines(ctx context.Context, list []Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	index := make(map[int64]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		index[o.ID] = i
		list[i].Items = []Item{}
		list[i].Payments = []Payment{}
	}

	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price, line_no FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return fmt.Errorf("orders: load items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.LineNo)
		return it, err
	})
	if err != nil {
		return fmt.Errorf("orders: load items: %w", err)
	}
	for _, it := range items {
		o := &list[index[it.OrderID]]
		o.Items = append(o.Items, it)
	}

	rows, err = r.pool.Query(ctx, `SELECT id, order_id, method, amount FROM order_payments WHERE order_id = ANY($1) ORDER BY order_id, id`, ids)
	if err != nil {
		return fmt.Errorf("orders: load payments: %w", err)
	}
	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		var p Payment
		err := row.Scan(&p.ID, &p.OrderID, &p.Method, &p.Amount)
		return p, err
	})
	if err != nil {
		return fmt.Errorf("orders: load payments: %w", err)
	}
	for _, p := range payments {
		o := &list[index[p.OrderID]]
		o.Payments = append(o.Payments, p)
	}
	return nil
}

type pgTx struct {
	tx     pgx.Tx
	ledger *inventory.TxLedger
}

func (t *pgTx) LockProducts(ctx context.Context, ids []int64) (map[int64]inventory.Product, error) {
	return t.ledger.LockProducts(ctx, ids)
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	return t.ledger.Decrement(ctx, productID, qty)
}

func (t *pgTx) InsertOrder(ctx context.Context, order Order) (Order, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO orders (client_id, created_by, total_amount, status) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		order.ClientID, order.CreatedBy, order.TotalAmount, string(order.Status),
	).Scan(&order.ID, &order.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return Order{}, fmt.Errorf("%w: client %d", ErrClientNotFound, order.ClientID)
	}
	if err != nil {
		return Order{}, fmt.Errorf("orders: insert order: %w", err)
	}
	return order, nil
}

func (t *pgTx) InsertItems(ctx context.Context, orderID int64, items []Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, quantity, unit_price, line_no) VALUES ($1, $2, $3, $4, $5)`,
			orderID, it.ProductID, it.Quantity, it.UnitPrice, it.LineNo)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("orders: insert items: %w", err)
	}
	return nil
}

func (t *pgTx) InsertPayments(ctx context.Context, orderID int64, payments []Payment) error {
	if len(payments) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range payments {
		batch.Queue(`INSERT INTO order_payments (order_id, method, amount) VALUES ($1, $2, $3)`, orderID, p.Method, p.Amount)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("orders: insert payments: %w", err)
	}
	return nil
}

func (t *pgTx) LockStatus(ctx context.Context, orderID int64) (Status, error) {
	var status string
	err := t.tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("orders: lock status: %w", err)
	}
	return Status(status), nil
}

func (t *pgTx) SetStatus(ctx context.Context, orderID int64, status Status) error {
	if _, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, orderID, string(status)); err != nil {
		return fmt.Errorf("orders: set status: %w", err)
	}
	return nil
}

const orderColumns = `id, client_id, created_by, total_amount, status, created_at`

func scanOrder(row pgx.CollectableRow) (Order, error) {
	var (
		o      Order
		status string
	)
	err := row.Scan(&o.ID, &o.ClientID, &o.CreatedBy, &o.TotalAmount, &status, &o.CreatedAt)
	o.Status = Status(status)
	return o, err
}
