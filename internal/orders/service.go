package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const idempotencyModule = "orders"

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort reserves and releases request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Notifier is told about committed orders (background follow-up work).
type Notifier interface {
	OrderPlaced(ctx context.Context, orderID int64, productIDs []int64) error
}

// OutcomeRecorder counts PlaceOrder outcomes.
type OutcomeRecorder interface {
	ObserveOrder(outcome string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// TxTimeout bounds one placement attempt. Zero means 5s.
	TxTimeout time.Duration
	// MaxRetries is the number of extra attempts after a serialization or
	// deadlock failure.
	MaxRetries int
}

// Service coordinates order placement and the order lifecycle.
type Service struct {
	repo        Repository
	audit       AuditPort
	idempotency IdempotencyPort
	notifier    Notifier
	metrics     OutcomeRecorder
	logger      *slog.Logger
	cfg         ServiceConfig
}

// Deps carries the optional collaborators of Service; nil members are skipped.
type Deps struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Notifier    Notifier
	Metrics     OutcomeRecorder
	Logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo Repository, deps Deps, cfg ServiceConfig) *Service {
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// PlaceOrder validates stock, prices the items, writes the order, its items
// and payments, decrements stock and verifies payments, all in one
// transaction. On any failure nothing is persisted. The committed order is
// re-read and returned.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (Order, error) {
	if err := validateInput(&in); err != nil {
		s.observe(err)
		return Order{}, err
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyModule); err != nil {
			return Order{}, err
		}
	}

	orderID, err := s.placeWithRetry(ctx, in)
	if err != nil {
		s.releaseKey(ctx, in.IdempotencyKey)
		s.observe(err)
		return Order{}, err
	}

	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, fmt.Errorf("orders: reload %d: %w", orderID, err)
	}
	s.observe(nil)
	s.afterPlaced(ctx, order)
	return order, nil
}

func (s *Service) placeWithRetry(ctx context.Context, in PlaceOrderInput) (int64, error) {
	for attempt := 0; ; attempt++ {
		id, err := s.placeOnce(ctx, in)
		if err == nil {
			return id, nil
		}
		if !db.IsRetryable(err) {
			return 0, err
		}
		if attempt >= s.cfg.MaxRetries || ctx.Err() != nil {
			if !errors.Is(err, db.ErrTransactionFailed) {
				err = fmt.Errorf("%w: %w", db.ErrTransactionFailed, err)
			}
			return 0, err
		}
		s.logger.Warn("order placement retry",
			slog.Int("attempt", attempt+1),
			slog.Int64("client_id", in.ClientID),
			slog.Any("error", err))
	}
}

func (s *Service) placeOnce(ctx context.Context, in PlaceOrderInput) (int64, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	var orderID int64
	err := s.repo.WithTx(txCtx, func(ctx context.Context, tx TxRepository) error {
		ids, demand := demandOf(in.Items)
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}

		draft, err := buildOrder(in, products, demand)
		if err != nil {
			return err
		}

		created, err := tx.InsertOrder(ctx, draft)
		if err != nil {
			return err
		}

		if err := tx.InsertItems(ctx, created.ID, draft.Items); err != nil {
			return err
		}
		for _, item := range draft.Items {
			if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, inventory.ErrInsufficientStock) {
					p := products[item.ProductID]
					return &InsufficientStockError{ProductID: item.ProductID, Requested: demand[item.ProductID], Available: p.Stock}
				}
				return err
			}
		}

		payments := make([]Payment, 0, len(in.Payments))
		for _, p := range in.Payments {
			payments = append(payments, Payment{Method: p.Method, Amount: p.Amount})
		}
		if err := tx.InsertPayments(ctx, created.ID, payments); err != nil {
			return err
		}

		if err := verifyPayments(draft.TotalAmount, payments); err != nil {
			return err
		}
		orderID = created.ID
		return nil
	})
	if err != nil && errors.Is(txCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, db.ErrTransactionFailed) {
		return 0, fmt.Errorf("%w: %w", db.ErrTransactionFailed, err)
	}
	return orderID, err
}

func (s *Service) afterPlaced(ctx context.Context, order Order) {
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  order.CreatedBy,
			Action:   "order.placed",
			Entity:   "order",
			EntityID: strconv.FormatInt(order.ID, 10),
			Meta: map[string]any{
				"client_id": order.ClientID,
				"total":     order.TotalAmount.StringFixed(2),
				"items":     len(order.Items),
			},
		})
		if err != nil {
			s.logger.Warn("audit order placed", slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		ids := make([]int64, 0, len(order.Items))
		for _, it := range order.Items {
			ids = append(ids, it.ProductID)
		}
		if err := s.notifier.OrderPlaced(ctx, order.ID, ids); err != nil {
			s.logger.Warn("enqueue order placed", slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
	}
	s.logger.Info("order placed",
		slog.Int64("order_id", order.ID),
		slog.Int64("client_id", order.ClientID),
		slog.String("total", order.TotalAmount.StringFixed(2)))
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Delete(context.WithoutCancel(ctx), key, idempotencyModule); err != nil {
		s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) observe(err error) {
	if s.metrics != nil {
		s.metrics.ObserveOrder(Outcome(err))
	}
}

// Outcome classifies a PlaceOrder result for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "placed"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrPaymentMismatch):
		return "payment_mismatch"
	case errors.Is(err, db.ErrTransactionFailed):
		return "tx_failed"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

// UpdateStatus moves the order to status. The move is checked by CanTransition.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, status Status) (Order, error) {
	if !status.Valid() {
		return Order{}, fmt.Errorf("%w %q", ErrInvalidStatus, status)
	}
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	var from Status
	err := s.repo.WithTx(txCtx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockStatus(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(current, status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, status)
		}
		from = current
		return tx.SetStatus(ctx, orderID, status)
	})
	if err != nil {
		return Order{}, err
	}

	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			Action:   "order.status",
			Entity:   "order",
			EntityID: strconv.FormatInt(orderID, 10),
			Meta:     map[string]any{"from": string(from), "to": string(status)},
		})
		if err != nil {
			s.logger.Warn("audit order status", slog.Int64("order_id", orderID), slog.Any("error", err))
		}
	}
	return s.repo.Get(ctx, orderID)
}

// Get returns the order with items and payments.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns one page of orders matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	if filter.Status != "" && !filter.Status.Valid() {
		return ListResult{}, fmt.Errorf("%w %q", ErrInvalidStatus, filter.Status)
	}
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Orders: list, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}
