package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// LowStockReader is satisfied by *inventory.Service.
type LowStockReader interface {
	LowStock(ctx context.Context, threshold int, ids []int64) ([]inventory.Product, error)
}

// AuditRecorder is satisfied by *shared.AuditLogger.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// KeyReserver is satisfied by *shared.IdempotencyStore.
type KeyReserver interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

const lowStockModule = "inventory.low_stock"

// OrderPlacedJob reports products an order pushed to or below the low-stock threshold.
// With Reported set, each (order, product) pair is audited at most once across retries.
type OrderPlacedJob struct {
	Stock     LowStockReader
	Audit     AuditRecorder
	Reported  KeyReserver
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Threshold int
}

// Handle processes TaskOrderPlaced tasks.
func (j *OrderPlacedJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Stock == nil {
		return errors.New("order placed: handler not configured")
	}
	var payload OrderPlacedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("order placed: decode payload: %w", asynq.SkipRetry)
	}
	if payload.OrderID <= 0 || len(payload.ProductIDs) == 0 {
		return fmt.Errorf("order placed: empty payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskOrderPlaced)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.Int64("order_id", payload.OrderID))
	low, err := j.Stock.LowStock(ctx, j.Threshold, payload.ProductIDs)
	if err != nil {
		logger.Error("low stock lookup failed", slog.Any("error", err))
		return err
	}
	var (
		failures []error
		reported int
	)
	for _, p := range low {
		logger.Warn("product low on stock",
			slog.Int64("product_id", p.ID),
			slog.Int("stock", p.Stock),
			slog.Int("threshold", j.Threshold))
		if j.Audit == nil {
			reported++
			continue
		}
		done, err := j.reportLowStock(ctx, payload.OrderID, p)
		if err != nil {
			logger.Error("low stock audit failed", slog.Int64("product_id", p.ID), slog.Any("error", err))
			failures = append(failures, fmt.Errorf("order placed: audit product %d: %w", p.ID, err))
			continue
		}
		if done {
			reported++
		}
	}
	j.Metrics.AddLowStock(reported)
	if err := errors.Join(failures...); err != nil {
		return err
	}
	logger.Info("order follow-up done", slog.Int("low_stock", len(low)), slog.Int("reported", reported))
	return nil
}

// reportLowStock writes the audit entry for one product. It reports false when
// an earlier attempt of the same task already wrote it.
func (j *OrderPlacedJob) reportLowStock(ctx context.Context, orderID int64, p inventory.Product) (bool, error) {
	key := fmt.Sprintf("order:%d:product:%d", orderID, p.ID)
	if j.Reported != nil {
		err := j.Reported.CheckAndInsert(ctx, key, lowStockModule)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	err := j.Audit.Record(ctx, shared.AuditLog{
		Action:   "inventory.low_stock",
		Entity:   "product",
		EntityID: strconv.FormatInt(p.ID, 10),
		Meta: map[string]any{
			"order_id":  orderID,
			"stock":     p.Stock,
			"threshold": j.Threshold,
		},
	})
	if err != nil {
		if j.Reported != nil {
			if derr := j.Reported.Delete(context.WithoutCancel(ctx), key, lowStockModule); derr != nil {
				err = errors.Join(err, derr)
			}
		}
		return false, err
	}
	return true, nil
}

func (j *OrderPlacedJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
