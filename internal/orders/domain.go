package orders

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus normalises raw into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// CanTransition is the only place the status machine is decided. Every known
// status may move to every other one.
func CanTransition(from, to Status) bool {
	return from.Valid() && to.Valid()
}

// PaymentTolerance is the largest accepted gap between payments and total.
var PaymentTolerance = decimal.New(1, -2)

var (
	// ErrOrderNotFound indicates that the order does not exist.
	ErrOrderNotFound = fmt.Errorf("orders: order %w", shared.ErrNotFound)
	// ErrClientNotFound indicates the order references an unknown client or user.
	ErrClientNotFound = fmt.Errorf("orders: client %w", shared.ErrNotFound)
	// ErrInvalidStatus is returned for statuses outside the enumeration.
	ErrInvalidStatus = fmt.Errorf("%w: invalid order status", shared.ErrValidation)
	// ErrInvalidTransition is returned when CanTransition refuses a move.
	ErrInvalidTransition = fmt.Errorf("%w: status transition not allowed", shared.ErrValidation)
	// ErrEmptyOrder is returned when no items are supplied.
	ErrEmptyOrder = fmt.Errorf("%w: order requires at least one item", shared.ErrValidation)
	// ErrInvalidLine is returned for non-positive quantities or negative payments.
	ErrInvalidLine = fmt.Errorf("%w: invalid order line", shared.ErrValidation)

	// ErrProductNotFound is matched by *ProductNotFoundError.
	ErrProductNotFound = errors.New("orders: product not found")
	// ErrInsufficientStock is matched by *InsufficientStockError.
	ErrInsufficientStock = errors.New("orders: insufficient stock")
	// ErrPaymentMismatch is matched by *PaymentMismatchError.
	ErrPaymentMismatch = errors.New("orders: payment mismatch")
)

// Order is the aggregate root. Items keep their line order.
type Order struct {
	ID          int64           `json:"id"`
	ClientID    int64           `json:"client_id"`
	CreatedBy   int64           `json:"created_by"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	Items       []Item          `json:"items"`
	Payments    []Payment       `json:"payments"`
}

// Item is one order line with the unit price captured at placement time.
type Item struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineNo    int             `json:"line_no"`
}

// Subtotal is quantity × unit price.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Payment is one tender applied to the order.
type Payment struct {
	ID      int64           `json:"id"`
	OrderID int64           `json:"order_id"`
	Method  string          `json:"method"`
	Amount  decimal.Decimal `json:"amount"`
}

// LineRequest asks for quantity units of a product.
type LineRequest struct {
	ProductID int64
	Quantity  int
}

// PaymentRequest is a tender supplied by the caller.
type PaymentRequest struct {
	Method string
	Amount decimal.Decimal
}

// PlaceOrderInput is the input of PlaceOrder. It carries no total; the total
// is computed from product prices.
type PlaceOrderInput struct {
	ClientID       int64
	UserID         int64
	Items          []LineRequest
	Payments       []PaymentRequest
	Status         Status
	IdempotencyKey string
}

// ListFilter narrows List results.
type ListFilter struct {
	Status   Status
	ClientID int64
	Month    time.Time
	Page     int
	PerPage  int
}

// ListResult is one page of orders.
type ListResult struct {
	Orders     []Order           `json:"orders"`
	Pagination shared.Pagination `json:"pagination"`
}

// ProductNotFoundError names a product referenced by an order that does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

// ProblemStatus maps to 400.
func (e *ProductNotFoundError) ProblemStatus() int { return http.StatusBadRequest }

// InsufficientStockError names the product that cannot cover the requested quantity.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// ProblemStatus maps to 409.
func (e *InsufficientStockError) ProblemStatus() int { return http.StatusConflict }

// PaymentMismatchError reports the computed total against the sum of payments.
type PaymentMismatchError struct {
	Expected decimal.Decimal
	Got      decimal.Decimal
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payment mismatch: expected %s, got %s", moneyString(e.Expected), moneyString(e.Got))
}

// moneyString prints at least two decimals and never rounds away precision.
func moneyString(d decimal.Decimal) string {
	places := int32(2)
	if exp := -d.Exponent(); exp > places {
		places = exp
	}
	return d.StringFixed(places)
}

func (e *PaymentMismatchError) Is(target error) bool { return target == ErrPaymentMismatch }

// ProblemStatus maps to 422.
func (e *PaymentMismatchError) ProblemStatus() int { return http.StatusUnprocessableEntity }
