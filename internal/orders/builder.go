package orders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
)

// validateInput rejects malformed requests before any transaction is opened.
func validateInput(in *PlaceOrderInput) error {
	if len(in.Items) == 0 {
		return ErrEmptyOrder
	}
	if in.ClientID <= 0 || in.UserID <= 0 {
		return fmt.Errorf("%w: client and user required", ErrInvalidLine)
	}
	for i, item := range in.Items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: item %d has no product", ErrInvalidLine, i+1)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidLine, i+1)
		}
	}
	for i, p := range in.Payments {
		if p.Amount.IsNegative() {
			return fmt.Errorf("%w: payment %d amount is negative", ErrInvalidLine, i+1)
		}
		// Amounts are stored as NUMERIC(14,2); anything finer would be rounded on insert.
		if !p.Amount.Equal(p.Amount.Truncate(2)) {
			return fmt.Errorf("%w: payment %d amount has more than two decimal places", ErrInvalidLine, i+1)
		}
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	if !in.Status.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidStatus, in.Status)
	}
	return nil
}

// demandOf returns the distinct product ids of items (first-seen order) and
// the cumulative quantity requested per product.
func demandOf(items []LineRequest) ([]int64, map[int64]int) {
	ids := make([]int64, 0, len(items))
	demand := make(map[int64]int, len(items))
	for _, item := range items {
		if _, seen := demand[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		demand[item.ProductID] += item.Quantity
	}
	return ids, demand
}

// buildOrder checks every product against the locked snapshot and prices each
// line from it. The returned order has no id yet.
func buildOrder(in PlaceOrderInput, products map[int64]inventory.Product, demand map[int64]int) (Order, error) {
	for _, item := range in.Items {
		p, ok := products[item.ProductID]
		if !ok {
			return Order{}, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if want := demand[item.ProductID]; p.Stock < want {
			return Order{}, &InsufficientStockError{ProductID: p.ID, Requested: want, Available: p.Stock}
		}
	}

	order := Order{
		ClientID:    in.ClientID,
		CreatedBy:   in.UserID,
		Status:      in.Status,
		TotalAmount: decimal.Zero,
		Items:       make([]Item, 0, len(in.Items)),
	}
	for i, item := range in.Items {
		line := Item{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: products[item.ProductID].Price,
			LineNo:    i + 1,
		}
		order.TotalAmount = order.TotalAmount.Add(line.Subtotal())
		order.Items = append(order.Items, line)
	}
	return order, nil
}

// verifyPayments compares the sum of payments against total within PaymentTolerance.
func verifyPayments(total decimal.Decimal, payments []Payment) error {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	if paid.Sub(total).Abs().GreaterThan(PaymentTolerance) {
		return &PaymentMismatchError{Expected: total, Got: paid}
	}
	return nil
}
