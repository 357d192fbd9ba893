package orders

import (
	"github.com/shopspring/decimal"
)

type itemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type paymentRequest struct {
	Method string          `json:"method" validate:"required,max=32"`
	Amount decimal.Decimal `json:"amount"`
}

// createOrderRequest is the POST /orders body. TotalAmount is accepted so
// older clients keep working, but it is never read.
type createOrderRequest struct {
	ClientID    int64            `json:"client_id" validate:"required,gt=0"`
	Items       []itemRequest    `json:"items" validate:"required,min=1,dive"`
	Payments    []paymentRequest `json:"payments" validate:"dive"`
	Status      string           `json:"status" validate:"omitempty,oneof=pending confirmed shipped delivered cancelled"`
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`
}

func (req createOrderRequest) toInput(userID int64, key string) PlaceOrderInput {
	in := PlaceOrderInput{
		ClientID:       req.ClientID,
		UserID:         userID,
		Status:         Status(req.Status),
		IdempotencyKey: key,
		Items:          make([]LineRequest, 0, len(req.Items)),
		Payments:       make([]PaymentRequest, 0, len(req.Payments)),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, LineRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	for _, p := range req.Payments {
		in.Payments = append(in.Payments, PaymentRequest{Method: p.Method, Amount: p.Amount})
	}
	return in
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}
