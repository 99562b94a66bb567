package provider

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
)

// ErrGatewayRequest wraps every failed call to the remote gateway.
var ErrGatewayRequest = errors.New("gateway request failed")

// Gateway payment statuses as reported by the gateway.
const (
	PaymentStatusCreated    = "created"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusCaptured   = "captured"
	PaymentStatusRefunded   = "refunded"
	PaymentStatusFailed     = "failed"
)

// Gateway order statuses as reported by the gateway.
const (
	OrderStatusCreated   = "created"
	OrderStatusAttempted = "attempted"
	OrderStatusPaid      = "paid"
)

type OrderInput struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

type Order struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
	Status      string
}

type PaymentDetails struct {
	ID          string
	OrderID     string
	Method      string
	Status      string
	AmountMinor int64
}

// Successful reports whether the gateway holds the money for this payment.
func (d *PaymentDetails) Successful() bool {
	return d.Status == PaymentStatusCaptured || d.Status == PaymentStatusAuthorized
}

type RefundInput struct {
	PaymentID   string
	AmountMinor int64
	Notes       map[string]string
}

type RefundResult struct {
	ID     string
	Status string
}

type Gateway interface {
	Mode() entity.PaymentMode
	KeyID() string
	CreateOrder(ctx context.Context, input *OrderInput) (*Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error)
	FetchOrderPayments(ctx context.Context, orderID string) (*Order, []*PaymentDetails, error)
	Refund(ctx context.Context, input *RefundInput) (*RefundResult, error)
	FetchRefund(ctx context.Context, refundID string) (*RefundResult, error)
}
