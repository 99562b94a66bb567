package provider

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
)

const (
	MockOrderPrefix = "order_mock_"
	MockKeyID       = "rzp_mock_key"
	MockMethod      = "mock"
)

// MockGateway stands in for the gateway when no credentials are configured.
// Every signature is accepted.
type MockGateway struct{}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (g *MockGateway) Mode() entity.PaymentMode {
	return entity.PaymentModeMock
}

func (g *MockGateway) KeyID() string {
	return MockKeyID
}

func (g *MockGateway) CreateOrder(_ context.Context, input *OrderInput) (*Order, error) {
	return &Order{
		ID:          MockOrderPrefix + randomHex(),
		AmountMinor: input.AmountMinor,
		Currency:    input.Currency,
		Receipt:     input.Receipt,
		Status:      OrderStatusCreated,
	}, nil
}

func (g *MockGateway) VerifySignature(_, _, _ string) bool {
	return true
}

func (g *MockGateway) FetchPayment(_ context.Context, paymentID string) (*PaymentDetails, error) {
	return &PaymentDetails{
		ID:     paymentID,
		Method: MockMethod,
		Status: PaymentStatusCaptured,
	}, nil
}

func (g *MockGateway) FetchOrderPayments(_ context.Context, orderID string) (*Order, []*PaymentDetails, error) {
	return &Order{ID: orderID, Status: OrderStatusCreated}, nil, nil
}

func (g *MockGateway) Refund(_ context.Context, input *RefundInput) (*RefundResult, error) {
	return &RefundResult{
		ID:     "rfnd_mock_" + randomHex(),
		Status: "processed",
	}, nil
}

func (g *MockGateway) FetchRefund(_ context.Context, refundID string) (*RefundResult, error) {
	return &RefundResult{ID: refundID, Status: "processed"}, nil
}

func randomHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
