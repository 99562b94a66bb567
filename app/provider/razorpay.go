package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
)

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
}

type razorpayOrders interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Payments(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayPayments interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayRefunds interface {
	Fetch(refundID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type RazorpayGateway struct {
	cfg      RazorpayConfig
	orders   razorpayOrders
	payments razorpayPayments
	refunds  razorpayRefunds
}

func NewRazorpayGateway(cfg RazorpayConfig) *RazorpayGateway {
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	return &RazorpayGateway{
		cfg:      cfg,
		orders:   client.Order,
		payments: client.Payment,
		refunds:  client.Refund,
	}
}

func (g *RazorpayGateway) Mode() entity.PaymentMode {
	return entity.PaymentModeLive
}

func (g *RazorpayGateway) KeyID() string {
	return g.cfg.KeyID
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, input *OrderInput) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	notes := make(map[string]interface{}, len(input.Notes))
	for k, v := range input.Notes {
		notes[k] = v
	}

	body, err := g.orders.Create(map[string]interface{}{
		"amount":   input.AmountMinor,
		"currency": input.Currency,
		"receipt":  input.Receipt,
		"notes":    notes,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %v", ErrGatewayRequest, err)
	}

	order := parseRazorpayOrder(body)
	if order.ID == "" {
		return nil, fmt.Errorf("%w: create order: order id missing", ErrGatewayRequest)
	}
	return order, nil
}

func (g *RazorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return verifyPaymentSignature(g.cfg.KeySecret, orderID, paymentID, signature)
}

func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := g.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch payment %s: %v", ErrGatewayRequest, paymentID, err)
	}
	return parseRazorpayPayment(body), nil
}

func (g *RazorpayGateway) FetchOrderPayments(ctx context.Context, orderID string) (*Order, []*PaymentDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	orderBody, err := g.orders.Fetch(orderID, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: fetch order %s: %v", ErrGatewayRequest, orderID, err)
	}

	paymentsBody, err := g.orders.Payments(orderID, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: fetch order payments %s: %v", ErrGatewayRequest, orderID, err)
	}

	items, _ := paymentsBody["items"].([]interface{})
	payments := make([]*PaymentDetails, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		payments = append(payments, parseRazorpayPayment(raw))
	}

	return parseRazorpayOrder(orderBody), payments, nil
}

func (g *RazorpayGateway) Refund(ctx context.Context, input *RefundInput) (*RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	notes := make(map[string]interface{}, len(input.Notes))
	for k, v := range input.Notes {
		notes[k] = v
	}

	body, err := g.payments.Refund(input.PaymentID, int(input.AmountMinor), map[string]interface{}{
		"notes": notes,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: refund payment %s: %v", ErrGatewayRequest, input.PaymentID, err)
	}

	return &RefundResult{
		ID:     stringField(body, "id"),
		Status: stringField(body, "status"),
	}, nil
}

func (g *RazorpayGateway) FetchRefund(ctx context.Context, refundID string) (*RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := g.refunds.Fetch(refundID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch refund %s: %v", ErrGatewayRequest, refundID, err)
	}

	return &RefundResult{
		ID:     stringField(body, "id"),
		Status: stringField(body, "status"),
	}, nil
}

func parseRazorpayOrder(body map[string]interface{}) *Order {
	return &Order{
		ID:          stringField(body, "id"),
		AmountMinor: int64Field(body, "amount"),
		Currency:    stringField(body, "currency"),
		Receipt:     stringField(body, "receipt"),
		Status:      stringField(body, "status"),
	}
}

func parseRazorpayPayment(body map[string]interface{}) *PaymentDetails {
	return &PaymentDetails{
		ID:          stringField(body, "id"),
		OrderID:     stringField(body, "order_id"),
		Method:      stringField(body, "method"),
		Status:      stringField(body, "status"),
		AmountMinor: int64Field(body, "amount"),
	}
}

func stringField(body map[string]interface{}, key string) string {
	if v, ok := body[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func int64Field(body map[string]interface{}, key string) int64 {
	switch v := body[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}
