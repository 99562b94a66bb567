package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
)

var ErrInvalidID = errors.New("invalid id")

// FlexibleID accepts both JSON numbers and numeric strings.
type FlexibleID uint64

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*id = 0
			return nil
		}
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return ErrInvalidID
	}
	*id = FlexibleID(n)
	return nil
}

type CustomerInfo struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email,max=255"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type BillingAddress struct {
	Line1      string `json:"line1" validate:"max=255"`
	Line2      string `json:"line2" validate:"max=255"`
	City       string `json:"city" validate:"max=128"`
	State      string `json:"state" validate:"max=128"`
	PostalCode string `json:"postalCode" validate:"max=32"`
	Country    string `json:"country" validate:"max=64"`
}

type CreateOrderRequest struct {
	PlanID              FlexibleID      `json:"planId" validate:"required"`
	CustomerInfo        CustomerInfo    `json:"customerInfo"`
	BillingAddress      *BillingAddress `json:"billingAddress"`
	DiscountCode        string          `json:"discountCode" validate:"max=64"`
	MembershipStartDate string          `json:"membershipStartDate"`
}

func NewCreateOrderRequestFromContext(ctx echo.Context) (*CreateOrderRequest, error) {
	req := &CreateOrderRequest{}
	if err := ctx.Bind(req); err != nil {
		return nil, err
	}
	req.CustomerInfo.Name = strings.TrimSpace(req.CustomerInfo.Name)
	req.CustomerInfo.Email = strings.TrimSpace(req.CustomerInfo.Email)
	return req, nil
}

func (r *CreateOrderRequest) Validate() error {
	return validateStruct(r)
}

func (r *CreateOrderRequest) GetPlanID() uint64 { return uint64(r.PlanID) }
func (r *CreateOrderRequest) GetCustomerName() string { return r.CustomerInfo.Name }
func (r *CreateOrderRequest) GetCustomerEmail() string { return r.CustomerInfo.Email }
func (r *CreateOrderRequest) GetCustomerPhone() string { return r.CustomerInfo.Phone }
func (r *CreateOrderRequest) GetDiscountCode() string { return r.DiscountCode }
func (r *CreateOrderRequest) GetMembershipStartDate() string { return r.MembershipStartDate }

func (r *CreateOrderRequest) GetBillingAddress() *entity.BillingAddress {
	if r.BillingAddress == nil {
		return nil
	}
	return &entity.BillingAddress{
		Line1:      strings.TrimSpace(r.BillingAddress.Line1),
		Line2:      strings.TrimSpace(r.BillingAddress.Line2),
		City:       strings.TrimSpace(r.BillingAddress.City),
		State:      strings.TrimSpace(r.BillingAddress.State),
		PostalCode: strings.TrimSpace(r.BillingAddress.PostalCode),
		Country:    strings.TrimSpace(r.BillingAddress.Country),
	}
}

type VerifyPaymentRequest struct {
	RazorpayOrderID   string     `json:"razorpayOrderId" validate:"required"`
	RazorpayPaymentID string     `json:"razorpayPaymentId" validate:"required"`
	RazorpaySignature string     `json:"razorpaySignature" validate:"required"`
	PaymentID         FlexibleID `json:"paymentId"`
}

func NewVerifyPaymentRequestFromContext(ctx echo.Context) (*VerifyPaymentRequest, error) {
	req := &VerifyPaymentRequest{}
	if err := ctx.Bind(req); err != nil {
		return nil, err
	}
	req.RazorpayOrderID = strings.TrimSpace(req.RazorpayOrderID)
	req.RazorpayPaymentID = strings.TrimSpace(req.RazorpayPaymentID)
	req.RazorpaySignature = strings.TrimSpace(req.RazorpaySignature)
	return req, nil
}

func (r *VerifyPaymentRequest) Validate() error {
	return validateStruct(r)
}

func (r *VerifyPaymentRequest) GetRazorpayOrderID() string { return r.RazorpayOrderID }
func (r *VerifyPaymentRequest) GetRazorpayPaymentID() string { return r.RazorpayPaymentID }
func (r *VerifyPaymentRequest) GetRazorpaySignature() string { return r.RazorpaySignature }
func (r *VerifyPaymentRequest) GetPaymentID() uint64 { return uint64(r.PaymentID) }

type GetDiscountRequest struct {
	Code string `validate:"required,max=64"`
}

func NewGetDiscountRequestFromContext(ctx echo.Context) (*GetDiscountRequest, error) {
	return &GetDiscountRequest{Code: strings.TrimSpace(ctx.Param("code"))}, nil
}

func (r *GetDiscountRequest) Validate() error {
	return validateStruct(r)
}

type GetPaymentRequest struct {
	ID uint64 `validate:"required"`
}

func NewGetPaymentRequestFromContext(ctx echo.Context) (*GetPaymentRequest, error) {
	id, err := parsePathID(ctx)
	if err != nil {
		return nil, err
	}
	return &GetPaymentRequest{ID: id}, nil
}

func (r *GetPaymentRequest) Validate() error {
	return validateStruct(r)
}

func (r *GetPaymentRequest) GetID() uint64 { return r.ID }

type ListPaymentsRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=created attempted paid failed cancelled refunded partially_refunded"`
	Email  string `query:"email" validate:"omitempty,email"`
	Limit  int32  `query:"limit" validate:"gte=0,max=500"`
	Offset int32  `query:"offset" validate:"gte=0"`
}

func NewListPaymentsRequestFromContext(ctx echo.Context) (*ListPaymentsRequest, error) {
	req := &ListPaymentsRequest{
		Status: strings.ToLower(strings.TrimSpace(ctx.QueryParam("status"))),
		Email:  strings.TrimSpace(ctx.QueryParam("email")),
	}

	if raw := strings.TrimSpace(ctx.QueryParam("limit")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(n)
	}
	if raw := strings.TrimSpace(ctx.QueryParam("offset")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(n)
	}

	return req, nil
}

func (r *ListPaymentsRequest) Validate() error {
	return validateStruct(r)
}

func (r *ListPaymentsRequest) GetStatus() string { return r.Status }
func (r *ListPaymentsRequest) GetEmail() string { return r.Email }
func (r *ListPaymentsRequest) GetLimit() int32 { return r.Limit }
func (r *ListPaymentsRequest) GetOffset() int32 { return r.Offset }

type RefundPaymentRequest struct {
	ID     uint64 `json:"-" validate:"required"`
	Amount int64  `json:"amount" validate:"gte=0"`
	Reason string `json:"reason" validate:"max=255"`
}

func NewRefundPaymentRequestFromContext(ctx echo.Context) (*RefundPaymentRequest, error) {
	id, err := parsePathID(ctx)
	if err != nil {
		return nil, err
	}

	req := &RefundPaymentRequest{}
	if ctx.Request().ContentLength != 0 {
		if err := ctx.Bind(req); err != nil {
			return nil, err
		}
	}
	req.ID = id
	req.Reason = strings.TrimSpace(req.Reason)
	return req, nil
}

func (r *RefundPaymentRequest) Validate() error {
	return validateStruct(r)
}

func (r *RefundPaymentRequest) GetID() uint64 { return r.ID }
func (r *RefundPaymentRequest) GetAmount() int64 { return r.Amount }
func (r *RefundPaymentRequest) GetReason() string { return r.Reason }

func parsePathID(ctx echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(ctx.Param("id")), 10, 64)
	if err != nil {
		return 0, ErrInvalidID
	}
	return id, nil
}
