package entity

import (
	"errors"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusCreated           PaymentStatus = "created"
	PaymentStatusAttempted         PaymentStatus = "attempted"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusCancelled         PaymentStatus = "cancelled"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// PaymentMode is fixed when the order is created and decides how the payment is verified.
type PaymentMode string

const (
	PaymentModeLive PaymentMode = "live"
	PaymentModeMock PaymentMode = "mock"
)

var ErrNegativeTotal = errors.New("payment total cannot be negative")

type BillingAddress struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Payment struct {
	ID uint64

	GatewayOrderID   string
	GatewayPaymentID *string
	GatewaySignature *string
	Mode             PaymentMode
	Receipt          string

	Amount         int64
	Currency       string
	TaxRate        int64
	TaxAmount      int64
	DiscountAmount int64
	DiscountCode   *string
	Total          int64

	Status        PaymentStatus
	PaymentMethod *string
	PaidAt        *time.Time

	PlanID   uint64
	MemberID *uint64

	CustomerName   string
	CustomerEmail  string
	CustomerPhone  *string
	BillingAddress *BillingAddress

	MembershipStartDate time.Time
	MembershipEndDate   time.Time

	Notes map[string]string

	Refunds []*Refund

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecomputeTotal keeps Total = Amount + TaxAmount - DiscountAmount.
func (p *Payment) RecomputeTotal() error {
	total := p.Amount + p.TaxAmount - p.DiscountAmount
	if total < 0 {
		return ErrNegativeTotal
	}
	p.Total = total
	return nil
}

// AmountMinor is the total in the gateway's minor currency unit.
func (p *Payment) AmountMinor() int64 {
	return p.Total * 100
}

// Verifiable reports whether the payment may still transition to paid.
func (p *Payment) Verifiable() bool {
	return p.Status == PaymentStatusCreated || p.Status == PaymentStatusAttempted
}

// Settled reports whether the payment already went through a successful verification.
func (p *Payment) Settled() bool {
	switch p.Status {
	case PaymentStatusPaid, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

func IsValidPaymentStatus(status PaymentStatus) bool {
	switch status {
	case PaymentStatusCreated,
		PaymentStatusAttempted,
		PaymentStatusPaid,
		PaymentStatusFailed,
		PaymentStatusCancelled,
		PaymentStatusRefunded,
		PaymentStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}
