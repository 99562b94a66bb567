package entity

import "time"

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusProcessed RefundStatus = "processed"
	RefundStatusFailed    RefundStatus = "failed"
)

type Refund struct {
	ID        uint64
	PaymentID uint64

	Amount          int64
	Reason          *string
	GatewayRefundID *string
	Status          RefundStatus

	CreatedAt time.Time
}

// RefundedAmount sums the refunds that actually moved money.
func RefundedAmount(refunds []*Refund) int64 {
	var sum int64
	for _, r := range refunds {
		if r != nil && r.Status == RefundStatusProcessed {
			sum += r.Amount
		}
	}
	return sum
}

// ReservedRefundAmount sums every refund that has not failed. Pending refunds
// still hold their share of the balance until the gateway settles them.
func ReservedRefundAmount(refunds []*Refund) int64 {
	var sum int64
	for _, r := range refunds {
		if r != nil && r.Status != RefundStatusFailed {
			sum += r.Amount
		}
	}
	return sum
}

// ProjectRefundStatus derives the payment status from its refund history.
// Payments that were never paid keep their current status.
func ProjectRefundStatus(current PaymentStatus, total int64, refunds []*Refund) PaymentStatus {
	switch current {
	case PaymentStatusPaid, PaymentStatusPartiallyRefunded, PaymentStatusRefunded:
	default:
		return current
	}

	refunded := RefundedAmount(refunds)
	switch {
	case refunded <= 0:
		return PaymentStatusPaid
	case refunded >= total:
		return PaymentStatusRefunded
	default:
		return PaymentStatusPartiallyRefunded
	}
}
