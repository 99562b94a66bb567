package entity

import "time"

const (
	PublishStatusNone      int32 = 0
	PublishStatusPending   int32 = 1
	PublishStatusPublished int32 = 10
	PublishStatusFailed    int32 = 20
)

const (
	EventPaymentCreated      = "payment_created"
	EventPaymentPaid         = "payment_paid"
	EventPaymentFailed       = "payment_failed"
	EventPaymentAttempted    = "payment_attempted"
	EventPaymentCancelled    = "payment_cancelled"
	EventPaymentRefunded     = "payment_refunded"
	EventRefundFailed        = "refund_failed"
	EventMembershipActivated = "membership_activated"
)

type PaymentEvent struct {
	ID uint64

	PaymentID uint64

	EventType string

	OldStatus *PaymentStatus
	NewStatus PaymentStatus

	PayloadJSON *string

	PublishStatus    int32
	PublishAttempts  int32
	PublishNextAt    *time.Time
	PublishLastError *string
	PublishedAt      *time.Time

	CreatedAt time.Time
}
