package entity

import "time"

type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
)

type Member struct {
	ID uint64

	Name  string
	Email string
	Phone *string

	PlanID              *uint64
	MembershipStartDate *time.Time
	MembershipEndDate   *time.Time
	Status              MemberStatus

	PaymentIDs []uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m *Member) HasPayment(paymentID uint64) bool {
	for _, id := range m.PaymentIDs {
		if id == paymentID {
			return true
		}
	}
	return false
}
