package entity

import "time"

type DurationUnit string

const (
	DurationUnitDay   DurationUnit = "day"
	DurationUnitWeek  DurationUnit = "week"
	DurationUnitMonth DurationUnit = "month"
	DurationUnitYear  DurationUnit = "year"
)

// Days uses fixed lengths: a month is 30 days and a year is 365 days.
func (u DurationUnit) Days() int {
	switch u {
	case DurationUnitDay:
		return 1
	case DurationUnitWeek:
		return 7
	case DurationUnitMonth:
		return 30
	case DurationUnitYear:
		return 365
	default:
		return 0
	}
}

type MembershipPlan struct {
	ID uint64

	Name     string
	Price    int64
	Currency string

	DurationValue int
	DurationUnit  DurationUnit

	Features  []string
	IsActive  bool
	IsPopular bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *MembershipPlan) DurationInDays() int {
	if p.DurationValue <= 0 {
		return 0
	}
	return p.DurationValue * p.DurationUnit.Days()
}
