package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
	"github.com/vibast-solutions/ms-go-gym-payments/app/repository"
)

type MembershipInput struct {
	Name      string
	Email     string
	Phone     *string
	PlanID    uint64
	StartDate time.Time
	EndDate   time.Time
	PaymentID uint64
}

// MembershipApplier keeps exactly one member per email in sync with the latest paid plan.
type MembershipApplier struct {
	now func() time.Time
}

func NewMembershipApplier() *MembershipApplier {
	return &MembershipApplier{now: func() time.Time { return time.Now().UTC() }}
}

func (a *MembershipApplier) Apply(ctx context.Context, members memberRepository, input MembershipInput) (*entity.Member, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: member email is required", ErrInvalidRequest)
	}

	now := a.now()
	member, err := members.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find member: %w", err)
	}

	if member == nil {
		member, err = a.create(ctx, members, email, input, now)
		if err != nil {
			return nil, err
		}
	} else if err := a.refresh(ctx, members, member, input, now); err != nil {
		return nil, err
	}

	if err := members.AppendPayment(ctx, member.ID, input.PaymentID, now); err != nil {
		return nil, fmt.Errorf("append member payment: %w", err)
	}
	if !member.HasPayment(input.PaymentID) {
		member.PaymentIDs = append(member.PaymentIDs, input.PaymentID)
	}

	return member, nil
}

func (a *MembershipApplier) create(
	ctx context.Context,
	members memberRepository,
	email string,
	input MembershipInput,
	now time.Time,
) (*entity.Member, error) {
	planID := input.PlanID
	start := input.StartDate
	end := input.EndDate

	member := &entity.Member{
		Name:                input.Name,
		Email:               email,
		Phone:               input.Phone,
		PlanID:              &planID,
		MembershipStartDate: &start,
		MembershipEndDate:   &end,
		Status:              entity.MemberStatusActive,
		PaymentIDs:          []uint64{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err := members.Create(ctx, member)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, repository.ErrMemberAlreadyExists) {
		return nil, fmt.Errorf("create member: %w", err)
	}

	// Lost a race with a concurrent first purchase for the same email. A plain
	// read would still see this transaction's snapshot, without the winner's row.
	existing, err := members.FindByEmailForUpdate(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find member: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("member %s vanished after duplicate insert", email)
	}
	if err := a.refresh(ctx, members, existing, input, now); err != nil {
		return nil, err
	}
	return existing, nil
}

func (a *MembershipApplier) refresh(
	ctx context.Context,
	members memberRepository,
	member *entity.Member,
	input MembershipInput,
	now time.Time,
) error {
	planID := input.PlanID
	start := input.StartDate
	end := input.EndDate

	member.PlanID = &planID
	member.MembershipStartDate = &start
	member.MembershipEndDate = &end
	member.Status = entity.MemberStatusActive
	member.UpdatedAt = now

	if err := members.Update(ctx, member); err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	return nil
}
