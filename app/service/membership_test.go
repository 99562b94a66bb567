package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
	"github.com/vibast-solutions/ms-go-gym-payments/app/repository"
)

// racingMemberRepo simulates a concurrent first purchase under a repeatable
// read snapshot: plain reads never see the winner's row, only a locking read
// does, and the insert collides.
type racingMemberRepo struct {
	storeMemberRepo
	lookups       int
	lockedLookups int
}

func (r *racingMemberRepo) FindByEmail(context.Context, string) (*entity.Member, error) {
	r.lookups++
	return nil, nil
}

func (r *racingMemberRepo) FindByEmailForUpdate(ctx context.Context, email string) (*entity.Member, error) {
	r.lockedLookups++
	return r.storeMemberRepo.FindByEmailForUpdate(ctx, email)
}

func (r *racingMemberRepo) Create(context.Context, *entity.Member) error {
	return repository.ErrMemberAlreadyExists
}

func membershipInput(paymentID uint64) MembershipInput {
	return MembershipInput{
		Name:      "Asha Rao",
		Email:     "Asha@Example.com",
		PlanID:    1,
		StartDate: testNow,
		EndDate:   testNow.AddDate(0, 0, 30),
		PaymentID: paymentID,
	}
}

func TestMembershipApplierCreatesMember(t *testing.T) {
	store := newMemoryStore()
	applier := NewMembershipApplier()
	applier.now = func() time.Time { return testNow }

	member, err := applier.Apply(context.Background(), &storeMemberRepo{store: store}, membershipInput(7))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if member.Email != "asha@example.com" || member.Status != entity.MemberStatusActive {
		t.Fatalf("unexpected member %+v", member)
	}
	if !member.HasPayment(7) || !store.member("asha@example.com").HasPayment(7) {
		t.Fatalf("payment not appended")
	}
}

func TestMembershipApplierRefreshesExistingMember(t *testing.T) {
	store := newMemoryStore()
	repo := &storeMemberRepo{store: store}
	applier := NewMembershipApplier()
	applier.now = func() time.Time { return testNow }

	first, err := applier.Apply(context.Background(), repo, membershipInput(7))
	if err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	if err := repo.Update(context.Background(), &entity.Member{ID: first.ID, Email: first.Email, Status: entity.MemberStatusInactive, PaymentIDs: first.PaymentIDs}); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	input := membershipInput(8)
	input.PlanID = 2
	input.EndDate = testNow.AddDate(0, 0, 365)
	second, err := applier.Apply(context.Background(), repo, input)
	if err != nil {
		t.Fatalf("second apply failed: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected the same member")
	}
	stored := store.member("asha@example.com")
	if stored.Status != entity.MemberStatusActive || *stored.PlanID != 2 || !stored.MembershipEndDate.Equal(input.EndDate) {
		t.Fatalf("member not refreshed: %+v", stored)
	}
	if len(stored.PaymentIDs) != 2 {
		t.Fatalf("expected two payments, got %v", stored.PaymentIDs)
	}
}

func TestMembershipApplierRecoversFromDuplicateInsert(t *testing.T) {
	store := newMemoryStore()
	existing := &entity.Member{Name: "Asha", Email: "asha@example.com", Status: entity.MemberStatusInactive}
	if err := (&storeMemberRepo{store: store}).Create(context.Background(), existing); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	repo := &racingMemberRepo{storeMemberRepo: storeMemberRepo{store: store}}
	applier := NewMembershipApplier()
	applier.now = func() time.Time { return testNow }

	member, err := applier.Apply(context.Background(), repo, membershipInput(9))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if member.ID != existing.ID || member.Status != entity.MemberStatusActive {
		t.Fatalf("expected the existing member to be refreshed, got %+v", member)
	}
	if repo.lookups != 1 || repo.lockedLookups != 1 {
		t.Fatalf("expected one plain and one locking lookup, got %d and %d", repo.lookups, repo.lockedLookups)
	}
}

func TestMembershipApplierRequiresEmail(t *testing.T) {
	applier := NewMembershipApplier()
	input := membershipInput(1)
	input.Email = "  "

	if _, err := applier.Apply(context.Background(), &storeMemberRepo{store: newMemoryStore()}, input); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
