package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
)

var (
	ErrMemberNotFound      = errors.New("member not found")
	ErrMemberAlreadyExists = errors.New("member already exists")
)

type MemberRepository struct {
	db DBTX
}

func NewMemberRepository(db DBTX) *MemberRepository {
	return &MemberRepository{db: db}
}

const memberByEmailQuery = `
	SELECT id, name, email, phone, plan_id, membership_start_date, membership_end_date,
		status, created_at, updated_at
	FROM members
	WHERE email = ?
	LIMIT 1
`

func (r *MemberRepository) FindByEmail(ctx context.Context, email string) (*entity.Member, error) {
	return r.findOne(ctx, memberByEmailQuery, email)
}

// FindByEmailForUpdate is a locking read. Inside a transaction it sees rows
// committed after the snapshot was taken and holds them until commit.
func (r *MemberRepository) FindByEmailForUpdate(ctx context.Context, email string) (*entity.Member, error) {
	return r.findOne(ctx, memberByEmailQuery+" FOR UPDATE", email)
}

func (r *MemberRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Member, error) {
	var phone sql.NullString
	var planID sql.NullInt64
	var startDate sql.NullTime
	var endDate sql.NullTime

	member := &entity.Member{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&member.ID,
		&member.Name,
		&member.Email,
		&phone,
		&planID,
		&startDate,
		&endDate,
		&member.Status,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	member.Phone = stringPtrFromNull(phone)
	member.PlanID = uint64PtrFromNull(planID)
	member.MembershipStartDate = timePtrFromNull(startDate)
	member.MembershipEndDate = timePtrFromNull(endDate)

	paymentIDs, err := r.listPaymentIDs(ctx, member.ID)
	if err != nil {
		return nil, err
	}
	member.PaymentIDs = paymentIDs

	return member, nil
}

func (r *MemberRepository) Create(ctx context.Context, member *entity.Member) error {
	query := `
		INSERT INTO members (
			name, email, phone, plan_id, membership_start_date, membership_end_date,
			status, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		member.Name,
		member.Email,
		nullableStringValue(member.Phone),
		nullableUint64Value(member.PlanID),
		nullableTimeValue(member.MembershipStartDate),
		nullableTimeValue(member.MembershipEndDate),
		member.Status,
		member.CreatedAt,
		member.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrMemberAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	member.ID = uint64(id)
	return nil
}

func (r *MemberRepository) Update(ctx context.Context, member *entity.Member) error {
	query := `
		UPDATE members SET
			name = ?,
			phone = ?,
			plan_id = ?,
			membership_start_date = ?,
			membership_end_date = ?,
			status = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		member.Name,
		nullableStringValue(member.Phone),
		nullableUint64Value(member.PlanID),
		nullableTimeValue(member.MembershipStartDate),
		nullableTimeValue(member.MembershipEndDate),
		member.Status,
		member.UpdatedAt,
		member.ID,
	)
	if err != nil {
		return err
	}

	return expectOneRow(result, ErrMemberNotFound)
}

// AppendPayment records paymentID in the member history at most once.
func (r *MemberRepository) AppendPayment(ctx context.Context, memberID, paymentID uint64, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO member_payments (member_id, payment_id, created_at) VALUES (?, ?, ?)`,
		memberID, paymentID, now,
	)
	return err
}

// DeactivateExpired flips at most limit active members whose membership ended before now.
func (r *MemberRepository) DeactivateExpired(ctx context.Context, now time.Time, limit int32) (int64, error) {
	query := `
		UPDATE members SET status = ?, updated_at = ?
		WHERE status = ? AND membership_end_date IS NOT NULL AND membership_end_date < ?
		ORDER BY membership_end_date ASC
		LIMIT ?
	`

	result, err := r.db.ExecContext(ctx, query,
		entity.MemberStatusInactive,
		now,
		entity.MemberStatusActive,
		now,
		limit,
	)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *MemberRepository) listPaymentIDs(ctx context.Context, memberID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT payment_id FROM member_payments WHERE member_id = ? ORDER BY created_at ASC, payment_id ASC`,
		memberID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
