package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
)

var ErrRefundStateConflict = errors.New("refund status changed concurrently")

const refundColumns = `id, payment_id, amount, reason, gateway_refund_id, status, created_at`

type RefundRepository struct {
	db DBTX
}

func NewRefundRepository(db DBTX) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, refund *entity.Refund) error {
	query := `
		INSERT INTO payment_refunds (payment_id, amount, reason, gateway_refund_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		refund.PaymentID,
		refund.Amount,
		nullableStringValue(refund.Reason),
		nullableStringValue(refund.GatewayRefundID),
		refund.Status,
		refund.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	refund.ID = uint64(id)
	return nil
}

func (r *RefundRepository) ListByPayment(ctx context.Context, paymentID uint64) ([]*entity.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM payment_refunds WHERE payment_id = ? ORDER BY id ASC`
	return r.list(ctx, query, paymentID)
}

// ListPending returns refunds the gateway has not settled yet, oldest first.
func (r *RefundRepository) ListPending(ctx context.Context, limit int32) ([]*entity.Refund, error) {
	query := `SELECT ` + refundColumns + `
		FROM payment_refunds
		WHERE status = ? AND gateway_refund_id IS NOT NULL
		ORDER BY id ASC
		LIMIT ?`
	return r.list(ctx, query, entity.RefundStatusPending, limit)
}

// SettlePending moves a pending refund to status. It returns
// ErrRefundStateConflict when the refund is no longer pending.
func (r *RefundRepository) SettlePending(ctx context.Context, id uint64, status entity.RefundStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payment_refunds SET status = ? WHERE id = ? AND status = ?`,
		status, id, entity.RefundStatusPending,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRefundStateConflict
	}
	return nil
}

func (r *RefundRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Refund, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]*entity.Refund, 0)
	for rows.Next() {
		var reason sql.NullString
		var gatewayRefundID sql.NullString
		item := &entity.Refund{}
		if err := rows.Scan(
			&item.ID,
			&item.PaymentID,
			&item.Amount,
			&reason,
			&gatewayRefundID,
			&item.Status,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		item.Reason = stringPtrFromNull(reason)
		item.GatewayRefundID = stringPtrFromNull(gatewayRefundID)
		refunds = append(refunds, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return refunds, nil
}
