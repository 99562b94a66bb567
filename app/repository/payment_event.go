package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
)

type PaymentEventRepository struct {
	db DBTX
}

func NewPaymentEventRepository(db DBTX) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

func (r *PaymentEventRepository) Create(ctx context.Context, event *entity.PaymentEvent) error {
	query := `
		INSERT INTO payment_events (
			payment_id, event_type, old_status, new_status, payload_json,
			publish_status, publish_attempts, publish_next_at, publish_last_error, published_at,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var oldStatus interface{}
	if event.OldStatus != nil {
		oldStatus = string(*event.OldStatus)
	}

	result, err := r.db.ExecContext(ctx, query,
		event.PaymentID,
		event.EventType,
		oldStatus,
		event.NewStatus,
		nullableStringValue(event.PayloadJSON),
		event.PublishStatus,
		event.PublishAttempts,
		nullableTimeValue(event.PublishNextAt),
		nullableStringValue(event.PublishLastError),
		nullableTimeValue(event.PublishedAt),
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}

func (r *PaymentEventRepository) ListDuePublish(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentEvent, error) {
	query := `
		SELECT id, payment_id, event_type, old_status, new_status, payload_json,
			publish_status, publish_attempts, publish_next_at, publish_last_error, published_at,
			created_at
		FROM payment_events
		WHERE publish_status = ?
		  AND publish_next_at IS NOT NULL
		  AND publish_next_at <= ?
		ORDER BY publish_next_at ASC, id ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.PublishStatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*entity.PaymentEvent, 0)
	for rows.Next() {
		var oldStatus sql.NullString
		var payloadJSON sql.NullString
		var nextAt sql.NullTime
		var lastErr sql.NullString
		var publishedAt sql.NullTime

		item := &entity.PaymentEvent{}
		if err := rows.Scan(
			&item.ID,
			&item.PaymentID,
			&item.EventType,
			&oldStatus,
			&item.NewStatus,
			&payloadJSON,
			&item.PublishStatus,
			&item.PublishAttempts,
			&nextAt,
			&lastErr,
			&publishedAt,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}

		if oldStatus.Valid {
			status := entity.PaymentStatus(oldStatus.String)
			item.OldStatus = &status
		}
		item.PayloadJSON = stringPtrFromNull(payloadJSON)
		item.PublishNextAt = timePtrFromNull(nextAt)
		item.PublishLastError = stringPtrFromNull(lastErr)
		item.PublishedAt = timePtrFromNull(publishedAt)
		events = append(events, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func (r *PaymentEventRepository) UpdatePublishState(ctx context.Context, event *entity.PaymentEvent) error {
	query := `
		UPDATE payment_events SET
			publish_status = ?,
			publish_attempts = ?,
			publish_next_at = ?,
			publish_last_error = ?,
			published_at = ?
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query,
		event.PublishStatus,
		event.PublishAttempts,
		nullableTimeValue(event.PublishNextAt),
		nullableStringValue(event.PublishLastError),
		nullableTimeValue(event.PublishedAt),
		event.ID,
	)
	return err
}
