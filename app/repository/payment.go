package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
	ErrPaymentStateConflict = errors.New("payment status changed concurrently")
)

const paymentColumns = `
	id, gateway_order_id, gateway_payment_id, gateway_signature, mode, receipt,
	amount, currency, tax_rate, tax_amount, discount_amount, discount_code, total,
	status, payment_method, paid_at, plan_id, member_id,
	customer_name, customer_email, customer_phone, billing_address_json,
	membership_start_date, membership_end_date, notes_json,
	created_at, updated_at
`

type PaymentFilter struct {
	Status        string
	CustomerEmail string
	Limit         int32
	Offset        int32
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	notesJSON, err := serializeNotes(payment.Notes)
	if err != nil {
		return err
	}
	billingJSON, err := serializeNullableJSON(payment.BillingAddress, payment.BillingAddress == nil)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (
			gateway_order_id, gateway_payment_id, gateway_signature, mode, receipt,
			amount, currency, tax_rate, tax_amount, discount_amount, discount_code, total,
			status, payment_method, paid_at, plan_id, member_id,
			customer_name, customer_email, customer_phone, billing_address_json,
			membership_start_date, membership_end_date, notes_json,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.GatewayOrderID,
		nullableStringValue(payment.GatewayPaymentID),
		nullableStringValue(payment.GatewaySignature),
		payment.Mode,
		payment.Receipt,
		payment.Amount,
		payment.Currency,
		payment.TaxRate,
		payment.TaxAmount,
		payment.DiscountAmount,
		nullableStringValue(payment.DiscountCode),
		payment.Total,
		payment.Status,
		nullableStringValue(payment.PaymentMethod),
		nullableTimeValue(payment.PaidAt),
		payment.PlanID,
		nullableUint64Value(payment.MemberID),
		payment.CustomerName,
		payment.CustomerEmail,
		nullableStringValue(payment.CustomerPhone),
		billingJSON,
		payment.MembershipStartDate,
		payment.MembershipEndDate,
		notesJSON,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

// MarkPaid moves a created or attempted payment to paid. It returns
// ErrPaymentStateConflict when another writer got there first.
func (r *PaymentRepository) MarkPaid(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments SET
			status = ?,
			gateway_payment_id = ?,
			gateway_signature = ?,
			payment_method = ?,
			paid_at = ?,
			updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		entity.PaymentStatusPaid,
		nullableStringValue(payment.GatewayPaymentID),
		nullableStringValue(payment.GatewaySignature),
		nullableStringValue(payment.PaymentMethod),
		nullableTimeValue(payment.PaidAt),
		payment.UpdatedAt,
		payment.ID,
		entity.PaymentStatusCreated,
		entity.PaymentStatusAttempted,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	return expectOneRow(result, ErrPaymentStateConflict)
}

// TransitionStatus changes status only while the row is still in one of from.
func (r *PaymentRepository) TransitionStatus(
	ctx context.Context,
	id uint64,
	from []entity.PaymentStatus,
	to entity.PaymentStatus,
	now time.Time,
) error {
	if len(from) == 0 {
		return ErrPaymentStateConflict
	}

	placeholders := make([]string, 0, len(from))
	args := make([]interface{}, 0, len(from)+3)
	args = append(args, to, now, id)
	for _, status := range from {
		placeholders = append(placeholders, "?")
		args = append(args, status)
	}

	query := `UPDATE payments SET status = ?, updated_at = ? WHERE id = ? AND status IN (` + strings.Join(placeholders, ", ") + `)`

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	return expectOneRow(result, ErrPaymentStateConflict)
}

func (r *PaymentRepository) LinkMember(ctx context.Context, paymentID, memberID uint64, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payments SET member_id = ?, updated_at = ? WHERE id = ?`,
		memberID, now, paymentID,
	)
	if err != nil {
		return err
	}

	return expectOneRow(result, ErrPaymentNotFound)
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uint64) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, id), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_order_id = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, orderID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) List(ctx context.Context, filter PaymentFilter) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments`

	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)

	if strings.TrimSpace(filter.Status) != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if strings.TrimSpace(filter.CustomerEmail) != "" {
		conditions = append(conditions, "customer_email = ?")
		args = append(args, filter.CustomerEmail)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return r.queryPayments(ctx, query, args...)
}

func (r *PaymentRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status IN (?, ?)
		  AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	return r.queryPayments(ctx, query, entity.PaymentStatusCreated, entity.PaymentStatusAttempted, cutoff, limit)
}

func (r *PaymentRepository) ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status IN (?, ?)
		  AND mode = ?
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	return r.queryPayments(ctx, query, entity.PaymentStatusCreated, entity.PaymentStatusAttempted, entity.PaymentModeLive, before, limit)
}

func (r *PaymentRepository) queryPayments(ctx context.Context, query string, args ...interface{}) ([]*entity.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var gatewayPaymentID sql.NullString
	var gatewaySignature sql.NullString
	var discountCode sql.NullString
	var paymentMethod sql.NullString
	var paidAt sql.NullTime
	var memberID sql.NullInt64
	var customerPhone sql.NullString
	var billingJSON sql.NullString
	var notesJSON string

	err := scan.Scan(
		&payment.ID,
		&payment.GatewayOrderID,
		&gatewayPaymentID,
		&gatewaySignature,
		&payment.Mode,
		&payment.Receipt,
		&payment.Amount,
		&payment.Currency,
		&payment.TaxRate,
		&payment.TaxAmount,
		&payment.DiscountAmount,
		&discountCode,
		&payment.Total,
		&payment.Status,
		&paymentMethod,
		&paidAt,
		&payment.PlanID,
		&memberID,
		&payment.CustomerName,
		&payment.CustomerEmail,
		&customerPhone,
		&billingJSON,
		&payment.MembershipStartDate,
		&payment.MembershipEndDate,
		&notesJSON,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.GatewayPaymentID = stringPtrFromNull(gatewayPaymentID)
	payment.GatewaySignature = stringPtrFromNull(gatewaySignature)
	payment.DiscountCode = stringPtrFromNull(discountCode)
	payment.PaymentMethod = stringPtrFromNull(paymentMethod)
	payment.PaidAt = timePtrFromNull(paidAt)
	payment.MemberID = uint64PtrFromNull(memberID)
	payment.CustomerPhone = stringPtrFromNull(customerPhone)

	if billingJSON.Valid && billingJSON.String != "" {
		address := &entity.BillingAddress{}
		if err := json.Unmarshal([]byte(billingJSON.String), address); err != nil {
			return err
		}
		payment.BillingAddress = address
	}

	notes, err := parseNotes(notesJSON)
	if err != nil {
		return err
	}
	payment.Notes = notes

	return nil
}

func expectOneRow(result sql.Result, notMatched error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notMatched
	}
	return nil
}
