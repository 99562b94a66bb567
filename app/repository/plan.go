package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
)

const planColumns = `id, name, price, currency, duration_value, duration_unit, features_json, is_active, is_popular, created_at, updated_at`

type PlanRepository struct {
	db DBTX
}

func NewPlanRepository(db DBTX) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) FindByID(ctx context.Context, id uint64) (*entity.MembershipPlan, error) {
	query := `SELECT ` + planColumns + ` FROM membership_plans WHERE id = ?`

	plan := &entity.MembershipPlan{}
	if err := scanPlan(r.db.QueryRowContext(ctx, query, id), plan); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return plan, nil
}

// ListActive returns active plans, cheapest first.
func (r *PlanRepository) ListActive(ctx context.Context) ([]*entity.MembershipPlan, error) {
	query := `SELECT ` + planColumns + ` FROM membership_plans WHERE is_active = 1 ORDER BY price ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]*entity.MembershipPlan, 0)
	for rows.Next() {
		item := &entity.MembershipPlan{}
		if err := scanPlan(rows, item); err != nil {
			return nil, err
		}
		plans = append(plans, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return plans, nil
}

func scanPlan(scan rowScanner, plan *entity.MembershipPlan) error {
	var featuresJSON sql.NullString

	if err := scan.Scan(
		&plan.ID,
		&plan.Name,
		&plan.Price,
		&plan.Currency,
		&plan.DurationValue,
		&plan.DurationUnit,
		&featuresJSON,
		&plan.IsActive,
		&plan.IsPopular,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	); err != nil {
		return err
	}

	plan.Features = []string{}
	if featuresJSON.Valid && featuresJSON.String != "" {
		if err := json.Unmarshal([]byte(featuresJSON.String), &plan.Features); err != nil {
			return err
		}
	}

	return nil
}
