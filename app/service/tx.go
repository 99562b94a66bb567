package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vibast-solutions/ms-go-gym-payments/app/repository"
)

// TxRepositories are bound to one database transaction.
type TxRepositories struct {
	Payments paymentRepository
	Members  memberRepository
	Refunds  refundRepository
	Events   paymentEventRepository
}

type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}

type SQLUnitOfWork struct {
	db *sql.DB
}

func NewSQLUnitOfWork(db *sql.DB) *SQLUnitOfWork {
	return &SQLUnitOfWork{db: db}
}

// Do commits when fn returns nil and rolls back otherwise.
func (u *SQLUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	repos := TxRepositories{
		Payments: repository.NewPaymentRepository(tx),
		Members:  repository.NewMemberRepository(tx),
		Refunds:  repository.NewRefundRepository(tx),
		Events:   repository.NewPaymentEventRepository(tx),
	}

	if err := fn(ctx, repos); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
