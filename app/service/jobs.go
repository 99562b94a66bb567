package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
	"github.com/vibast-solutions/ms-go-gym-payments/app/provider"
	"github.com/vibast-solutions/ms-go-gym-payments/app/repository"
)

// RunReconcileBatch asks the gateway about live orders nobody verified yet.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) error {
	now := s.now()
	before := now.Add(-s.paymentsCfg.ReconcileStaleAfter)
	items, err := s.repos.Payments.ListForReconcile(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil || strings.TrimSpace(payment.GatewayOrderID) == "" {
			continue
		}
		if err := s.reconcilePayment(ctx, payment); err != nil {
			if errors.Is(err, ErrVerificationInProgress) {
				continue
			}
			s.logger.WithError(err).WithField("payment_id", payment.ID).Warn("Reconcile payment failed")
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *PaymentService) reconcilePayment(ctx context.Context, payment *entity.Payment) error {
	gateway, err := s.gatewayFor(payment)
	if err != nil {
		return err
	}

	order, payments, err := gateway.FetchOrderPayments(ctx, payment.GatewayOrderID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	var captured *provider.PaymentDetails
	for _, item := range payments {
		if item != nil && item.Successful() {
			captured = item
			break
		}
	}

	return s.withPaymentLock(ctx, payment.ID, func() error {
		current, err := s.repos.Payments.FindByID(ctx, payment.ID)
		if err != nil {
			return err
		}
		if current == nil || !current.Verifiable() {
			return nil
		}

		if captured != nil {
			_, err := s.settle(ctx, current, captured.ID, nil, captured.Method)
			if err == nil {
				s.logger.WithFields(logrus.Fields{
					"payment_id":         current.ID,
					"gateway_payment_id": captured.ID,
				}).Info("Payment settled by reconcile")
			}
			return err
		}

		if order != nil && order.Status == provider.OrderStatusAttempted && current.Status == entity.PaymentStatusCreated {
			return s.transition(ctx, current,
				[]entity.PaymentStatus{entity.PaymentStatusCreated},
				entity.PaymentStatusAttempted, entity.EventPaymentAttempted)
		}

		return nil
	})
}

// RunExpirePendingBatch cancels orders that stayed unpaid past the pending timeout.
func (s *PaymentService) RunExpirePendingBatch(ctx context.Context) error {
	now := s.now()
	cutoff := now.Add(-s.paymentsCfg.PendingTimeout)
	items, err := s.repos.Payments.ListExpiredPending(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil || !payment.Verifiable() {
			continue
		}

		err := s.withPaymentLock(ctx, payment.ID, func() error {
			return s.transition(ctx, payment,
				[]entity.PaymentStatus{entity.PaymentStatusCreated, entity.PaymentStatusAttempted},
				entity.PaymentStatusCancelled, entity.EventPaymentCancelled)
		})
		if err != nil {
			if errors.Is(err, ErrVerificationInProgress) || errors.Is(err, repository.ErrPaymentStateConflict) {
				continue
			}
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunExpireMembershipsBatch deactivates members whose membership end date has passed.
func (s *PaymentService) RunExpireMembershipsBatch(ctx context.Context) error {
	affected, err := s.repos.Members.DeactivateExpired(ctx, s.now(), s.batchSize())
	if err != nil {
		return err
	}
	if affected > 0 {
		s.logger.WithField("members", affected).Info("Memberships expired")
	}
	return nil
}

func (s *PaymentService) transition(
	ctx context.Context,
	payment *entity.Payment,
	from []entity.PaymentStatus,
	to entity.PaymentStatus,
	eventType string,
) error {
	now := s.now()
	oldStatus := payment.Status

	err := s.uow.Do(ctx, func(ctx context.Context, repos TxRepositories) error {
		if err := repos.Payments.TransitionStatus(ctx, payment.ID, from, to, now); err != nil {
			return err
		}
		payment.Status = to
		payment.UpdatedAt = now
		return repos.Events.Create(ctx, newOutboxEvent(payment, eventType, statusPtr(oldStatus), paymentEventPayload(payment), now))
	})
	if err != nil {
		payment.Status = oldStatus
		return err
	}
	return nil
}
