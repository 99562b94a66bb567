package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
	"github.com/vibast-solutions/ms-go-gym-payments/app/provider"
	"github.com/vibast-solutions/ms-go-gym-payments/app/repository"
)

type refundPaymentRequest interface {
	GetID() uint64
	GetAmount() int64
	GetReason() string
}

func (s *PaymentService) RefundPayment(ctx context.Context, req refundPaymentRequest) (*entity.Payment, error) {
	if req.GetAmount() < 0 {
		return nil, fmt.Errorf("%w: amount cannot be negative", ErrInvalidRequest)
	}

	payment, err := s.repos.Payments.FindByID(ctx, req.GetID())
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	gateway, err := s.gatewayFor(payment)
	if err != nil {
		return nil, err
	}

	err = s.withPaymentLock(ctx, payment.ID, func() error {
		current, err := s.repos.Payments.FindByID(ctx, payment.ID)
		if err != nil {
			return fmt.Errorf("reload payment: %w", err)
		}
		if current == nil {
			return ErrPaymentNotFound
		}
		payment = current

		if payment.Status != entity.PaymentStatusPaid && payment.Status != entity.PaymentStatusPartiallyRefunded {
			return fmt.Errorf("%w: payment is %s", ErrInvalidStatus, payment.Status)
		}
		if payment.GatewayPaymentID == nil || strings.TrimSpace(*payment.GatewayPaymentID) == "" {
			return fmt.Errorf("%w: payment has no gateway payment id", ErrInvalidStatus)
		}

		refunds, err := s.repos.Refunds.ListByPayment(ctx, payment.ID)
		if err != nil {
			return fmt.Errorf("list refunds: %w", err)
		}

		remaining := payment.Total - entity.ReservedRefundAmount(refunds)
		amount := req.GetAmount()
		if amount == 0 {
			amount = remaining
		}
		if amount <= 0 || amount > remaining {
			return ErrRefundExceedsBalance
		}

		reason := normalizeOptionalString(req.GetReason())
		notes := map[string]string{"paymentId": strconv.FormatUint(payment.ID, 10)}
		if reason != nil {
			notes["reason"] = *reason
		}

		result, err := gateway.Refund(ctx, &provider.RefundInput{
			PaymentID:   *payment.GatewayPaymentID,
			AmountMinor: amount * 100,
			Notes:       notes,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}

		now := s.now()
		refund := &entity.Refund{
			PaymentID:       payment.ID,
			Amount:          amount,
			Reason:          reason,
			GatewayRefundID: normalizeOptionalString(result.ID),
			Status:          refundStatusFromGateway(result.Status),
			CreatedAt:       now,
		}
		refunds = append(refunds, refund)

		oldStatus := payment.Status
		newStatus := entity.ProjectRefundStatus(payment.Status, payment.Total, refunds)

		err = s.uow.Do(ctx, func(ctx context.Context, repos TxRepositories) error {
			if err := repos.Refunds.Create(ctx, refund); err != nil {
				return fmt.Errorf("create refund: %w", err)
			}
			if newStatus == oldStatus {
				return nil
			}

			err := repos.Payments.TransitionStatus(ctx, payment.ID,
				[]entity.PaymentStatus{entity.PaymentStatusPaid, entity.PaymentStatusPartiallyRefunded},
				newStatus, now)
			if err != nil {
				if errors.Is(err, repository.ErrPaymentStateConflict) {
					return fmt.Errorf("%w: payment status changed during refund", ErrInvalidStatus)
				}
				return fmt.Errorf("update payment status: %w", err)
			}
			payment.Status = newStatus
			payment.UpdatedAt = now

			return repos.Events.Create(ctx, newOutboxEvent(payment, entity.EventPaymentRefunded, &oldStatus, map[string]interface{}{
				"paymentId":      payment.ID,
				"refundAmount":   refund.Amount,
				"refundedAmount": entity.RefundedAmount(refunds),
				"status":         newStatus,
			}, now))
		})
		if err != nil {
			payment.Status = oldStatus
			s.logger.WithError(err).WithFields(logrus.Fields{
				"payment_id":         payment.ID,
				"gateway_payment_id": *payment.GatewayPaymentID,
				"gateway_refund_id":  result.ID,
				"refund_amount":      amount,
				"refund_status":      refund.Status,
			}).Error("Gateway refund issued but not recorded")
			return err
		}

		payment.Refunds = refunds
		s.logger.WithFields(logrus.Fields{
			"payment_id":    payment.ID,
			"refund_amount": amount,
			"refund_status": refund.Status,
			"status":        payment.Status,
		}).Info("Refund recorded")
		return nil
	})
	if err != nil {
		return nil, err
	}

	return payment, nil
}

func refundStatusFromGateway(status string) entity.RefundStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "processed":
		return entity.RefundStatusProcessed
	case "failed":
		return entity.RefundStatusFailed
	default:
		return entity.RefundStatusPending
	}
}

// RunRefundSyncBatch asks the gateway about refunds it accepted as pending and
// records how they settled.
func (s *PaymentService) RunRefundSyncBatch(ctx context.Context) error {
	items, err := s.repos.Refunds.ListPending(ctx, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, refund := range items {
		if refund == nil || refund.GatewayRefundID == nil {
			continue
		}
		if err := s.syncRefund(ctx, refund); err != nil {
			if errors.Is(err, ErrVerificationInProgress) {
				continue
			}
			s.logger.WithError(err).WithFields(logrus.Fields{
				"refund_id":  refund.ID,
				"payment_id": refund.PaymentID,
			}).Warn("Refund sync failed")
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *PaymentService) syncRefund(ctx context.Context, refund *entity.Refund) error {
	payment, err := s.repos.Payments.FindByID(ctx, refund.PaymentID)
	if err != nil {
		return fmt.Errorf("find payment: %w", err)
	}
	if payment == nil {
		return ErrPaymentNotFound
	}

	gateway, err := s.gatewayFor(payment)
	if err != nil {
		return err
	}
	result, err := gateway.FetchRefund(ctx, *refund.GatewayRefundID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	settled := refundStatusFromGateway(result.Status)
	if settled == entity.RefundStatusPending {
		return nil
	}

	return s.withPaymentLock(ctx, payment.ID, func() error {
		current, err := s.repos.Payments.FindByID(ctx, payment.ID)
		if err != nil {
			return fmt.Errorf("reload payment: %w", err)
		}
		if current == nil {
			return ErrPaymentNotFound
		}
		refunds, err := s.repos.Refunds.ListByPayment(ctx, current.ID)
		if err != nil {
			return fmt.Errorf("list refunds: %w", err)
		}
		for _, item := range refunds {
			if item.ID == refund.ID {
				item.Status = settled
			}
		}

		now := s.now()
		oldStatus := current.Status
		newStatus := entity.ProjectRefundStatus(current.Status, current.Total, refunds)

		alreadySettled := false
		err = s.uow.Do(ctx, func(ctx context.Context, repos TxRepositories) error {
			if err := repos.Refunds.SettlePending(ctx, refund.ID, settled); err != nil {
				if errors.Is(err, repository.ErrRefundStateConflict) {
					alreadySettled = true
					return nil
				}
				return fmt.Errorf("settle refund: %w", err)
			}

			if newStatus != oldStatus {
				err := repos.Payments.TransitionStatus(ctx, current.ID,
					[]entity.PaymentStatus{entity.PaymentStatusPaid, entity.PaymentStatusPartiallyRefunded},
					newStatus, now)
				if err != nil {
					return fmt.Errorf("update payment status: %w", err)
				}
				current.Status = newStatus
				current.UpdatedAt = now
			}

			eventType := entity.EventPaymentRefunded
			if settled == entity.RefundStatusFailed {
				eventType = entity.EventRefundFailed
			}
			return repos.Events.Create(ctx, newOutboxEvent(current, eventType, &oldStatus, map[string]interface{}{
				"paymentId":       current.ID,
				"refundId":        refund.ID,
				"gatewayRefundId": *refund.GatewayRefundID,
				"refundAmount":    refund.Amount,
				"refundStatus":    settled,
				"refundedAmount":  entity.RefundedAmount(refunds),
				"status":          current.Status,
			}, now))
		})
		if err != nil {
			current.Status = oldStatus
			return err
		}
		if alreadySettled {
			return nil
		}

		s.logger.WithFields(logrus.Fields{
			"payment_id":    current.ID,
			"refund_id":     refund.ID,
			"refund_status": settled,
			"status":        current.Status,
		}).Info("Refund settled")
		return nil
	})
}
