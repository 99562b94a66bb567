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

type verifyPaymentRequest interface {
	GetRazorpayOrderID() string
	GetRazorpayPaymentID() string
	GetRazorpaySignature() string
	GetPaymentID() uint64
}

type VerificationResult struct {
	Payment          *entity.Payment
	Member           *entity.Member
	AlreadyProcessed bool
}

func (s *PaymentService) VerifyPayment(ctx context.Context, req verifyPaymentRequest) (*VerificationResult, error) {
	orderID := strings.TrimSpace(req.GetRazorpayOrderID())
	gatewayPaymentID := strings.TrimSpace(req.GetRazorpayPaymentID())
	signature := strings.TrimSpace(req.GetRazorpaySignature())
	if orderID == "" || gatewayPaymentID == "" || signature == "" {
		return nil, fmt.Errorf("%w: razorpayOrderId, razorpayPaymentId and razorpaySignature are required", ErrInvalidRequest)
	}

	payment, err := s.repos.Payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if id := req.GetPaymentID(); id != 0 && id != payment.ID {
		return nil, fmt.Errorf("%w: paymentId does not belong to this order", ErrInvalidRequest)
	}

	gateway, err := s.gatewayFor(payment)
	if err != nil {
		return nil, err
	}
	if !gateway.VerifySignature(orderID, gatewayPaymentID, signature) {
		s.logger.WithFields(logrus.Fields{
			"payment_id": payment.ID,
			"order_id":   orderID,
		}).Warn("Payment signature mismatch")
		return nil, ErrSignatureMismatch
	}

	var result *VerificationResult
	err = s.withPaymentLock(ctx, payment.ID, func() error {
		current, err := s.repos.Payments.FindByID(ctx, payment.ID)
		if err != nil {
			return fmt.Errorf("reload payment: %w", err)
		}
		if current == nil {
			return ErrPaymentNotFound
		}

		if current.Settled() {
			result, err = s.replayVerification(ctx, current)
			return err
		}
		if !current.Verifiable() {
			return fmt.Errorf("%w: payment is %s", ErrInvalidStatus, current.Status)
		}

		details, err := gateway.FetchPayment(ctx, gatewayPaymentID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		if details.Status == provider.PaymentStatusFailed {
			if err := s.markFailed(ctx, current); err != nil {
				return err
			}
			return ErrPaymentFailed
		}

		sig := signature
		result, err = s.settle(ctx, current, gatewayPaymentID, &sig, details.Method)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PaymentService) replayVerification(ctx context.Context, payment *entity.Payment) (*VerificationResult, error) {
	member, err := s.repos.Members.FindByEmail(ctx, payment.CustomerEmail)
	if err != nil {
		return nil, fmt.Errorf("find member: %w", err)
	}

	s.logger.WithField("payment_id", payment.ID).Info("Payment already verified")
	return &VerificationResult{Payment: payment, Member: member, AlreadyProcessed: true}, nil
}

// settle applies the paid transition and the membership in one transaction.
// The caller must hold the payment lock.
func (s *PaymentService) settle(
	ctx context.Context,
	payment *entity.Payment,
	gatewayPaymentID string,
	signature *string,
	method string,
) (*VerificationResult, error) {
	now := s.now()
	oldStatus := payment.Status

	payment.GatewayPaymentID = &gatewayPaymentID
	payment.GatewaySignature = signature
	payment.PaymentMethod = normalizeOptionalString(method)
	payment.PaidAt = &now
	payment.UpdatedAt = now

	var member *entity.Member
	err := s.uow.Do(ctx, func(ctx context.Context, repos TxRepositories) error {
		if err := repos.Payments.MarkPaid(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrPaymentStateConflict) {
				return fmt.Errorf("%w: payment is no longer awaiting verification", ErrInvalidStatus)
			}
			if errors.Is(err, repository.ErrPaymentAlreadyExists) {
				return fmt.Errorf("%w: razorpayPaymentId is already attached to another order", ErrInvalidRequest)
			}
			return fmt.Errorf("mark payment paid: %w", err)
		}
		payment.Status = entity.PaymentStatusPaid

		applied, err := s.applier.Apply(ctx, repos.Members, MembershipInput{
			Name:      payment.CustomerName,
			Email:     payment.CustomerEmail,
			Phone:     payment.CustomerPhone,
			PlanID:    payment.PlanID,
			StartDate: payment.MembershipStartDate,
			EndDate:   payment.MembershipEndDate,
			PaymentID: payment.ID,
		})
		if err != nil {
			return err
		}

		if err := repos.Payments.LinkMember(ctx, payment.ID, applied.ID, now); err != nil {
			return fmt.Errorf("link member: %w", err)
		}
		memberID := applied.ID
		payment.MemberID = &memberID

		if err := repos.Events.Create(ctx, newOutboxEvent(payment, entity.EventPaymentPaid, &oldStatus, paymentEventPayload(payment), now)); err != nil {
			return fmt.Errorf("record payment event: %w", err)
		}
		if err := repos.Events.Create(ctx, newOutboxEvent(payment, entity.EventMembershipActivated, nil, map[string]interface{}{
			"memberId":          applied.ID,
			"email":             applied.Email,
			"planId":            payment.PlanID,
			"membershipStartAt": payment.MembershipStartDate,
			"membershipEndAt":   payment.MembershipEndDate,
		}, now)); err != nil {
			return fmt.Errorf("record membership event: %w", err)
		}

		member = applied
		return nil
	})
	if err != nil {
		payment.Status = oldStatus
		payment.MemberID = nil
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"member_id":  member.ID,
		"mode":       payment.Mode,
	}).Info("Payment verified")

	return &VerificationResult{Payment: payment, Member: member}, nil
}

func (s *PaymentService) markFailed(ctx context.Context, payment *entity.Payment) error {
	now := s.now()
	oldStatus := payment.Status

	err := s.uow.Do(ctx, func(ctx context.Context, repos TxRepositories) error {
		err := repos.Payments.TransitionStatus(ctx, payment.ID,
			[]entity.PaymentStatus{entity.PaymentStatusCreated, entity.PaymentStatusAttempted},
			entity.PaymentStatusFailed, now)
		if err != nil {
			if errors.Is(err, repository.ErrPaymentStateConflict) {
				return fmt.Errorf("%w: payment is no longer awaiting verification", ErrInvalidStatus)
			}
			return fmt.Errorf("mark payment failed: %w", err)
		}
		payment.Status = entity.PaymentStatusFailed
		payment.UpdatedAt = now
		return repos.Events.Create(ctx, newOutboxEvent(payment, entity.EventPaymentFailed, &oldStatus, paymentEventPayload(payment), now))
	})
	if err != nil {
		payment.Status = oldStatus
		return err
	}

	s.logger.WithField("payment_id", payment.ID).Warn("Gateway reported payment failure")
	return nil
}
