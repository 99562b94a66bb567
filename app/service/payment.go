package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
	"github.com/vibast-solutions/ms-go-gym-payments/app/factory"
	"github.com/vibast-solutions/ms-go-gym-payments/app/pricing"
	"github.com/vibast-solutions/ms-go-gym-payments/app/provider"
	"github.com/vibast-solutions/ms-go-gym-payments/app/repository"
	"github.com/vibast-solutions/ms-go-gym-payments/config"
)

const (
	defaultListLimit = int32(100)
	maxListLimit     = int32(500)
	defaultBatchSize = int32(100)
	defaultLockTTL   = 30 * time.Second
	defaultCurrency  = "INR"
)

type createOrderRequest interface {
	GetPlanID() uint64
	GetCustomerName() string
	GetCustomerEmail() string
	GetCustomerPhone() string
	GetBillingAddress() *entity.BillingAddress
	GetDiscountCode() string
	GetMembershipStartDate() string
}

type listPaymentsRequest interface {
	GetStatus() string
	GetEmail() string
	GetLimit() int32
	GetOffset() int32
}

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	MarkPaid(ctx context.Context, payment *entity.Payment) error
	TransitionStatus(ctx context.Context, id uint64, from []entity.PaymentStatus, to entity.PaymentStatus, now time.Time) error
	LinkMember(ctx context.Context, paymentID, memberID uint64, now time.Time) error
	FindByID(ctx context.Context, id uint64) (*entity.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*entity.Payment, error)
	List(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error)
	ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error)
}

type planRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.MembershipPlan, error)
	ListActive(ctx context.Context) ([]*entity.MembershipPlan, error)
}

type memberRepository interface {
	FindByEmail(ctx context.Context, email string) (*entity.Member, error)
	FindByEmailForUpdate(ctx context.Context, email string) (*entity.Member, error)
	Create(ctx context.Context, member *entity.Member) error
	Update(ctx context.Context, member *entity.Member) error
	AppendPayment(ctx context.Context, memberID, paymentID uint64, now time.Time) error
	DeactivateExpired(ctx context.Context, now time.Time, limit int32) (int64, error)
}

type refundRepository interface {
	Create(ctx context.Context, refund *entity.Refund) error
	ListByPayment(ctx context.Context, paymentID uint64) ([]*entity.Refund, error)
	ListPending(ctx context.Context, limit int32) ([]*entity.Refund, error)
	SettlePending(ctx context.Context, id uint64, status entity.RefundStatus) error
}

type paymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
	ListDuePublish(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentEvent, error)
	UpdatePublishState(ctx context.Context, event *entity.PaymentEvent) error
}

// Repositories are the non-transactional reads the service performs.
type Repositories struct {
	Payments paymentRepository
	Plans    planRepository
	Members  memberRepository
	Refunds  refundRepository
}

// OrderResult is what a client needs to open the gateway checkout.
type OrderResult struct {
	Payment   *entity.Payment
	OrderID   string
	KeyID     string
	Breakdown pricing.Breakdown
	MockMode  bool
}

type PaymentService struct {
	repos       Repositories
	uow         UnitOfWork
	calculator  *pricing.Calculator
	providerReg *provider.Registry
	locker      Locker
	applier     *MembershipApplier
	paymentsCfg config.PaymentsConfig
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewPaymentService(
	repos Repositories,
	uow UnitOfWork,
	calculator *pricing.Calculator,
	providerReg *provider.Registry,
	locker Locker,
	paymentsCfg config.PaymentsConfig,
) *PaymentService {
	if locker == nil {
		locker = NewMemoryLocker()
	}

	return &PaymentService{
		repos:       repos,
		uow:         uow,
		calculator:  calculator,
		providerReg: providerReg,
		locker:      locker,
		applier:     NewMembershipApplier(),
		paymentsCfg: paymentsCfg,
		logger:      factory.NewModuleLogger("payments-service"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *PaymentService) CreateOrder(ctx context.Context, req createOrderRequest) (*OrderResult, error) {
	name := strings.TrimSpace(req.GetCustomerName())
	email := normalizeEmail(req.GetCustomerEmail())
	if req.GetPlanID() == 0 || name == "" || email == "" {
		return nil, fmt.Errorf("%w: planId, customer name and email are required", ErrInvalidRequest)
	}

	now := s.now()
	startDate, err := parseStartDate(req.GetMembershipStartDate(), now)
	if err != nil {
		return nil, err
	}

	plan, err := s.repos.Plans.FindByID(ctx, req.GetPlanID())
	if err != nil {
		return nil, fmt.Errorf("find plan: %w", err)
	}
	if plan == nil || !plan.IsActive {
		return nil, ErrPlanNotFound
	}

	breakdown := s.calculator.Quote(plan.Price, req.GetDiscountCode())
	endDate := startDate.AddDate(0, 0, plan.DurationInDays())

	gateway, err := s.providerReg.Primary()
	if err != nil {
		return nil, ErrProviderUnsupported
	}

	currency := strings.ToUpper(strings.TrimSpace(plan.Currency))
	if currency == "" {
		currency = s.currency()
	}

	notes := map[string]string{
		"planId":        strconv.FormatUint(plan.ID, 10),
		"planName":      plan.Name,
		"customerEmail": email,
	}
	if breakdown.DiscountCode != "" {
		notes["discountCode"] = breakdown.DiscountCode
	}

	payment := &entity.Payment{
		Mode:                gateway.Mode(),
		Receipt:             newReceipt(),
		Amount:              breakdown.PlanPrice,
		Currency:            currency,
		TaxRate:             breakdown.TaxRate,
		TaxAmount:           breakdown.TaxAmount,
		DiscountAmount:      breakdown.DiscountAmount,
		DiscountCode:        normalizeOptionalString(breakdown.DiscountCode),
		Status:              entity.PaymentStatusCreated,
		PlanID:              plan.ID,
		CustomerName:        name,
		CustomerEmail:       email,
		CustomerPhone:       normalizeOptionalString(req.GetCustomerPhone()),
		BillingAddress:      req.GetBillingAddress(),
		MembershipStartDate: startDate,
		MembershipEndDate:   endDate,
		Notes:               notes,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := payment.RecomputeTotal(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	order, err := gateway.CreateOrder(ctx, &provider.OrderInput{
		AmountMinor: payment.AmountMinor(),
		Currency:    currency,
		Receipt:     payment.Receipt,
		Notes:       notes,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	payment.GatewayOrderID = order.ID

	err = s.uow.Do(ctx, func(ctx context.Context, repos TxRepositories) error {
		if err := repos.Payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return repos.Events.Create(ctx, newOutboxEvent(payment, entity.EventPaymentCreated, nil, paymentEventPayload(payment), now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"order_id":   payment.GatewayOrderID,
		"mode":       payment.Mode,
		"total":      payment.Total,
	}).Info("Order created")

	return &OrderResult{
		Payment:   payment,
		OrderID:   order.ID,
		KeyID:     gateway.KeyID(),
		Breakdown: breakdown,
		MockMode:  gateway.Mode() == entity.PaymentModeMock,
	}, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id uint64) (*entity.Payment, error) {
	payment, err := s.repos.Payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	refunds, err := s.repos.Refunds.ListByPayment(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	payment.Refunds = refunds

	return payment, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, req listPaymentsRequest) ([]*entity.Payment, error) {
	limit := req.GetLimit()
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := req.GetOffset()
	if offset < 0 {
		offset = 0
	}

	status := strings.ToLower(strings.TrimSpace(req.GetStatus()))
	if status != "" && !entity.IsValidPaymentStatus(entity.PaymentStatus(status)) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}

	return s.repos.Payments.List(ctx, repository.PaymentFilter{
		Status:        status,
		CustomerEmail: normalizeEmail(req.GetEmail()),
		Limit:         limit,
		Offset:        offset,
	})
}

func (s *PaymentService) ListPlans(ctx context.Context) ([]*entity.MembershipPlan, error) {
	return s.repos.Plans.ListActive(ctx)
}

func (s *PaymentService) LookupDiscount(code string) (pricing.Discount, error) {
	discount, ok := s.calculator.Lookup(code)
	if !ok {
		return pricing.Discount{}, ErrDiscountNotFound
	}
	return discount, nil
}

// withPaymentLock runs fn while holding the per-payment lock.
func (s *PaymentService) withPaymentLock(ctx context.Context, paymentID uint64, fn func() error) error {
	key := "payments:lock:" + strconv.FormatUint(paymentID, 10)
	acquired, token, err := s.locker.TryLock(ctx, key, s.lockTTL())
	if err != nil {
		return fmt.Errorf("acquire payment lock: %w", err)
	}
	if !acquired {
		return ErrVerificationInProgress
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.WithError(err).WithField("payment_id", paymentID).Warn("Release payment lock failed")
		}
	}()

	return fn()
}

func (s *PaymentService) gatewayFor(payment *entity.Payment) (provider.Gateway, error) {
	gateway, err := s.providerReg.Get(payment.Mode)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}
	return gateway, nil
}

func (s *PaymentService) lockTTL() time.Duration {
	if s.paymentsCfg.VerificationLockTTL > 0 {
		return s.paymentsCfg.VerificationLockTTL
	}
	return defaultLockTTL
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func (s *PaymentService) currency() string {
	if c := strings.TrimSpace(s.paymentsCfg.DefaultCurrency); c != "" {
		return strings.ToUpper(c)
	}
	return defaultCurrency
}

func newOutboxEvent(payment *entity.Payment, eventType string, oldStatus *entity.PaymentStatus, payload interface{}, now time.Time) *entity.PaymentEvent {
	event := &entity.PaymentEvent{
		PaymentID:     payment.ID,
		EventType:     eventType,
		OldStatus:     oldStatus,
		NewStatus:     payment.Status,
		PublishStatus: entity.PublishStatusPending,
		PublishNextAt: &now,
		CreatedAt:     now,
	}
	if payload != nil {
		if encoded, err := json.Marshal(payload); err == nil {
			raw := string(encoded)
			event.PayloadJSON = &raw
		}
	}
	return event
}

func paymentEventPayload(payment *entity.Payment) map[string]interface{} {
	payload := map[string]interface{}{
		"paymentId":     payment.ID,
		"orderId":       payment.GatewayOrderID,
		"status":        payment.Status,
		"mode":          payment.Mode,
		"total":         payment.Total,
		"currency":      payment.Currency,
		"planId":        payment.PlanID,
		"customerEmail": payment.CustomerEmail,
	}
	if payment.GatewayPaymentID != nil {
		payload["transactionId"] = *payment.GatewayPaymentID
	}
	if payment.MemberID != nil {
		payload["memberId"] = *payment.MemberID
	}
	return payload
}

func parseStartDate(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: membershipStartDate must be RFC3339 or YYYY-MM-DD", ErrInvalidRequest)
}

func newReceipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func statusPtr(status entity.PaymentStatus) *entity.PaymentStatus {
	return &status
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}

// truncate cuts value to at most max bytes without splitting a rune.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	for max > 0 && !utf8.RuneStart(value[max]) {
		max--
	}
	return value[:max]
}
