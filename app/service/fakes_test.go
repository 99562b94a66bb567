package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
	"github.com/vibast-solutions/ms-go-gym-payments/app/pricing"
	"github.com/vibast-solutions/ms-go-gym-payments/app/provider"
	"github.com/vibast-solutions/ms-go-gym-payments/app/repository"
	"github.com/vibast-solutions/ms-go-gym-payments/config"
)

const testSecret = "test_secret"

// memoryStore backs every repository fake with one set of maps so a fake
// unit of work can roll all of them back together.
type memoryStore struct {
	mu sync.Mutex

	payments map[uint64]*entity.Payment
	plans    map[uint64]*entity.MembershipPlan
	members  map[string]*entity.Member
	refunds  map[uint64][]*entity.Refund
	events   []*entity.PaymentEvent
	nextID   uint64

	writes        int
	failEventType string
	markPaidErr   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		payments: map[uint64]*entity.Payment{},
		plans:    map[uint64]*entity.MembershipPlan{},
		members:  map[string]*entity.Member{},
		refunds:  map[uint64][]*entity.Refund{},
		nextID:   100,
	}
}

func (s *memoryStore) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *memoryStore) addPlan(plan *entity.MembershipPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ID] = plan
}

func (s *memoryStore) payment(id uint64) *entity.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[id]; ok {
		return clonePayment(p)
	}
	return nil
}

func (s *memoryStore) member(email string) *entity.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[email]; ok {
		return cloneMember(m)
	}
	return nil
}

func (s *memoryStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *memoryStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type storeSnapshot struct {
	payments map[uint64]*entity.Payment
	members  map[string]*entity.Member
	refunds  map[uint64][]*entity.Refund
	events   []*entity.PaymentEvent
}

func (s *memoryStore) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := storeSnapshot{
		payments: make(map[uint64]*entity.Payment, len(s.payments)),
		members:  make(map[string]*entity.Member, len(s.members)),
		refunds:  make(map[uint64][]*entity.Refund, len(s.refunds)),
		events:   append([]*entity.PaymentEvent(nil), s.events...),
	}
	for k, v := range s.payments {
		snap.payments[k] = clonePayment(v)
	}
	for k, v := range s.members {
		snap.members[k] = cloneMember(v)
	}
	for k, v := range s.refunds {
		snap.refunds[k] = append([]*entity.Refund(nil), v...)
	}
	return snap
}

func (s *memoryStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = snap.payments
	s.members = snap.members
	s.refunds = snap.refunds
	s.events = snap.events
}

func clonePayment(p *entity.Payment) *entity.Payment {
	cp := *p
	if p.Notes != nil {
		cp.Notes = make(map[string]string, len(p.Notes))
		for k, v := range p.Notes {
			cp.Notes[k] = v
		}
	}
	cp.Refunds = nil
	return &cp
}

func cloneMember(m *entity.Member) *entity.Member {
	cp := *m
	cp.PaymentIDs = append([]uint64(nil), m.PaymentIDs...)
	return &cp
}

type storeUnitOfWork struct {
	store *memoryStore
	txMu  sync.Mutex
}

func (u *storeUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error {
	u.txMu.Lock()
	defer u.txMu.Unlock()

	snap := u.store.snapshot()
	err := fn(ctx, TxRepositories{
		Payments: &storePaymentRepo{store: u.store},
		Members:  &storeMemberRepo{store: u.store},
		Refunds:  &storeRefundRepo{store: u.store},
		Events:   &storeEventRepo{store: u.store},
	})
	if err != nil {
		u.store.restore(snap)
	}
	return err
}

type storePaymentRepo struct {
	store *memoryStore
}

func (r *storePaymentRepo) Create(_ context.Context, payment *entity.Payment) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.payments {
		if existing.GatewayOrderID == payment.GatewayOrderID {
			return repository.ErrPaymentAlreadyExists
		}
	}
	payment.ID = s.id()
	s.payments[payment.ID] = clonePayment(payment)
	s.writes++
	return nil
}

func (r *storePaymentRepo) MarkPaid(_ context.Context, payment *entity.Payment) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markPaidErr != nil {
		return s.markPaidErr
	}
	current, ok := s.payments[payment.ID]
	if !ok || !current.Verifiable() {
		return repository.ErrPaymentStateConflict
	}
	for _, other := range s.payments {
		if other.ID != payment.ID && other.GatewayPaymentID != nil && payment.GatewayPaymentID != nil &&
			*other.GatewayPaymentID == *payment.GatewayPaymentID {
			return repository.ErrPaymentAlreadyExists
		}
	}
	current.Status = entity.PaymentStatusPaid
	current.GatewayPaymentID = payment.GatewayPaymentID
	current.GatewaySignature = payment.GatewaySignature
	current.PaymentMethod = payment.PaymentMethod
	current.PaidAt = payment.PaidAt
	current.UpdatedAt = payment.UpdatedAt
	s.writes++
	return nil
}

func (r *storePaymentRepo) TransitionStatus(_ context.Context, id uint64, from []entity.PaymentStatus, to entity.PaymentStatus, now time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.payments[id]
	if !ok {
		return repository.ErrPaymentStateConflict
	}
	for _, status := range from {
		if current.Status == status {
			current.Status = to
			current.UpdatedAt = now
			s.writes++
			return nil
		}
	}
	return repository.ErrPaymentStateConflict
}

func (r *storePaymentRepo) LinkMember(_ context.Context, paymentID, memberID uint64, now time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.payments[paymentID]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	current.MemberID = &memberID
	current.UpdatedAt = now
	s.writes++
	return nil
}

func (r *storePaymentRepo) FindByID(_ context.Context, id uint64) (*entity.Payment, error) {
	return r.store.payment(id), nil
}

func (r *storePaymentRepo) FindByOrderID(_ context.Context, orderID string) (*entity.Payment, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.GatewayOrderID == orderID {
			return clonePayment(p), nil
		}
	}
	return nil, nil
}

func (r *storePaymentRepo) List(_ context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error) {
	return r.filter(func(p *entity.Payment) bool {
		if filter.Status != "" && string(p.Status) != filter.Status {
			return false
		}
		return filter.CustomerEmail == "" || p.CustomerEmail == filter.CustomerEmail
	}, filter.Limit), nil
}

func (r *storePaymentRepo) ListExpiredPending(_ context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error) {
	return r.filter(func(p *entity.Payment) bool {
		return p.Verifiable() && p.CreatedAt.Before(cutoff)
	}, limit), nil
}

func (r *storePaymentRepo) ListForReconcile(_ context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	return r.filter(func(p *entity.Payment) bool {
		return p.Mode == entity.PaymentModeLive && p.Verifiable() && p.UpdatedAt.Before(before)
	}, limit), nil
}

func (r *storePaymentRepo) filter(keep func(*entity.Payment) bool, limit int32) []*entity.Payment {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*entity.Payment{}
	for _, p := range s.payments {
		if keep(p) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && int(limit) < len(out) {
		out = out[:limit]
	}
	return out
}

type storePlanRepo struct {
	store *memoryStore
}

func (r *storePlanRepo) FindByID(_ context.Context, id uint64) (*entity.MembershipPlan, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.plans[id], nil
}

func (r *storePlanRepo) ListActive(_ context.Context) ([]*entity.MembershipPlan, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []*entity.MembershipPlan{}
	for _, p := range r.store.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

type storeMemberRepo struct {
	store *memoryStore
}

func (r *storeMemberRepo) FindByEmail(_ context.Context, email string) (*entity.Member, error) {
	return r.store.member(email), nil
}

func (r *storeMemberRepo) FindByEmailForUpdate(_ context.Context, email string) (*entity.Member, error) {
	return r.store.member(email), nil
}

func (r *storeMemberRepo) Create(_ context.Context, member *entity.Member) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[member.Email]; ok {
		return repository.ErrMemberAlreadyExists
	}
	member.ID = s.id()
	s.members[member.Email] = cloneMember(member)
	s.writes++
	return nil
}

func (r *storeMemberRepo) Update(_ context.Context, member *entity.Member) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[member.Email]; !ok {
		return repository.ErrMemberNotFound
	}
	s.members[member.Email] = cloneMember(member)
	s.writes++
	return nil
}

func (r *storeMemberRepo) AppendPayment(_ context.Context, memberID, paymentID uint64, _ time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.ID != memberID {
			continue
		}
		if !m.HasPayment(paymentID) {
			m.PaymentIDs = append(m.PaymentIDs, paymentID)
			s.writes++
		}
		return nil
	}
	return repository.ErrMemberNotFound
}

func (r *storeMemberRepo) DeactivateExpired(_ context.Context, now time.Time, limit int32) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for _, m := range s.members {
		if limit > 0 && affected >= int64(limit) {
			break
		}
		if m.Status == entity.MemberStatusActive && m.MembershipEndDate != nil && m.MembershipEndDate.Before(now) {
			m.Status = entity.MemberStatusInactive
			m.UpdatedAt = now
			affected++
		}
	}
	return affected, nil
}

type storeRefundRepo struct {
	store *memoryStore
}

func (r *storeRefundRepo) Create(_ context.Context, refund *entity.Refund) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	refund.ID = s.id()
	cp := *refund
	s.refunds[refund.PaymentID] = append(s.refunds[refund.PaymentID], &cp)
	s.writes++
	return nil
}

func (r *storeRefundRepo) ListByPayment(_ context.Context, paymentID uint64) ([]*entity.Refund, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.Refund, 0, len(s.refunds[paymentID]))
	for _, item := range s.refunds[paymentID] {
		cp := *item
		out = append(out, &cp)
	}
	return out, nil
}

func (r *storeRefundRepo) ListPending(_ context.Context, limit int32) ([]*entity.Refund, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*entity.Refund{}
	for _, items := range s.refunds {
		for _, item := range items {
			if item.Status == entity.RefundStatusPending && item.GatewayRefundID != nil {
				cp := *item
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *storeRefundRepo) SettlePending(_ context.Context, id uint64, status entity.RefundStatus) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for paymentID, items := range s.refunds {
		for i, item := range items {
			if item.ID != id {
				continue
			}
			if item.Status != entity.RefundStatusPending {
				return repository.ErrRefundStateConflict
			}
			cp := *item
			cp.Status = status
			updated := append([]*entity.Refund(nil), items...)
			updated[i] = &cp
			s.refunds[paymentID] = updated
			s.writes++
			return nil
		}
	}
	return repository.ErrRefundStateConflict
}

type storeEventRepo struct {
	store *memoryStore
}

var errEventWriteFailed = errors.New("event write failed")

func (r *storeEventRepo) Create(_ context.Context, event *entity.PaymentEvent) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEventType != "" && s.failEventType == event.EventType {
		return errEventWriteFailed
	}
	event.ID = s.id()
	cp := *event
	s.events = append(s.events, &cp)
	s.writes++
	return nil
}

func (r *storeEventRepo) ListDuePublish(_ context.Context, now time.Time, limit int32) ([]*entity.PaymentEvent, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*entity.PaymentEvent{}
	for _, e := range s.events {
		if e.PublishStatus == entity.PublishStatusPending && (e.PublishNextAt == nil || !e.PublishNextAt.After(now)) {
			cp := *e
			out = append(out, &cp)
		}
		if limit > 0 && int32(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (r *storeEventRepo) UpdatePublishState(_ context.Context, event *entity.PaymentEvent) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.events {
		if e.ID == event.ID {
			cp := *event
			s.events[i] = &cp
			return nil
		}
	}
	return errors.New("event not found")
}

// scriptedGateway is a live-mode gateway whose answers the test controls.
type scriptedGateway struct {
	mu sync.Mutex

	orderSeq     int
	createErr    error
	fetchStatus  string
	fetchErr     error
	fetchCalls   int
	order        *provider.Order
	orderPayment []*provider.PaymentDetails
	refundStatus      string
	refundErr         error
	refunds           []*provider.RefundInput
	refundFetchStatus string
	refundFetchErr    error
}

func (g *scriptedGateway) Mode() entity.PaymentMode { return entity.PaymentModeLive }

func (g *scriptedGateway) KeyID() string { return "rzp_test_key" }

func (g *scriptedGateway) CreateOrder(_ context.Context, input *provider.OrderInput) (*provider.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.orderSeq++
	return &provider.Order{
		ID:          fmt.Sprintf("order_live_%03d", g.orderSeq),
		AmountMinor: input.AmountMinor,
		Currency:    input.Currency,
		Receipt:     input.Receipt,
		Status:      provider.OrderStatusCreated,
	}, nil
}

func (g *scriptedGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return provider.SignPayment(testSecret, orderID, paymentID) == signature
}

func (g *scriptedGateway) FetchPayment(_ context.Context, paymentID string) (*provider.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	status := g.fetchStatus
	if status == "" {
		status = provider.PaymentStatusCaptured
	}
	return &provider.PaymentDetails{ID: paymentID, Method: "upi", Status: status}, nil
}

func (g *scriptedGateway) FetchOrderPayments(_ context.Context, orderID string) (*provider.Order, []*provider.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order := g.order
	if order == nil {
		order = &provider.Order{ID: orderID, Status: provider.OrderStatusCreated}
	}
	return order, g.orderPayment, nil
}

func (g *scriptedGateway) Refund(_ context.Context, input *provider.RefundInput) (*provider.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, input)
	status := g.refundStatus
	if status == "" {
		status = "processed"
	}
	return &provider.RefundResult{ID: "rfnd_" + input.PaymentID, Status: status}, nil
}

func (g *scriptedGateway) FetchRefund(_ context.Context, refundID string) (*provider.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundFetchErr != nil {
		return nil, g.refundFetchErr
	}
	status := g.refundFetchStatus
	if status == "" {
		status = "pending"
	}
	return &provider.RefundResult{ID: refundID, Status: status}, nil
}

type orderRequest struct {
	planID    uint64
	name      string
	email     string
	phone     string
	discount  string
	startDate string
	address   *entity.BillingAddress
}

func (r orderRequest) GetPlanID() uint64 { return r.planID }
func (r orderRequest) GetCustomerName() string { return r.name }
func (r orderRequest) GetCustomerEmail() string { return r.email }
func (r orderRequest) GetCustomerPhone() string { return r.phone }
func (r orderRequest) GetBillingAddress() *entity.BillingAddress { return r.address }
func (r orderRequest) GetDiscountCode() string { return r.discount }
func (r orderRequest) GetMembershipStartDate() string { return r.startDate }

type verifyRequest struct {
	orderID   string
	paymentID string
	signature string
	internal  uint64
}

func (r verifyRequest) GetRazorpayOrderID() string { return r.orderID }
func (r verifyRequest) GetRazorpayPaymentID() string { return r.paymentID }
func (r verifyRequest) GetRazorpaySignature() string { return r.signature }
func (r verifyRequest) GetPaymentID() uint64 { return r.internal }

type refundRequest struct {
	id     uint64
	amount int64
	reason string
}

func (r refundRequest) GetID() uint64 { return r.id }
func (r refundRequest) GetAmount() int64 { return r.amount }
func (r refundRequest) GetReason() string { return r.reason }

type listRequest struct {
	status string
	email  string
	limit  int32
	offset int32
}

func (r listRequest) GetStatus() string { return r.status }
func (r listRequest) GetEmail() string { return r.email }
func (r listRequest) GetLimit() int32 { return r.limit }
func (r listRequest) GetOffset() int32 { return r.offset }

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testPaymentsConfig() config.PaymentsConfig {
	return config.PaymentsConfig{
		DefaultCurrency:     "INR",
		PendingTimeout:      30 * time.Minute,
		ReconcileStaleAfter: 10 * time.Minute,
		JobBatchSize:        50,
		VerificationLockTTL: 30 * time.Second,
		EventMaxAttempts:    3,
		EventRetryInterval:  time.Minute,
	}
}

type serviceFixture struct {
	store   *memoryStore
	gateway *scriptedGateway
	locker  *MemoryLocker
	svc     *PaymentService
}

func newServiceFixture(gateways ...provider.Gateway) *serviceFixture {
	store := newMemoryStore()
	store.addPlan(&entity.MembershipPlan{
		ID: 1, Name: "Monthly", Price: 2500, Currency: "INR",
		DurationValue: 1, DurationUnit: entity.DurationUnitMonth, IsActive: true,
	})
	store.addPlan(&entity.MembershipPlan{
		ID: 2, Name: "Annual", Price: 24000, Currency: "INR",
		DurationValue: 1, DurationUnit: entity.DurationUnitYear, IsActive: true, IsPopular: true,
	})
	store.addPlan(&entity.MembershipPlan{
		ID: 3, Name: "Retired", Price: 999, Currency: "INR",
		DurationValue: 1, DurationUnit: entity.DurationUnitWeek, IsActive: false,
	})

	gateway := &scriptedGateway{}
	if len(gateways) == 0 {
		gateways = []provider.Gateway{gateway}
	}

	locker := NewMemoryLocker()
	svc := NewPaymentService(
		Repositories{
			Payments: &storePaymentRepo{store: store},
			Plans:    &storePlanRepo{store: store},
			Members:  &storeMemberRepo{store: store},
			Refunds:  &storeRefundRepo{store: store},
		},
		&storeUnitOfWork{store: store},
		pricing.NewCalculator(pricing.DefaultDiscountTable()),
		provider.NewRegistry(gateways...),
		locker,
		testPaymentsConfig(),
	)
	svc.now = func() time.Time { return testNow }
	svc.applier.now = func() time.Time { return testNow }

	return &serviceFixture{store: store, gateway: gateway, locker: locker, svc: svc}
}

func (f *serviceFixture) createOrder(t *testing.T, req orderRequest) *OrderResult {
	t.Helper()
	if req.planID == 0 {
		req.planID = 1
	}
	if req.name == "" {
		req.name = "Asha Rao"
	}
	if req.email == "" {
		req.email = "asha@example.com"
	}
	result, err := f.svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return result
}

func signedVerify(orderID, paymentID string) verifyRequest {
	return verifyRequest{
		orderID:   orderID,
		paymentID: paymentID,
		signature: provider.SignPayment(testSecret, orderID, paymentID),
	}
}
