//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/adapter"
	"trulyinvoice/internal/domain/ports/repository"
)

// =============================
// Repositories
// =============================

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User

	SaveFunc              func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc          func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
	UpdateEntitlementFunc func(ctx context.Context, tx repository.Tx, id string, plan model.Tier, status model.SubscriptionStatus, expiresAt *time.Time) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{users: map[string]*model.User{}}
}

func (m *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepo) UpdateEntitlement(ctx context.Context, tx repository.Tx, id string, plan model.Tier, status model.SubscriptionStatus, expiresAt *time.Time) error {
	if m.UpdateEntitlementFunc != nil {
		return m.UpdateEntitlementFunc(ctx, tx, id, plan, status, expiresAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Plan = plan
	u.SubscriptionStatus = status
	u.SubscriptionExpiresAt = expiresAt
	return nil
}

func (m *MockUserRepo) SetStatus(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.SubscriptionStatus = status
	return nil
}

func (m *MockUserRepo) Get(id string) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Subscription

	UpsertFunc         func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	IncrementScansFunc func(ctx context.Context, tx repository.Tx, userID string, limit int) (bool, error)
	ListDueFunc        func(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{subs: map[string]*model.Subscription{}}
}

func (m *MockSubscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs[s.UserID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	if m.ListDueFunc != nil {
		return m.ListDueFunc(ctx, tx, now, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.IsDue(now) && len(out) < limit {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) IncrementScans(ctx context.Context, tx repository.Tx, userID string, limit int) (bool, error) {
	if m.IncrementScansFunc != nil {
		return m.IncrementScansFunc(ctx, tx, userID, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[userID]
	if !ok || s.Status != model.SubscriptionStatusActive || s.ScansUsed >= limit {
		return false, nil
	}
	s.ScansUsed++
	return true, nil
}

func (m *MockSubscriptionRepo) DecrementScans(ctx context.Context, tx repository.Tx, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[userID]; ok && s.ScansUsed > 0 {
		s.ScansUsed--
	}
	return nil
}

func (m *MockSubscriptionRepo) Get(userID string) *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[userID]
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*model.Payment // by order id

	SaveFunc func(ctx context.Context, tx repository.Tx, p *model.Payment) error
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{payments: map[string]*model.Payment{}}
}

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.OrderID] = &cp
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) MarkPaidIfUnpaid(ctx context.Context, tx repository.Tx, orderID, paymentID string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[orderID]
	if !ok || p.Status == model.PaymentStatusPaid {
		return false, nil
	}
	p.Status = model.PaymentStatusPaid
	p.PaymentID = &paymentID
	p.PaidAt = &paidAt
	return true, nil
}

func (m *MockPaymentRepo) MarkFailedIfCreated(ctx context.Context, tx repository.Tx, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[orderID]
	if !ok || p.Status != model.PaymentStatusCreated {
		return false, nil
	}
	p.Status = model.PaymentStatusFailed
	return true, nil
}

func (m *MockPaymentRepo) ListCreatedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.payments {
		if p.Status == model.PaymentStatusCreated && p.CreatedAt.Before(cutoff) && len(out) < limit {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.payments {
		if p.UserID == userID && len(out) < limit {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockPaymentRepo) Get(orderID string) *model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[orderID]
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu     sync.Mutex
	orders map[string]*model.Order
	seq    int

	CreateOrderFunc func(ctx context.Context, req model.OrderRequest) (*model.Order, error)
	FetchOrderFunc  func(ctx context.Context, orderID string) (*model.Order, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{orders: map[string]*model.Order{}}
}

func (m *MockPaymentGateway) Name() string  { return "mock" }
func (m *MockPaymentGateway) KeyID() string { return "rzp_test_key" }

func (m *MockPaymentGateway) CreateOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	o := &model.Order{
		ID:       "order_" + string(rune('A'+m.seq-1)),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
		Notes:    req.Notes,
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *MockPaymentGateway) FetchOrder(ctx context.Context, orderID string) (*model.Order, error) {
	if m.FetchOrderFunc != nil {
		return m.FetchOrderFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, &domain.GatewayError{Op: "fetch_order", Status: 400, Message: "The id provided does not exist"}
	}
	cp := *o
	return &cp, nil
}

// PutOrder seeds an order as if it had been created earlier.
func (m *MockPaymentGateway) PutOrder(o *model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

// ---- Mock SignatureVerifier ----

type MockVerifier struct {
	VerifyFunc func(orderID, paymentID, signature string) bool
}

var _ adapter.SignatureVerifier = (*MockVerifier)(nil)

// Verify accepts the signature "valid" unless VerifyFunc is set.
func (m *MockVerifier) Verify(orderID, paymentID, signature string) bool {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(orderID, paymentID, signature)
	}
	return signature == "valid"
}

// ---- Mock Locker ----

type MockLocker struct {
	mu   sync.Mutex
	held map[string]bool

	Err error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]bool{}}
}

func (l *MockLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.Err != nil {
		return nil, l.Err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLocked
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

// ---- Mock InvoiceProcessor ----

type MockProcessor struct {
	mu    sync.Mutex
	Calls []string

	ProcessFunc func(ctx context.Context, documentID, accessToken string) error
}

var _ adapter.InvoiceProcessor = (*MockProcessor)(nil)

func (m *MockProcessor) Process(ctx context.Context, documentID, accessToken string) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, documentID)
	m.mu.Unlock()
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, documentID, accessToken)
	}
	return nil
}

// =============================
// Infra helpers for tests
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	mu         sync.Mutex
	Calls      int
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
