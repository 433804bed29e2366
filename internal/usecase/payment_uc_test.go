//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/repository"
	"trulyinvoice/internal/usecase"
)

// paymentUCTestDeps holds all the mock dependencies for the payment use case tests.
type paymentUCTestDeps struct {
	users    *MockUserRepo
	subs     *MockSubscriptionRepo
	payments *MockPaymentRepo
	gateway  *MockPaymentGateway
	verifier *MockVerifier
	locker   *MockLocker
	tm       *MockTxManager
	uc       usecase.PaymentUseCase
}

func newPaymentUCDeps(t *testing.T) *paymentUCTestDeps {
	t.Helper()
	d := &paymentUCTestDeps{
		users:    NewMockUserRepo(),
		subs:     NewMockSubscriptionRepo(),
		payments: NewMockPaymentRepo(),
		gateway:  NewMockPaymentGateway(),
		verifier: &MockVerifier{},
		locker:   NewMockLocker(),
		tm:       NewMockTxManager(),
	}
	subUC := usecase.NewSubscriptionUseCase(d.subs, d.users, d.tm, 10, newTestLogger())
	d.uc = usecase.NewPaymentUseCase(d.payments, subUC, d.gateway, d.verifier, d.locker, d.tm, newTestLogger())

	u, _ := model.NewUser("user-1", "a@example.com")
	_ = d.users.Save(context.Background(), repository.NoTX, u)
	free, _ := model.NewFreeSubscription("user-1", time.Now())
	_ = d.subs.Upsert(context.Background(), repository.NoTX, free)
	return d
}

func floatPtr(f float64) *float64 { return &f }

func TestPaymentUseCase_CreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("should price tiers and record a created payment", func(t *testing.T) {
		cases := []struct {
			tier, cycle string
			want        int64
		}{
			{"pro", "", 29900},
			{"pro", "monthly", 29900},
			{"pro", "yearly", 287040},
			{"basic", "yearly", 143040},
			{"ultra", "yearly", 575040},
			{"max", "yearly", 959040},
		}
		for _, tc := range cases {
			// --- Arrange ---
			d := newPaymentUCDeps(t)

			// --- Act ---
			res, err := d.uc.CreateOrder(ctx, "user-1", usecase.CreateOrderInput{Tier: tc.tier, BillingCycle: tc.cycle})

			// --- Assert ---
			if err != nil {
				t.Fatalf("%s/%s: unexpected error: %v", tc.tier, tc.cycle, err)
			}
			if res.Amount != tc.want {
				t.Errorf("%s/%s: expected %d paise, got %d", tc.tier, tc.cycle, tc.want, res.Amount)
			}
			if res.Currency != "INR" || res.KeyID != "rzp_test_key" {
				t.Errorf("unexpected currency/key: %s/%s", res.Currency, res.KeyID)
			}
			if !strings.HasPrefix(res.Receipt, "rcpt_") || len(res.Receipt) != len("rcpt_")+26 {
				t.Errorf("unexpected receipt %q", res.Receipt)
			}
			p := d.payments.Get(res.OrderID)
			if p == nil || p.Status != model.PaymentStatusCreated || p.UserID != "user-1" {
				t.Errorf("expected created payment row, got %+v", p)
			}
		}
	})

	t.Run("should attach ownership and tier notes to the order", func(t *testing.T) {
		d := newPaymentUCDeps(t)
		var notes map[string]string
		d.gateway.CreateOrderFunc = func(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
			notes = req.Notes
			return &model.Order{ID: "order_1", Amount: req.Amount, Currency: req.Currency, Notes: req.Notes}, nil
		}

		_, err := d.uc.CreateOrder(ctx, "user-1", usecase.CreateOrderInput{Tier: "Pro", BillingCycle: "yearly"})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := map[string]string{"user_id": "user-1", "tier": "pro", "billing_cycle": "yearly", "plan_name": "Pro"}
		for k, v := range want {
			if notes[k] != v {
				t.Errorf("note %s: expected %q, got %q", k, v, notes[k])
			}
		}
	})

	t.Run("should reject free, unknown tiers and bad cycles without calling the gateway", func(t *testing.T) {
		cases := []struct {
			in   usecase.CreateOrderInput
			want error
		}{
			{usecase.CreateOrderInput{Tier: "free"}, domain.ErrFreeTier},
			{usecase.CreateOrderInput{Tier: "gold"}, domain.ErrUnknownTier},
			{usecase.CreateOrderInput{}, domain.ErrUnknownTier},
			{usecase.CreateOrderInput{Tier: "pro", BillingCycle: "weekly"}, domain.ErrInvalidBillingCycle},
			{usecase.CreateOrderInput{Amount: floatPtr(0)}, domain.ErrInvalidAmount},
			{usecase.CreateOrderInput{Amount: floatPtr(-5)}, domain.ErrInvalidAmount},
			{usecase.CreateOrderInput{Amount: floatPtr(10), PlanName: "Platinum"}, domain.ErrUnknownTier},
		}
		for _, tc := range cases {
			d := newPaymentUCDeps(t)
			called := false
			d.gateway.CreateOrderFunc = func(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
				called = true
				return nil, nil
			}

			_, err := d.uc.CreateOrder(ctx, "user-1", tc.in)

			if !errors.Is(err, tc.want) {
				t.Errorf("%+v: expected %v, got %v", tc.in, tc.want, err)
			}
			if called {
				t.Errorf("%+v: gateway must not be called", tc.in)
			}
		}
	})

	t.Run("should convert legacy rupee amounts to paise", func(t *testing.T) {
		d := newPaymentUCDeps(t)

		res, err := d.uc.CreateOrder(ctx, "user-1", usecase.CreateOrderInput{Amount: floatPtr(149), PlanName: "Basic"})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Amount != 14900 || res.Tier != model.TierBasic || res.Currency != "INR" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("should infer the tier of a legacy order from its amount", func(t *testing.T) {
		d := newPaymentUCDeps(t)

		res, err := d.uc.CreateOrder(ctx, "user-1", usecase.CreateOrderInput{Amount: floatPtr(2870.40)})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Tier != model.TierPro || res.BillingCycle != model.BillingYearly {
			t.Errorf("expected pro/yearly, got %s/%s", res.Tier, res.BillingCycle)
		}
	})

	t.Run("should reject legacy amounts that are not the plan's price", func(t *testing.T) {
		cases := []usecase.CreateOrderInput{
			{Amount: floatPtr(1), PlanName: "Max", BillingCycle: "yearly"},
			{Amount: floatPtr(299), PlanName: "Max"},
			{Amount: floatPtr(2870.40), PlanName: "Pro", BillingCycle: "monthly"},
			{Amount: floatPtr(123)},
		}
		for _, in := range cases {
			d := newPaymentUCDeps(t)
			called := false
			d.gateway.CreateOrderFunc = func(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
				called = true
				return nil, nil
			}

			_, err := d.uc.CreateOrder(ctx, "user-1", in)

			if !errors.Is(err, domain.ErrInvalidAmount) {
				t.Errorf("%+v: expected ErrInvalidAmount, got %v", in, err)
			}
			if called {
				t.Errorf("%+v: gateway must not be called", in)
			}
		}
	})

	t.Run("should accept a legacy yearly price when no cycle is named", func(t *testing.T) {
		d := newPaymentUCDeps(t)

		res, err := d.uc.CreateOrder(ctx, "user-1", usecase.CreateOrderInput{Amount: floatPtr(2870.40), PlanName: "Pro"})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Tier != model.TierPro || res.BillingCycle != model.BillingYearly || res.Amount != 287040 {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("should surface gateway errors and record nothing", func(t *testing.T) {
		d := newPaymentUCDeps(t)
		d.gateway.CreateOrderFunc = func(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
			return nil, &domain.GatewayError{Op: "create_order", Status: 401, Message: "Authentication failed"}
		}

		_, err := d.uc.CreateOrder(ctx, "user-1", usecase.CreateOrderInput{Tier: "pro"})

		var gwErr *domain.GatewayError
		if !errors.As(err, &gwErr) || gwErr.Message != "Authentication failed" {
			t.Fatalf("expected gateway error, got %v", err)
		}
		if len(d.payments.payments) != 0 {
			t.Error("expected no payment rows")
		}
	})

	t.Run("should still return the order when the ledger insert fails", func(t *testing.T) {
		d := newPaymentUCDeps(t)
		d.payments.SaveFunc = func(ctx context.Context, tx repository.Tx, p *model.Payment) error {
			return domain.ErrOperationFailed
		}

		res, err := d.uc.CreateOrder(ctx, "user-1", usecase.CreateOrderInput{Tier: "pro"})

		if err != nil || res.OrderID == "" {
			t.Fatalf("expected order despite ledger failure, got %v", err)
		}
	})
}

func TestPaymentUseCase_VerifyPayment(t *testing.T) {
	ctx := context.Background()

	// createOrder runs a real order creation so the gateway and ledger agree.
	createOrder := func(t *testing.T, d *paymentUCTestDeps, tier, cycle string) string {
		t.Helper()
		res, err := d.uc.CreateOrder(ctx, "user-1", usecase.CreateOrderInput{Tier: tier, BillingCycle: cycle})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		return res.OrderID
	}

	t.Run("should entitle the user on a valid signature", func(t *testing.T) {
		// --- Arrange ---
		d := newPaymentUCDeps(t)
		orderID := createOrder(t, d, "pro", "yearly")

		// --- Act ---
		res, err := d.uc.VerifyPayment(ctx, "user-1", usecase.VerifyPaymentInput{OrderID: orderID, PaymentID: "pay_1", Signature: "valid"})

		// --- Assert ---
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.AlreadyProcessed || res.Tier != model.TierPro || res.BillingCycle != model.BillingYearly {
			t.Errorf("unexpected result %+v", res)
		}
		u := d.users.Get("user-1")
		if u.Plan != model.TierPro || u.SubscriptionStatus != model.SubscriptionStatusActive {
			t.Errorf("expected active pro user, got %s/%s", u.Plan, u.SubscriptionStatus)
		}
		p := d.payments.Get(orderID)
		if p.Status != model.PaymentStatusPaid || p.PaymentID == nil || *p.PaymentID != "pay_1" {
			t.Errorf("expected paid payment row, got %+v", p)
		}
		if sub := d.subs.Get("user-1"); sub.Tier != model.TierPro || sub.ScansUsed != 0 {
			t.Errorf("unexpected subscription %+v", sub)
		}
	})

	t.Run("should never entitle on a tampered signature", func(t *testing.T) {
		d := newPaymentUCDeps(t)
		orderID := createOrder(t, d, "max", "monthly")
		fetched := false
		d.gateway.FetchOrderFunc = func(ctx context.Context, id string) (*model.Order, error) {
			fetched = true
			return nil, nil
		}

		_, err := d.uc.VerifyPayment(ctx, "user-1", usecase.VerifyPaymentInput{OrderID: orderID, PaymentID: "pay_1", Signature: "forged"})

		if !errors.Is(err, domain.ErrSignatureMismatch) {
			t.Fatalf("expected ErrSignatureMismatch, got %v", err)
		}
		if fetched {
			t.Error("gateway must not be consulted before the signature matched")
		}
		if d.users.Get("user-1").Plan != model.TierFree || d.payments.Get(orderID).Status != model.PaymentStatusCreated {
			t.Error("expected nothing to change")
		}
	})

	t.Run("should leave the plan unchanged when the gateway lookup fails", func(t *testing.T) {
		d := newPaymentUCDeps(t)
		orderID := createOrder(t, d, "pro", "monthly")
		d.gateway.FetchOrderFunc = func(ctx context.Context, id string) (*model.Order, error) {
			return nil, &domain.GatewayError{Op: "fetch_order", Status: 502, Message: "bad gateway"}
		}

		_, err := d.uc.VerifyPayment(ctx, "user-1", usecase.VerifyPaymentInput{OrderID: orderID, PaymentID: "pay_1", Signature: "valid"})

		var gwErr *domain.GatewayError
		if !errors.As(err, &gwErr) {
			t.Fatalf("expected gateway error, got %v", err)
		}
		if d.users.Get("user-1").Plan != model.TierFree {
			t.Error("expected plan to stay free")
		}
	})

	t.Run("should reject missing parameters and anonymous callers", func(t *testing.T) {
		d := newPaymentUCDeps(t)

		_, err := d.uc.VerifyPayment(ctx, "user-1", usecase.VerifyPaymentInput{OrderID: "o", PaymentID: "p"})
		if !errors.Is(err, domain.ErrMissingPaymentParams) {
			t.Errorf("expected ErrMissingPaymentParams, got %v", err)
		}
		_, err = d.uc.VerifyPayment(ctx, "", usecase.VerifyPaymentInput{OrderID: "o", PaymentID: "p", Signature: "valid"})
		if !errors.Is(err, domain.ErrUnauthenticated) {
			t.Errorf("expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("should forbid settling another user's order", func(t *testing.T) {
		d := newPaymentUCDeps(t)
		d.gateway.PutOrder(&model.Order{ID: "order_x", Amount: 29900, Currency: "INR",
			Notes: map[string]string{"user_id": "someone-else", "tier": "pro"}})

		_, err := d.uc.VerifyPayment(ctx, "user-1", usecase.VerifyPaymentInput{OrderID: "order_x", PaymentID: "pay_1", Signature: "valid"})

		if !errors.Is(err, domain.ErrOrderOwnership) {
			t.Fatalf("expected ErrOrderOwnership, got %v", err)
		}
		if d.users.Get("user-1").Plan != model.TierFree {
			t.Error("expected plan to stay free")
		}
	})

	t.Run("should fall back to the plan name and backfill the ledger", func(t *testing.T) {
		d := newPaymentUCDeps(t)
		d.gateway.PutOrder(&model.Order{ID: "order_legacy", Amount: 59900, Currency: "INR",
			Notes: map[string]string{"plan_name": "Ultra"}})

		res, err := d.uc.VerifyPayment(ctx, "user-1", usecase.VerifyPaymentInput{OrderID: "order_legacy", PaymentID: "pay_9", Signature: "valid"})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Tier != model.TierUltra || res.BillingCycle != model.BillingMonthly {
			t.Errorf("unexpected result %+v", res)
		}
		if p := d.payments.Get("order_legacy"); p == nil || p.Status != model.PaymentStatusPaid {
			t.Errorf("expected backfilled paid row, got %+v", p)
		}
	})

	t.Run("should not entitle an order whose amount is below the tier's price", func(t *testing.T) {
		d := newPaymentUCDeps(t)
		d.gateway.PutOrder(&model.Order{ID: "order_cheap", Amount: 100, Currency: "INR",
			Notes: map[string]string{"user_id": "user-1", "tier": "max", "billing_cycle": "yearly"}})

		_, err := d.uc.VerifyPayment(ctx, "user-1", usecase.VerifyPaymentInput{OrderID: "order_cheap", PaymentID: "pay_1", Signature: "valid"})

		if !errors.Is(err, domain.ErrUnsettleableOrder) {
			t.Fatalf("expected ErrUnsettleableOrder, got %v", err)
		}
		if d.users.Get("user-1").Plan != model.TierFree {
			t.Error("expected plan to stay free")
		}
	})

	t.Run("should fail orders without a purchasable tier", func(t *testing.T) {
		d := newPaymentUCDeps(t)
		d.gateway.PutOrder(&model.Order{ID: "order_none", Amount: 100, Notes: map[string]string{}})

		_, err := d.uc.VerifyPayment(ctx, "user-1", usecase.VerifyPaymentInput{OrderID: "order_none", PaymentID: "pay_1", Signature: "valid"})

		if !errors.Is(err, domain.ErrUnsettleableOrder) {
			t.Fatalf("expected ErrUnsettleableOrder, got %v", err)
		}
	})

	t.Run("should be idempotent for an already verified order", func(t *testing.T) {
		// --- Arrange ---
		d := newPaymentUCDeps(t)
		orderID := createOrder(t, d, "pro", "monthly")
		in := usecase.VerifyPaymentInput{OrderID: orderID, PaymentID: "pay_1", Signature: "valid"}
		first, err := d.uc.VerifyPayment(ctx, "user-1", in)
		if err != nil {
			t.Fatalf("first verify: %v", err)
		}
		activations := 0
		d.users.UpdateEntitlementFunc = func(context.Context, repository.Tx, string, model.Tier, model.SubscriptionStatus, *time.Time) error {
			activations++
			return nil
		}

		// --- Act ---
		second, err := d.uc.VerifyPayment(ctx, "user-1", in)

		// --- Assert ---
		if err != nil {
			t.Fatalf("second verify: %v", err)
		}
		if !second.AlreadyProcessed || activations != 0 {
			t.Errorf("expected no second activation, got processed=%v activations=%d", second.AlreadyProcessed, activations)
		}
		if !d.users.Get("user-1").SubscriptionExpiresAt.Equal(first.ExpiresAt) {
			t.Error("expected expiry not to be extended twice")
		}
	})

	t.Run("should roll back the payment when the entitlement update fails", func(t *testing.T) {
		d := newPaymentUCDeps(t)
		orderID := createOrder(t, d, "pro", "monthly")
		d.users.UpdateEntitlementFunc = func(context.Context, repository.Tx, string, model.Tier, model.SubscriptionStatus, *time.Time) error {
			return domain.ErrOperationFailed
		}
		// Simulate rollback by snapshotting the row before the transaction.
		d.tm.WithTxFunc = func(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
			before := *d.payments.Get(orderID)
			if err := fn(ctx, repository.NoTX); err != nil {
				_ = d.payments.Save(ctx, repository.NoTX, &before)
				return err
			}
			return nil
		}

		_, err := d.uc.VerifyPayment(ctx, "user-1", usecase.VerifyPaymentInput{OrderID: orderID, PaymentID: "pay_1", Signature: "valid"})

		if !errors.Is(err, domain.ErrOperationFailed) {
			t.Fatalf("expected ErrOperationFailed, got %v", err)
		}
		if d.payments.Get(orderID).Status != model.PaymentStatusCreated {
			t.Error("expected payment to stay created after rollback")
		}
		if d.users.Get("user-1").Plan != model.TierFree {
			t.Error("expected plan to stay free")
		}
	})

	t.Run("should report a held lock", func(t *testing.T) {
		d := newPaymentUCDeps(t)
		orderID := createOrder(t, d, "pro", "monthly")
		release, _ := d.locker.Lock(ctx, "lock:verify:"+orderID, time.Minute)
		defer release()

		_, err := d.uc.VerifyPayment(ctx, "user-1", usecase.VerifyPaymentInput{OrderID: orderID, PaymentID: "pay_1", Signature: "valid"})

		if !errors.Is(err, domain.ErrLocked) {
			t.Fatalf("expected ErrLocked, got %v", err)
		}
	})

	t.Run("concurrent verifications activate once", func(t *testing.T) {
		d := newPaymentUCDeps(t)
		orderID := createOrder(t, d, "pro", "monthly")
		var mu sync.Mutex
		activations := 0
		d.users.UpdateEntitlementFunc = func(context.Context, repository.Tx, string, model.Tier, model.SubscriptionStatus, *time.Time) error {
			mu.Lock()
			activations++
			mu.Unlock()
			return nil
		}

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = d.uc.VerifyPayment(ctx, "user-1", usecase.VerifyPaymentInput{OrderID: orderID, PaymentID: "pay_1", Signature: "valid"})
			}()
		}
		wg.Wait()

		if activations != 1 {
			t.Errorf("expected exactly one activation, got %d", activations)
		}
	})
}
