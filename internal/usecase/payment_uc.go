// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/adapter"
	"trulyinvoice/internal/domain/ports/repository"
	"trulyinvoice/internal/infra/logging"
	"trulyinvoice/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// verifyLockTTL bounds how long one verification may hold the order lock.
const verifyLockTTL = 30 * time.Second

// CreateOrderInput accepts the tier-based request or the legacy shape with
// a rupee amount and plan name.
type CreateOrderInput struct {
	Tier         string
	BillingCycle string

	Amount   *float64 // rupees, legacy
	Currency string
	PlanName string
}

func (in CreateOrderInput) legacy() bool {
	return strings.TrimSpace(in.Tier) == "" && in.Amount != nil
}

type CreateOrderResult struct {
	OrderID      string
	Amount       int64 // paise
	Currency     string
	KeyID        string
	Receipt      string
	Tier         model.Tier
	BillingCycle model.BillingCycle
}

type VerifyPaymentInput struct {
	OrderID   string
	PaymentID string
	Signature string
}

type VerifyPaymentResult struct {
	Tier             model.Tier
	BillingCycle     model.BillingCycle
	ExpiresAt        time.Time
	AlreadyProcessed bool
}

type PaymentUseCase interface {
	CreateOrder(ctx context.Context, userID string, in CreateOrderInput) (*CreateOrderResult, error)
	VerifyPayment(ctx context.Context, userID string, in VerifyPaymentInput) (*VerifyPaymentResult, error)
	ListPayments(ctx context.Context, userID string, limit int) ([]*model.Payment, error)
}

type paymentUC struct {
	payments repository.PaymentRepository
	subUC    SubscriptionUseCase
	gateway  adapter.PaymentGateway
	verifier adapter.SignatureVerifier
	locker   adapter.Locker
	tm       repository.TransactionManager
	log      *zerolog.Logger
	now      func() time.Time
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	subUC SubscriptionUseCase,
	gateway adapter.PaymentGateway,
	verifier adapter.SignatureVerifier,
	locker adapter.Locker,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		payments: payments,
		subUC:    subUC,
		gateway:  gateway,
		verifier: verifier,
		locker:   locker,
		tm:       tm,
		log:      logger,
		now:      time.Now,
	}
}

// NewReceipt returns a gateway receipt id whose ULID part encodes the
// creation time.
func NewReceipt(t time.Time) string {
	return "rcpt_" + ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// resolveOrder prices the request. Legacy requests carry their own amount,
// which is accepted only when it equals a catalogue price; without a plan name
// the tier is inferred from that price.
func resolveOrder(in CreateOrderInput) (model.Tier, model.BillingCycle, int64, string, error) {
	cycle, err := model.ParseBillingCycle(in.BillingCycle)
	if err != nil {
		return "", "", 0, "", err
	}

	if !in.legacy() {
		tier, err := model.ParseTier(in.Tier)
		if err != nil {
			return "", "", 0, "", err
		}
		amount, err := model.PriceFor(tier, cycle)
		if err != nil {
			return "", "", 0, "", err
		}
		return tier, cycle, amount, model.DefaultCurrency, nil
	}

	amount := model.RupeesToPaise(*in.Amount)
	if amount <= 0 {
		return "", "", 0, "", domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = model.DefaultCurrency
	}

	// The amount must be a catalogue price: either the named plan's price for
	// the requested cycle, or any paid price when no plan is named.
	cycles := []model.BillingCycle{cycle}
	if strings.TrimSpace(in.BillingCycle) == "" {
		cycles = []model.BillingCycle{model.BillingMonthly, model.BillingYearly}
	}
	var tiers []model.Tier
	if strings.TrimSpace(in.PlanName) != "" {
		tier, err := model.ParseTier(in.PlanName)
		if err != nil {
			return "", "", 0, "", err
		}
		if tier == model.TierFree {
			return "", "", 0, "", domain.ErrFreeTier
		}
		tiers = []model.Tier{tier}
	} else {
		for _, p := range model.Plans() {
			tiers = append(tiers, p.Tier)
		}
	}
	tier, cycle, ok := matchPrice(amount, tiers, cycles)
	if !ok {
		return "", "", 0, "", fmt.Errorf("%w: %d paise is not a catalogue price", domain.ErrInvalidAmount, amount)
	}
	return tier, cycle, amount, currency, nil
}

func matchPrice(amount int64, tiers []model.Tier, cycles []model.BillingCycle) (model.Tier, model.BillingCycle, bool) {
	for _, t := range tiers {
		for _, c := range cycles {
			if price, err := model.PriceFor(t, c); err == nil && price == amount {
				return t, c, true
			}
		}
	}
	return "", "", false
}

func (u *paymentUC) CreateOrder(ctx context.Context, userID string, in CreateOrderInput) (*CreateOrderResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.CreateOrder")()
	log := logging.With(ctx, u.log)

	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	tier, cycle, amount, currency, err := resolveOrder(in)
	if err != nil {
		metrics.IncOrder(string(tier), string(cycle), "rejected")
		return nil, err
	}

	now := u.now()
	receipt := NewReceipt(now)
	notes := map[string]string{
		model.NoteUserID:       userID,
		model.NoteBillingCycle: string(cycle),
	}
	plan, _ := model.PlanFor(tier)
	notes[model.NoteTier] = string(tier)
	notes[model.NotePlanName] = plan.Name

	order, err := u.gateway.CreateOrder(ctx, model.OrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		metrics.IncOrder(string(tier), string(cycle), "error")
		log.Error().Err(err).Str("receipt", receipt).Msg("gateway order creation failed")
		return nil, fmt.Errorf("create order: %w", err)
	}
	metrics.IncOrder(string(tier), string(cycle), "ok")

	p := &model.Payment{
		ID:           uuid.NewString(),
		UserID:       userID,
		OrderID:      order.ID,
		Tier:         tier,
		BillingCycle: cycle,
		Amount:       order.Amount,
		Currency:     order.Currency,
		Receipt:      receipt,
		Status:       model.PaymentStatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// The order already exists at the gateway; verification backfills a
	// missing ledger row, so a failed insert is logged and not returned.
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("failed to record created payment")
	} else {
		metrics.IncPayment(string(model.PaymentStatusCreated))
	}

	log.Info().
		Str("order_id", order.ID).
		Str("tier", string(tier)).
		Str("cycle", string(cycle)).
		Int64("amount", order.Amount).
		Msg("order created")

	return &CreateOrderResult{
		OrderID:      order.ID,
		Amount:       order.Amount,
		Currency:     order.Currency,
		KeyID:        u.gateway.KeyID(),
		Receipt:      receipt,
		Tier:         tier,
		BillingCycle: cycle,
	}, nil
}

func (u *paymentUC) VerifyPayment(ctx context.Context, userID string, in VerifyPaymentInput) (*VerifyPaymentResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.VerifyPayment")()
	log := logging.With(ctx, u.log)

	if in.OrderID == "" || in.PaymentID == "" || in.Signature == "" {
		return nil, domain.ErrMissingPaymentParams
	}
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if !u.verifier.Verify(in.OrderID, in.PaymentID, in.Signature) {
		log.Warn().Str("order_id", in.OrderID).Msg("payment signature mismatch")
		return nil, domain.ErrSignatureMismatch
	}

	release, err := u.locker.Lock(ctx, "lock:verify:"+in.OrderID, verifyLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := u.gateway.FetchOrder(ctx, in.OrderID)
	if err != nil {
		log.Error().Err(err).Str("order_id", in.OrderID).Msg("gateway order lookup failed")
		return nil, fmt.Errorf("fetch order: %w", err)
	}
	if !order.OwnedBy(userID) {
		return nil, domain.ErrOrderOwnership
	}
	tier, err := order.PurchasedTier()
	if err != nil || tier == model.TierFree {
		return nil, fmt.Errorf("%w: order %s", domain.ErrUnsettleableOrder, order.ID)
	}
	cycle := order.PurchasedCycle()
	if price, err := model.PriceFor(tier, cycle); err != nil || price != order.Amount {
		log.Error().Str("order_id", order.ID).Int64("amount", order.Amount).Str("tier", string(tier)).
			Str("cycle", string(cycle)).Msg("order amount does not match the catalogue price")
		return nil, fmt.Errorf("%w: order %s amount %d", domain.ErrUnsettleableOrder, order.ID, order.Amount)
	}

	res := &VerifyPaymentResult{Tier: tier, BillingCycle: cycle}
	now := u.now()
	err = u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.payments.FindByOrderID(ctx, tx, order.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			p = &model.Payment{
				ID:           uuid.NewString(),
				UserID:       userID,
				OrderID:      order.ID,
				Tier:         tier,
				BillingCycle: cycle,
				Amount:       order.Amount,
				Currency:     order.Currency,
				Receipt:      order.Receipt,
				Status:       model.PaymentStatusCreated,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := u.payments.Save(ctx, tx, p); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		if p.UserID != userID {
			return domain.ErrOrderOwnership
		}
		if p.Status == model.PaymentStatusPaid {
			res.AlreadyProcessed = true
			return nil
		}

		settled, err := u.payments.MarkPaidIfUnpaid(ctx, tx, order.ID, in.PaymentID, now)
		if err != nil {
			return err
		}
		if !settled {
			res.AlreadyProcessed = true
			return nil
		}

		sub, err := u.subUC.ActivateTx(ctx, tx, userID, tier, cycle, now)
		if err != nil {
			return err
		}
		res.ExpiresAt = sub.CurrentPeriodEnd
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", order.ID).Msg("entitlement update failed")
		return nil, err
	}

	if res.AlreadyProcessed {
		log.Info().Str("order_id", order.ID).Msg("payment already verified")
		return res, nil
	}
	metrics.IncPayment(string(model.PaymentStatusPaid))
	metrics.AddPaymentRevenue(order.Currency, order.Amount)
	log.Info().
		Str("order_id", order.ID).
		Str("tier", string(tier)).
		Time("expires_at", res.ExpiresAt).
		Msg("payment verified, entitlement updated")
	return res, nil
}

func (u *paymentUC) ListPayments(ctx context.Context, userID string, limit int) ([]*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.ListPayments")()
	return u.payments.ListByUser(ctx, repository.NoTX, userID, limit)
}
