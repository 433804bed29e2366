// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/repository"
	"trulyinvoice/internal/infra/logging"
	"trulyinvoice/internal/infra/metrics"
)

var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionView is the subscription row together with its quota state.
type SubscriptionView struct {
	Subscription *model.Subscription `json:"subscription"`
	Usage        model.Usage         `json:"usage"`
}

type SubscriptionUseCase interface {
	// ActivateTx is the entitlement update. It must run inside the caller's
	// transaction, after the payment signature was checked.
	ActivateTx(ctx context.Context, tx repository.Tx, userID string, t model.Tier, cycle model.BillingCycle, now time.Time) (*model.Subscription, error)
	Get(ctx context.Context, userID string) (*SubscriptionView, error)
	Usage(ctx context.Context, userID string) (model.Usage, error)

	// ConsumeScan takes one scan from the current period or fails with
	// domain.ErrQuotaExceeded. ReleaseScan gives it back.
	ConsumeScan(ctx context.Context, userID string) (model.Tier, error)
	ReleaseScan(ctx context.Context, userID string) error

	// ProcessDue renews or expires every subscription whose period ended.
	ProcessDue(ctx context.Context, now time.Time) (expired, renewed int, err error)
}

type subscriptionUC struct {
	subs      repository.SubscriptionRepository
	users     repository.UserRepository
	tm        repository.TransactionManager
	log       *zerolog.Logger
	batchSize int
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, users repository.UserRepository, tm repository.TransactionManager, batchSize int, logger *zerolog.Logger) *subscriptionUC {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &subscriptionUC{subs: subs, users: users, tm: tm, log: logger, batchSize: batchSize}
}

func (u *subscriptionUC) ActivateTx(ctx context.Context, tx repository.Tx, userID string, t model.Tier, cycle model.BillingCycle, now time.Time) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ActivateTx")()

	if t == model.TierFree {
		return nil, domain.ErrFreeTier
	}
	if _, err := model.PlanFor(t); err != nil {
		return nil, err
	}

	sub, err := u.subs.FindByUser(ctx, tx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		sub = &model.Subscription{UserID: userID, CreatedAt: now}
	case err != nil:
		return nil, err
	}
	sub.StartPeriod(t, cycle, now)

	if err := u.users.UpdateEntitlement(ctx, tx, userID, t, model.SubscriptionStatusActive, &sub.CurrentPeriodEnd); err != nil {
		return nil, fmt.Errorf("update user entitlement: %w", err)
	}
	if err := u.subs.Upsert(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	metrics.IncEntitlementUpdate(t, cycle)
	return sub, nil
}

func (u *subscriptionUC) Get(ctx context.Context, userID string) (*SubscriptionView, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Get")()

	sub, err := u.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	usage, err := usageOf(sub)
	if err != nil {
		return nil, err
	}
	return &SubscriptionView{Subscription: sub, Usage: usage}, nil
}

func (u *subscriptionUC) Usage(ctx context.Context, userID string) (model.Usage, error) {
	sub, err := u.subs.FindByUser(ctx, repository.NoTX, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return usageOf(nil)
	}
	if err != nil {
		return model.Usage{}, err
	}
	return usageOf(sub)
}

// quotaOf is the single source of the scan allowance. Only an active
// subscription carries one; an expired, inactive or missing row has none
// until the next purchase.
func quotaOf(sub *model.Subscription) (model.Tier, int, error) {
	tier := sub.EffectiveTier()
	if sub == nil || sub.Status != model.SubscriptionStatusActive {
		return tier, 0, nil
	}
	plan, err := model.PlanFor(tier)
	if err != nil {
		return "", 0, err
	}
	return tier, plan.ScansLimit, nil
}

func usageOf(sub *model.Subscription) (model.Usage, error) {
	tier, limit, err := quotaOf(sub)
	if err != nil {
		return model.Usage{}, err
	}
	used := 0
	if sub != nil {
		used = sub.ScansUsed
	}
	return model.ComputeUsage(tier, used, limit), nil
}

func (u *subscriptionUC) ConsumeScan(ctx context.Context, userID string) (model.Tier, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ConsumeScan")()

	sub, err := u.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	tier, limit, err := quotaOf(sub)
	if err != nil {
		return "", err
	}
	if limit <= 0 {
		metrics.IncQuotaRejection(tier)
		return tier, domain.ErrQuotaExceeded
	}
	ok, err := u.subs.IncrementScans(ctx, repository.NoTX, userID, limit)
	if err != nil {
		return "", err
	}
	if !ok {
		metrics.IncQuotaRejection(tier)
		return tier, domain.ErrQuotaExceeded
	}
	return tier, nil
}

func (u *subscriptionUC) ReleaseScan(ctx context.Context, userID string) error {
	return u.subs.DecrementScans(ctx, repository.NoTX, userID)
}

func (u *subscriptionUC) ProcessDue(ctx context.Context, now time.Time) (int, int, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ProcessDue")()

	var expired, renewed int
	for {
		due, err := u.subs.ListDue(ctx, repository.NoTX, now, u.batchSize)
		if err != nil {
			return expired, renewed, err
		}
		progressed := 0
		for _, s := range due {
			if err := ctx.Err(); err != nil {
				return expired, renewed, err
			}
			exp, changed, err := u.rollover(ctx, s.UserID, now)
			if err != nil {
				u.log.Error().Err(err).Str("user_id", s.UserID).Msg("subscription rollover failed")
				continue
			}
			if !changed {
				continue
			}
			progressed++
			if exp {
				expired++
			} else {
				renewed++
			}
		}
		// A short page is the last one; a page without progress would be
		// listed again unchanged.
		if len(due) < u.batchSize || progressed == 0 {
			break
		}
	}

	metrics.IncSubscriptionsExpired(expired)
	metrics.IncSubscriptionsRenewed(renewed)
	return expired, renewed, nil
}

// rollover re-reads the row under lock so a concurrent purchase is not
// overwritten.
func (u *subscriptionUC) rollover(ctx context.Context, userID string, now time.Time) (expired, changed bool, err error) {
	err = u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !sub.IsDue(now) {
			return nil
		}
		expired = sub.Rollover(now)
		changed = true
		if err := u.subs.Upsert(ctx, tx, sub); err != nil {
			return err
		}
		if expired {
			return u.users.SetStatus(ctx, tx, userID, model.SubscriptionStatusExpired)
		}
		return nil
	})
	return expired, changed, err
}
