package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trulyinvoice/internal/usecase"
)

// ExpiryWorker rolls subscriptions whose period ended into their next period
// or expires them.
type ExpiryWorker struct {
	subUC usecase.SubscriptionUseCase
	log   *zerolog.Logger
	now   func() time.Time
}

func NewExpiryWorker(subUC usecase.SubscriptionUseCase, logger *zerolog.Logger) *ExpiryWorker {
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		subUC: subUC,
		log:   &exprLog,
		now:   time.Now,
	}
}

func (w *ExpiryWorker) Name() string { return "subscription_expiry" }

func (w *ExpiryWorker) Run(ctx context.Context) error {
	expired, renewed, err := w.subUC.ProcessDue(ctx, w.now())
	if err != nil {
		return err
	}
	if expired+renewed > 0 {
		w.log.Info().Int("expired", expired).Int("renewed", renewed).Msg("subscriptions rolled over")
	}
	return nil
}
