package sched

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trulyinvoice/internal/domain/ports/adapter"
	"trulyinvoice/internal/domain/ports/repository"
	"trulyinvoice/internal/infra/metrics"
	"trulyinvoice/internal/infra/worker"
)

// Gateway order states that mean no capture happened.
var abandonedOrderStates = map[string]bool{"created": true, "attempted": true}

// PaymentReconciler marks checkouts that were never completed as failed.
// It only looks at the gateway's view of the order; settling a payment
// still requires the signed verification call.
type PaymentReconciler struct {
	payments   repository.PaymentRepository
	gateway    adapter.PaymentGateway
	pool       *worker.Pool
	staleAfter time.Duration
	batch      int
	log        *zerolog.Logger
}

func NewPaymentReconciler(payments repository.PaymentRepository, gateway adapter.PaymentGateway, pool *worker.Pool, staleAfter time.Duration, batch int, logger *zerolog.Logger) *PaymentReconciler {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	if batch <= 0 {
		batch = 200
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{payments: payments, gateway: gateway, pool: pool, staleAfter: staleAfter, batch: batch, log: &l}
}

func (w *PaymentReconciler) Name() string { return "payment_reconcile" }

func (w *PaymentReconciler) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.payments.ListCreatedBefore(ctx, repository.NoTX, cutoff, w.batch)
	if err != nil {
		return err
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, p := range stale {
		orderID := p.OrderID
		wg.Add(1)
		// Gateway calls run under the pass ctx, not the pool's.
		err := w.pool.Submit(ctx, func(context.Context) error {
			defer wg.Done()
			ok, err := w.reconcile(ctx, orderID)
			if ok {
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return err
		})
		if err != nil {
			wg.Done()
			w.log.Warn().Err(err).Msg("reconcile pass interrupted")
			break
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if failed > 0 {
		w.log.Info().Int("count", failed).Msg("abandoned payments marked failed")
	}
	return nil
}

func (w *PaymentReconciler) reconcile(ctx context.Context, orderID string) (bool, error) {
	order, err := w.gateway.FetchOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !abandonedOrderStates[order.Status] {
		if order.Status == "paid" {
			w.log.Warn().Str("order_id", orderID).Msg("order paid at the gateway but never verified")
		}
		return false, nil
	}
	ok, err := w.payments.MarkFailedIfCreated(ctx, repository.NoTX, orderID)
	if err != nil || !ok {
		return false, err
	}
	metrics.IncPayment("failed")
	return true, nil
}
