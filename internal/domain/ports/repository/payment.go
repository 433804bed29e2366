package repository

import (
	"context"
	"time"

	"trulyinvoice/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.Payment, error)
	// MarkPaidIfUnpaid flips a created or failed payment to paid. It reports
	// false when the row was already paid, which makes verification idempotent.
	MarkPaidIfUnpaid(ctx context.Context, tx Tx, orderID, paymentID string, paidAt time.Time) (bool, error)
	// MarkFailedIfCreated abandons a payment that never got past 'created'.
	MarkFailedIfCreated(ctx context.Context, tx Tx, orderID string) (bool, error)
	// ListCreatedBefore returns unsettled payments created before cutoff, oldest first.
	ListCreatedBefore(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.Payment, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Payment, error)
}
