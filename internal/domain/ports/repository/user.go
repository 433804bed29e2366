package repository

import (
	"context"
	"time"

	"trulyinvoice/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	// UpdateEntitlement is the only write path for plan, status and expiry.
	UpdateEntitlement(ctx context.Context, tx Tx, id string, plan model.Tier, status model.SubscriptionStatus, expiresAt *time.Time) error
	SetStatus(ctx context.Context, tx Tx, id string, status model.SubscriptionStatus) error
}
