package repository

import (
	"context"
	"time"

	"trulyinvoice/internal/domain/model"
)

// SubscriptionRepository is the port for the per-user subscription row.
type SubscriptionRepository interface {
	// Upsert writes the row keyed by user id.
	Upsert(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	// ListDue returns active subscriptions whose period ended before now.
	ListDue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subscription, error)

	// IncrementScans consumes one scan when scans_used < limit. It reports
	// false when the quota is exhausted.
	IncrementScans(ctx context.Context, tx Tx, userID string, limit int) (bool, error)
	// DecrementScans gives one scan back, never going below zero.
	DecrementScans(ctx context.Context, tx Tx, userID string) error
}
