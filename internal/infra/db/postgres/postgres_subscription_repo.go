package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `user_id, tier, status, billing_cycle, current_period_start, current_period_end, scans_used, auto_renew, created_at, updated_at`

func (r *subscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (user_id) DO UPDATE SET
  tier=EXCLUDED.tier, status=EXCLUDED.status, billing_cycle=EXCLUDED.billing_cycle,
  current_period_start=EXCLUDED.current_period_start, current_period_end=EXCLUDED.current_period_end,
  scans_used=EXCLUDED.scans_used, auto_renew=EXCLUDED.auto_renew, updated_at=EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, q,
		s.UserID, s.Tier, s.Status, s.BillingCycle, s.CurrentPeriodStart, s.CurrentPeriodEnd,
		s.ScansUsed, s.AutoRenew, s.CreatedAt, s.UpdatedAt)
	return mapWriteErr(err)
}

func (r *subscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	q := forUpdate(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	s := &model.Subscription{}
	if err := scanSubscription(row, s); err != nil {
		return nil, mapReadErr(err)
	}
	return s, nil
}

func (r *subscriptionRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE status='active' AND current_period_end <= $1
 ORDER BY current_period_end ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, now, limit)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s := &model.Subscription{}
		if err := scanSubscription(rows, s); err != nil {
			return nil, mapReadErr(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapReadErr(err)
	}
	return out, nil
}

// IncrementScans is a single conditional UPDATE so concurrent uploads can
// never push scans_used past the limit.
func (r *subscriptionRepo) IncrementScans(ctx context.Context, tx repository.Tx, userID string, limit int) (bool, error) {
	const q = `
UPDATE subscriptions
   SET scans_used = scans_used + 1, updated_at = NOW()
 WHERE user_id = $1 AND status = 'active' AND scans_used < $2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) DecrementScans(ctx context.Context, tx repository.Tx, userID string) error {
	const q = `UPDATE subscriptions SET scans_used = GREATEST(scans_used - 1, 0), updated_at = NOW() WHERE user_id = $1;`
	_, err := execSQL(ctx, r.pool, tx, q, userID)
	return mapWriteErr(err)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner, s *model.Subscription) error {
	return row.Scan(&s.UserID, &s.Tier, &s.Status, &s.BillingCycle, &s.CurrentPeriodStart, &s.CurrentPeriodEnd,
		&s.ScansUsed, &s.AutoRenew, &s.CreatedAt, &s.UpdatedAt)
}
