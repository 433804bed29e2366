package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const userColumns = `id, email, plan, subscription_status, subscription_expires_at, created_at, updated_at`

// Save inserts a user or refreshes its profile fields. Entitlement columns
// are written only by UpdateEntitlement and SetStatus.
func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  email=EXCLUDED.email, updated_at=EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.Email, u.Plan, u.SubscriptionStatus, u.SubscriptionExpiresAt, u.CreatedAt, u.UpdatedAt)
	return mapWriteErr(err)
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	q := forUpdate(`SELECT `+userColumns+` FROM users WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Plan, &u.SubscriptionStatus, &u.SubscriptionExpiresAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapReadErr(err)
	}
	return &u, nil
}

func (r *PostgresUserRepo) UpdateEntitlement(ctx context.Context, tx repository.Tx, id string, plan model.Tier, status model.SubscriptionStatus, expiresAt *time.Time) error {
	const q = `
UPDATE users
   SET plan=$2, subscription_status=$3, subscription_expires_at=$4, updated_at=NOW()
 WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, plan, status, expiresAt)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) SetStatus(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus) error {
	const q = `UPDATE users SET subscription_status=$2, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, status)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
