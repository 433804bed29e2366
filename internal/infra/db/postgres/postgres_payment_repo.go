package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, order_id, payment_id, tier, billing_cycle, amount, currency, receipt, status, created_at, updated_at, paid_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  payment_id=$4, status=$10, updated_at=$12, paid_at=$13;`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.OrderID, p.PaymentID, p.Tier, p.BillingCycle, p.Amount, p.Currency,
		p.Receipt, p.Status, p.CreatedAt, p.UpdatedAt, p.PaidAt)
	return mapWriteErr(err)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	return r.findOne(ctx, tx, `id=$1`, id)
}

func (r *paymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error) {
	return r.findOne(ctx, tx, `order_id=$1`, orderID)
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, where string, arg interface{}) (*model.Payment, error) {
	q := forUpdate(`SELECT `+paymentColumns+` FROM payments WHERE `+where+` LIMIT 1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	p := &model.Payment{}
	if err := scanPayment(row, p); err != nil {
		return nil, mapReadErr(err)
	}
	return p, nil
}

// MarkPaidIfUnpaid atomically settles the payment unless it is already 'paid'.
// A payment the reconciler gave up on can still be settled late.
func (r *paymentRepo) MarkPaidIfUnpaid(ctx context.Context, tx repository.Tx, orderID, paymentID string, paidAt time.Time) (bool, error) {
	const q = `
UPDATE payments
   SET status = 'paid',
       payment_id = $2,
       paid_at = $3,
       updated_at = NOW()
 WHERE order_id = $1
   AND status IN ('created', 'failed')`
	cmd, err := execSQL(ctx, r.pool, tx, q, orderID, paymentID, paidAt)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) MarkFailedIfCreated(ctx context.Context, tx repository.Tx, orderID string) (bool, error) {
	const q = `UPDATE payments SET status = 'failed', updated_at = NOW() WHERE order_id = $1 AND status = 'created'`
	cmd, err := execSQL(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) ListCreatedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 200
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE status = 'created' AND created_at < $1 ORDER BY created_at LIMIT $2;`
	return r.list(ctx, tx, q, cutoff, limit)
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`
	return r.list(ctx, tx, q, userID, limit)
}

func (r *paymentRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Payment, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p := new(model.Payment)
		if err := scanPayment(rows, p); err != nil {
			return nil, mapReadErr(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapReadErr(err)
	}
	return out, nil
}

func scanPayment(row rowScanner, p *model.Payment) error {
	return row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.PaymentID, &p.Tier, &p.BillingCycle, &p.Amount,
		&p.Currency, &p.Receipt, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt)
}
