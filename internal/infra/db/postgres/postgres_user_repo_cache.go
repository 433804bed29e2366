package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/repository"
	"trulyinvoice/internal/infra/metrics"
	red "trulyinvoice/internal/infra/redis"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration) repository.UserRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &userRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}
}

func userKey(id string) string { return fmt.Sprintf("user:id:%s", id) }

// invalidate drops the cached row now and again once the surrounding
// transaction commits, so a read racing the open transaction cannot leave the
// old row cached.
func (d *userRepoCacheDecorator) invalidate(ctx context.Context, id string) {
	key := userKey(id)
	_ = d.cache.Del(ctx, key)
	AfterCommit(ctx, func() {
		_ = d.cache.Del(context.WithoutCancel(ctx), key)
	})
}

// For write operations, we must invalidate the cached row.
func (d *userRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	d.invalidate(ctx, u.ID)
	return d.inner.Save(ctx, tx, u)
}

func (d *userRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	// Transactional reads lock the row and must see the database.
	if tx != nil {
		metrics.IncCacheRequest("user", "bypass")
		return d.inner.FindByID(ctx, tx, id)
	}

	key := userKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var user model.User
		if json.Unmarshal([]byte(val), &user) == nil {
			metrics.IncCacheRequest("user", "hit")
			return &user, nil
		}
	} else if !errors.Is(err, red.Nil) {
		metrics.IncCacheRequest("user", "error")
	}

	metrics.IncCacheRequest("user", "miss")
	user, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if user != nil {
		bytes, _ := json.Marshal(user)
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return user, nil
}

func (d *userRepoCacheDecorator) UpdateEntitlement(ctx context.Context, tx repository.Tx, id string, plan model.Tier, status model.SubscriptionStatus, expiresAt *time.Time) error {
	d.invalidate(ctx, id)
	return d.inner.UpdateEntitlement(ctx, tx, id, plan, status, expiresAt)
}

func (d *userRepoCacheDecorator) SetStatus(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus) error {
	d.invalidate(ctx, id)
	return d.inner.SetStatus(ctx, tx, id, status)
}
