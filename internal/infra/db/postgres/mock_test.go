//go:build !integration

package postgres

import (
	"context"
	"time"

	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/repository"
	red "trulyinvoice/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerUserRepo mocks the database repository that the User decorator wraps.
type mockInnerUserRepo struct {
	SaveFunc              func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc          func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
	UpdateEntitlementFunc func(ctx context.Context, tx repository.Tx, id string, plan model.Tier, status model.SubscriptionStatus, expiresAt *time.Time) error
	SetStatusFunc         func(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus) error
}

func (m *mockInnerUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.SaveFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerUserRepo) UpdateEntitlement(ctx context.Context, tx repository.Tx, id string, plan model.Tier, status model.SubscriptionStatus, expiresAt *time.Time) error {
	return m.UpdateEntitlementFunc(ctx, tx, id, plan, status, expiresAt)
}
func (m *mockInnerUserRepo) SetStatus(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus) error {
	return m.SetStatusFunc(ctx, tx, id, status)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", red.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return nil }
