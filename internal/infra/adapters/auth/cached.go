package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"trulyinvoice/internal/domain/ports/adapter"
	"trulyinvoice/internal/infra/metrics"
	red "trulyinvoice/internal/infra/redis"
)

var _ adapter.Authenticator = (*cachedAuthenticator)(nil)

// cachedAuthenticator remembers successful lookups keyed by a token hash.
// Failures are never cached, and an entry never outlives the token's exp.
type cachedAuthenticator struct {
	inner  adapter.Authenticator
	cache  red.RedisClient
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

func NewCachedAuthenticator(inner adapter.Authenticator, cache red.RedisClient, ttl time.Duration) adapter.Authenticator {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &cachedAuthenticator{inner: inner, cache: cache, ttl: ttl, parser: jwt.NewParser(), now: time.Now}
}

// ttlFor caps the cache lifetime at the token's remaining validity. The
// signature is not checked here; inner already accepted the token and exp
// can only shorten the entry.
func (c *cachedAuthenticator) ttlFor(accessToken string) time.Duration {
	claims := jwt.RegisteredClaims{}
	if _, _, err := c.parser.ParseUnverified(accessToken, &claims); err != nil || claims.ExpiresAt == nil {
		return c.ttl
	}
	left := claims.ExpiresAt.Sub(c.now())
	if left < c.ttl {
		return left
	}
	return c.ttl
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "auth:token:" + hex.EncodeToString(sum[:])
}

func (c *cachedAuthenticator) Authenticate(ctx context.Context, accessToken string) (*adapter.Identity, error) {
	key := tokenKey(accessToken)
	if val, err := c.cache.Get(ctx, key); err == nil {
		var id adapter.Identity
		if json.Unmarshal([]byte(val), &id) == nil && id.UserID != "" {
			metrics.IncCacheRequest("auth", "hit")
			return &id, nil
		}
	}
	metrics.IncCacheRequest("auth", "miss")

	id, err := c.inner.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	ttl := c.ttlFor(accessToken)
	if ttl <= 0 {
		return id, nil
	}
	if b, err := json.Marshal(id); err == nil {
		_ = c.cache.Set(ctx, key, b, ttl)
	}
	return id, nil
}
