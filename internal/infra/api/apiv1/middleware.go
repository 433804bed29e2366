package apiv1

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/infra/logging"
	"trulyinvoice/internal/infra/redis"
)

type ctxKey int

const principalKey ctxKey = iota

// principal is the authenticated caller of a request.
type principal struct {
	UserID      string
	Email       string
	AccessToken string
}

func withPrincipal(ctx context.Context, p principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey).(principal)
	return p, ok && p.UserID != ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// sessionID prefers the client's session header and falls back to a hash of
// the access token.
func sessionID(r *http.Request, token string) string {
	if sid := strings.TrimSpace(r.Header.Get("X-Session-ID")); sid != "" {
		return sid
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// requireAuth resolves the bearer token, enforces the idle timeout and makes
// sure the account exists before the handler runs.
func (s *Server) requireAuth(onErr errorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := bearerToken(r)
			if token == "" {
				onErr(w, r, domain.ErrUnauthenticated)
				return
			}
			id, err := s.auth.Authenticate(ctx, token)
			if err != nil {
				if !errors.Is(err, domain.ErrUnauthenticated) {
					logging.With(ctx, s.log).Error().Err(err).Msg("authentication lookup failed")
				}
				onErr(w, r, err)
				return
			}

			sid := sessionID(r, token)
			if s.sessions != nil {
				if err := s.sessions.Touch(sid); err != nil {
					onErr(w, r, err)
					return
				}
			}

			if _, err := s.users.RegisterOrFetch(ctx, id.UserID, id.Email); err != nil {
				logging.With(ctx, s.log).Error().Err(err).Str("user_id", id.UserID).Msg("user registration failed")
				onErr(w, r, err)
				return
			}

			ctx = logging.WithUserID(ctx, id.UserID)
			ctx = logging.WithSessID(ctx, sid)
			ctx = withPrincipal(ctx, principal{UserID: id.UserID, Email: id.Email, AccessToken: token})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rateLimit applies a per-user fixed window of one minute. Limiter failures
// let the request through.
func (s *Server) rateLimit(action string, perMinute int, onErr errorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if s.limiter == nil || perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principalFrom(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			allowed, err := s.limiter.Allow(r.Context(), redis.UserActionKey(p.UserID, action), perMinute, time.Minute)
			if err != nil {
				logging.With(r.Context(), s.log).Warn().Err(err).Str("action", action).Msg("rate limiter unavailable")
			} else if !allowed {
				w.Header().Set("Retry-After", "60")
				onErr(w, r, domain.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
