// Package apiv1 serves the JSON API used by the TrulyInvoice frontend.
package apiv1

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator"
	"github.com/rs/zerolog"

	"trulyinvoice/internal/domain/ports/adapter"
	"trulyinvoice/internal/usecase"
)

// RateLimiter is satisfied by the Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SessionTracker is satisfied by session.Manager.
type SessionTracker interface {
	Touch(id string) error
}

type Limits struct {
	OrdersPerMinute  int
	ProcessPerMinute int
}

type Server struct {
	payments usecase.PaymentUseCase
	subs     usecase.SubscriptionUseCase
	users    usecase.UserUseCase
	plans    usecase.PlanUseCase
	invoices usecase.InvoiceUseCase
	auth     adapter.Authenticator
	sessions SessionTracker
	limiter  RateLimiter
	limits   Limits
	validate *validator.Validate
	log      *zerolog.Logger
}

type Deps struct {
	Payments usecase.PaymentUseCase
	Subs     usecase.SubscriptionUseCase
	Users    usecase.UserUseCase
	Plans    usecase.PlanUseCase
	Invoices usecase.InvoiceUseCase
	Auth     adapter.Authenticator
	Sessions SessionTracker
	Limiter  RateLimiter // nil disables rate limiting
	Limits   Limits
}

func NewServer(d Deps, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{
		payments: d.Payments,
		subs:     d.Subs,
		users:    d.Users,
		plans:    d.Plans,
		invoices: d.Invoices,
		auth:     d.Auth,
		sessions: d.Sessions,
		limiter:  d.Limiter,
		limits:   d.Limits,
		validate: validator.New(),
		log:      &l,
	}
}

// RegisterAPIV1 mounts every API route on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/plans", s.listPlans)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth(writeError))
			r.Get("/me", s.me)
			r.Get("/subscription", s.getSubscription)
			r.Get("/payments", s.listPayments)
			r.With(s.rateLimit("create_order", s.limits.OrdersPerMinute, writeError)).
				Post("/razorpay/create-order", s.createOrder)
			r.With(s.rateLimit("process", s.limits.ProcessPerMinute, writeError)).
				Post("/invoices/{id}/process", s.processInvoice)
		})

		// Verification answers in its own {success, error} envelope, including
		// authentication failures.
		r.With(s.requireAuth(writeVerifyError)).
			Post("/razorpay/verify-payment", s.verifyPayment)
	})
}
