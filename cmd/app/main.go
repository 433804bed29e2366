// File: cmd/app/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"trulyinvoice/internal/config"
	"trulyinvoice/internal/domain/ports/adapter"
	authAdapters "trulyinvoice/internal/infra/adapters/auth"
	payAdapters "trulyinvoice/internal/infra/adapters/payment"
	"trulyinvoice/internal/infra/adapters/processing"
	"trulyinvoice/internal/infra/api"
	"trulyinvoice/internal/infra/api/apiv1"
	pg "trulyinvoice/internal/infra/db/postgres"
	"trulyinvoice/internal/infra/logging"
	"trulyinvoice/internal/infra/metrics"
	red "trulyinvoice/internal/infra/redis"
	"trulyinvoice/internal/infra/sched"
	"trulyinvoice/internal/infra/scheduler"
	"trulyinvoice/internal/infra/security"
	"trulyinvoice/internal/infra/session"
	"trulyinvoice/internal/infra/worker"
	"trulyinvoice/internal/usecase"
)

// Set with -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting trulyinvoice billing service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	userRepo := pg.NewUserRepoCacheDecorator(pg.NewPostgresUserRepo(pool), redisClient, cfg.Redis.TTL)
	subRepo := pg.NewSubscriptionRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)

	// ---- Adapters ----
	gateway, err := payAdapters.NewRazorpayGateway(payAdapters.RazorpayOptions{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		BaseURL:   cfg.Razorpay.BaseURL,
		Timeout:   cfg.Razorpay.Timeout,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("razorpay gateway")
	}
	signer := security.NewCheckoutSigner(cfg.Razorpay.KeySecret)

	var authn adapter.Authenticator
	if cfg.Supabase.JWTSecret != "" {
		authn = authAdapters.NewJWTVerifier(cfg.Supabase.JWTSecret)
		logger.Info().Msg("auth: verifying supabase tokens locally")
	} else {
		authn = authAdapters.NewCachedAuthenticator(
			authAdapters.NewSupabaseClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, 10*time.Second),
			redisClient, 0)
		logger.Info().Str("url", cfg.Supabase.URL).Msg("auth: resolving tokens through supabase")
	}

	processor := processing.NewClient(processing.Options{
		BackendURL:     cfg.Processing.BackendURL,
		MaxAttempts:    cfg.Processing.MaxAttempts,
		InitialBackoff: cfg.Processing.InitialBackoff,
		AttemptTimeout: cfg.Processing.AttemptTimeout,
	}, logger)

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(userRepo, subRepo, tm, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, userRepo, tm, cfg.Scheduler.BatchSize, logger)
	planUC := usecase.NewPlanUseCase()
	paymentUC := usecase.NewPaymentUseCase(payRepo, subUC, gateway, signer, locker, tm, logger)
	invoiceUC := usecase.NewInvoiceUseCase(subUC, processor, logger)

	// ---- Sessions ----
	sessions := session.NewManager(session.Options{
		Idle:        cfg.Session.IdleTimeout,
		Retain:      cfg.Session.Retain,
		MaxSessions: cfg.Session.MaxSessions,
	}, logger)

	// ---- Background jobs ----
	workers := worker.NewPool(cfg.Scheduler.Workers, logger)
	workers.Start(ctx)

	jobs := scheduler.New(logger, cfg.Scheduler.JobTimeout)
	if err := jobs.Add(cfg.Scheduler.ExpiryCheckCron, sched.NewExpiryWorker(subUC, logger)); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.Scheduler.ExpiryCheckCron).Msg("schedule expiry job")
	}
	reconciler := sched.NewPaymentReconciler(payRepo, gateway, workers, cfg.Scheduler.StaleOrderAfter, cfg.Scheduler.BatchSize, logger)
	if err := jobs.Add(cfg.Scheduler.ReconcileCron, reconciler); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.Scheduler.ReconcileCron).Msg("schedule reconcile job")
	}
	jobs.Start(ctx)

	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				pg.ReportPoolStats(pool)
			}
		}
	}()

	// ---- HTTP ----
	v1 := apiv1.NewServer(apiv1.Deps{
		Payments: paymentUC,
		Subs:     subUC,
		Users:    userUC,
		Plans:    planUC,
		Invoices: invoiceUC,
		Auth:     authn,
		Sessions: sessions,
		Limiter:  rateLimiter,
		Limits: apiv1.Limits{
			OrdersPerMinute:  cfg.Razorpay.OrdersPerMinute,
			ProcessPerMinute: cfg.Processing.RequestsPerMinute,
		},
	}, logger)
	srv := api.NewServer(cfg.HTTP, v1, map[string]api.Check{
		"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
		"redis":    redisClient.Ping,
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	jobs.Stop()
	workers.Stop()
	logger.Info().Msg("bye")
}
