package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"trulyinvoice/internal/config"
	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/repository"
	"trulyinvoice/internal/infra/db/postgres"
	"trulyinvoice/internal/infra/logging"
	"trulyinvoice/internal/infra/redis"
	"trulyinvoice/internal/infra/security"
	"trulyinvoice/internal/usecase"
)

var (
	userID = flag.String("user", "00000000-0000-0000-0000-00000000e2e1", "auth user id to seed")
	email  = flag.String("email", "e2e@trulyinvoice.test", "email of the seeded user")
	tier   = flag.String("tier", "free", "tier to entitle the seeded user with")
	cycle  = flag.String("cycle", "monthly", "billing cycle of the entitlement")
	scans  = flag.Int("scans", 0, "scans to consume after seeding")
	sign   = flag.String("sign", "", "print the checkout signature for order_id:payment_id and exit")
	wipe   = flag.Bool("wipe", true, "truncate tables and flush redis first")
)

// This script puts a local database into a known state for manual
// end-to-end testing of checkout and quota flows.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load")
	}
	logger := logging.New(config.LogConfig{Level: "info", Format: "console"}, true)

	if *sign != "" {
		order, payment, ok := strings.Cut(*sign, ":")
		if !ok {
			logger.Fatal().Str("sign", *sign).Msg("want order_id:payment_id")
		}
		fmt.Println(security.NewCheckoutSigner(cfg.Razorpay.KeySecret).Sign(order, payment))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()

	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClient.Close()

	logger.Info().Msg("--- Starting E2E Environment Setup ---")

	if *wipe {
		logger.Info().Msg("[1/3] Wiping Redis and database...")
		if err := redisClient.FlushDB(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to flush redis")
		}
		if _, err := pool.Exec(ctx, `TRUNCATE users, subscriptions, payments RESTART IDENTITY CASCADE`); err != nil {
			logger.Fatal().Err(err).Msg("failed to truncate tables")
		}
	}

	tm := postgres.NewTxManager(pool)
	users := postgres.NewPostgresUserRepo(pool)
	subs := postgres.NewSubscriptionRepo(pool)
	userUC := usecase.NewUserUseCase(users, subs, tm, logger)
	subUC := usecase.NewSubscriptionUseCase(subs, users, tm, 0, logger)

	logger.Info().Str("user_id", *userID).Msg("[2/3] Registering user...")
	if _, err := userUC.RegisterOrFetch(ctx, *userID, *email); err != nil {
		logger.Fatal().Err(err).Msg("register user")
	}

	t, err := model.ParseTier(*tier)
	if err != nil {
		logger.Fatal().Err(err).Str("tier", *tier).Msg("bad tier")
	}
	c, err := model.ParseBillingCycle(*cycle)
	if err != nil {
		logger.Fatal().Err(err).Str("cycle", *cycle).Msg("bad cycle")
	}
	if t != model.TierFree {
		err = tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			_, err := subUC.ActivateTx(ctx, tx, *userID, t, c, time.Now())
			return err
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("activate tier")
		}
	}

	logger.Info().Int("scans", *scans).Msg("[3/3] Consuming scans...")
	for i := 0; i < *scans; i++ {
		if _, err := subUC.ConsumeScan(ctx, *userID); err != nil {
			logger.Warn().Err(err).Int("consumed", i).Msg("stopped consuming scans")
			break
		}
	}

	usage, err := subUC.Usage(ctx, *userID)
	if err != nil {
		logger.Fatal().Err(err).Msg("read usage")
	}
	logger.Info().
		Str("tier", string(usage.Tier)).
		Int("scans_used", usage.ScansUsed).
		Int("scans_limit", usage.ScansLimit).
		Str("state", string(usage.State)).
		Msg("--- E2E Environment Setup Complete ---")
}
