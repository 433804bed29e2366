// File: internal/usecase/user_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/domain/model"
	"trulyinvoice/internal/domain/ports/repository"
	"trulyinvoice/internal/infra/logging"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase covers account registration. Entitlement changes live in
// SubscriptionUseCase.
type UserUseCase interface {
	// RegisterOrFetch returns the account for an authenticated identity,
	// creating it with a free subscription on first sight.
	RegisterOrFetch(ctx context.Context, id, email string) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
}

type userUC struct {
	users repository.UserRepository
	subs  repository.SubscriptionRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, subs repository.SubscriptionRepository, tm repository.TransactionManager, logger *zerolog.Logger) *userUC {
	return &userUC{
		users: users,
		subs:  subs,
		tm:    tm,
		log:   logger,
	}
}

func (u *userUC) RegisterOrFetch(ctx context.Context, id, email string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrFetch")()

	// Fast path outside a transaction; most requests come from known users.
	usr, err := u.users.FindByID(ctx, repository.NoTX, id)
	if err == nil && (email == "" || usr.Email == email) {
		return usr, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var user *model.User
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	err = u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		existing, err := u.users.FindByID(ctx, tx, id)
		switch {
		case err == nil:
			if email != "" && existing.Email != email {
				existing.Email = email
				existing.UpdatedAt = time.Now()
				if err := u.users.Save(ctx, tx, existing); err != nil {
					return err
				}
			}
			user = existing
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		nu, err := model.NewUser(id, email)
		if err != nil {
			return err
		}
		if err := u.users.Save(ctx, tx, nu); err != nil {
			return err
		}
		sub, err := model.NewFreeSubscription(nu.ID, nu.CreatedAt)
		if err != nil {
			return err
		}
		if err := u.subs.Upsert(ctx, tx, sub); err != nil {
			return err
		}
		u.log.Info().Str("user_id", nu.ID).Msg("registered new user")
		user = nu
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (u *userUC) Get(ctx context.Context, id string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Get")()
	return u.users.FindByID(ctx, repository.NoTX, id)
}
