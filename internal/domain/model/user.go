package model

import (
	"strings"
	"time"

	"trulyinvoice/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusInactive  SubscriptionStatus = "inactive"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// User is the account record keyed by the auth provider's user id.
// Plan, SubscriptionStatus and SubscriptionExpiresAt form the entitlement.
type User struct {
	ID                    string             `json:"id"`
	Email                 string             `json:"email"`
	Plan                  Tier               `json:"plan"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	SubscriptionExpiresAt *time.Time         `json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// NewUser registers an account on the free tier.
func NewUser(id, email string) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{
		ID:                 id,
		Email:              strings.TrimSpace(email),
		Plan:               TierFree,
		SubscriptionStatus: SubscriptionStatusInactive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

