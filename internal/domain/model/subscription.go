package model

import (
	"time"

	"trulyinvoice/internal/domain"
)

// Subscription is the per-user subscription record. There is at most one row
// per user; it is upserted on every plan change.
type Subscription struct {
	UserID             string             `json:"user_id"`
	Tier               Tier               `json:"tier"`
	Status             SubscriptionStatus `json:"status"`
	BillingCycle       BillingCycle       `json:"billing_cycle"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	ScansUsed          int                `json:"scans_used"`
	AutoRenew          bool               `json:"auto_renew"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewFreeSubscription is created at registration. Free periods always renew.
func NewFreeSubscription(userID string, now time.Time) (*Subscription, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		UserID:             userID,
		Tier:               TierFree,
		Status:             SubscriptionStatusActive,
		BillingCycle:       BillingMonthly,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		AutoRenew:          true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// StartPeriod switches the subscription to tier t for one purchased period
// beginning at now and resets the scan counter.
func (s *Subscription) StartPeriod(t Tier, cycle BillingCycle, now time.Time) {
	s.Tier = t
	s.Status = SubscriptionStatusActive
	s.BillingCycle = cycle
	s.CurrentPeriodStart = now
	s.CurrentPeriodEnd = now.AddDate(0, cycle.Months(), 0)
	s.ScansUsed = 0
	s.AutoRenew = false
	s.UpdatedAt = now
}

// IsDue reports whether the current period has elapsed.
func (s *Subscription) IsDue(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && !now.Before(s.CurrentPeriodEnd)
}

// Rollover applies the period-end transition: a renewing subscription starts
// its next period with scans reset, any other one expires. It returns true
// when the subscription expired.
func (s *Subscription) Rollover(now time.Time) bool {
	if !s.IsDue(now) {
		return false
	}
	s.UpdatedAt = now
	if !s.AutoRenew {
		s.Status = SubscriptionStatusExpired
		return true
	}
	months := s.BillingCycle.Months()
	start := s.CurrentPeriodEnd
	end := start.AddDate(0, months, 0)
	// A long outage can leave several periods behind.
	for !now.Before(end) {
		start = end
		end = start.AddDate(0, months, 0)
	}
	s.CurrentPeriodStart = start
	s.CurrentPeriodEnd = end
	s.ScansUsed = 0
	return false
}

// EffectiveTier is the tier that gates features right now.
func (s *Subscription) EffectiveTier() Tier {
	if s == nil || s.Status != SubscriptionStatusActive {
		return TierFree
	}
	return s.Tier
}
