package model

import (
	"math"
	"strings"

	"trulyinvoice/internal/domain"
)

// Tier is a named subscription plan.
type Tier string

const (
	TierFree  Tier = "free"
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
	TierUltra Tier = "ultra"
	TierMax   Tier = "max"
)

// BillingCycle is the purchase period of a paid tier.
type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingYearly  BillingCycle = "yearly"
)

// YearlyDiscount is the multiplier applied to twelve monthly prices.
const YearlyDiscount = 0.8

// Plan is one row of the tier catalogue. Prices are in paise.
type Plan struct {
	Tier         Tier   `json:"tier"`
	Name         string `json:"name"`
	MonthlyPrice int64  `json:"monthly_price_paise"`
	ScansLimit   int    `json:"scans_per_period"`
}

var catalogue = []Plan{
	{Tier: TierFree, Name: "Free", MonthlyPrice: 0, ScansLimit: 10},
	{Tier: TierBasic, Name: "Basic", MonthlyPrice: 14900, ScansLimit: 80},
	{Tier: TierPro, Name: "Pro", MonthlyPrice: 29900, ScansLimit: 200},
	{Tier: TierUltra, Name: "Ultra", MonthlyPrice: 59900, ScansLimit: 500},
	{Tier: TierMax, Name: "Max", MonthlyPrice: 99900, ScansLimit: 1000},
}

// Plans returns a copy of the catalogue ordered by price.
func Plans() []Plan {
	out := make([]Plan, len(catalogue))
	copy(out, catalogue)
	return out
}

// ParseTier accepts a tier id or a display name ("Pro", " pro ").
func ParseTier(s string) (Tier, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, p := range catalogue {
		if string(p.Tier) == v {
			return p.Tier, nil
		}
	}
	return "", domain.ErrUnknownTier
}

// PlanFor returns the catalogue entry of t.
func PlanFor(t Tier) (Plan, error) {
	for _, p := range catalogue {
		if p.Tier == t {
			return p, nil
		}
	}
	return Plan{}, domain.ErrUnknownTier
}

// ParseBillingCycle defaults an empty value to monthly.
func ParseBillingCycle(s string) (BillingCycle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(BillingMonthly):
		return BillingMonthly, nil
	case string(BillingYearly):
		return BillingYearly, nil
	default:
		return "", domain.ErrInvalidBillingCycle
	}
}

// Months is the entitlement length bought by one payment.
func (c BillingCycle) Months() int {
	if c == BillingYearly {
		return 12
	}
	return 1
}

// PriceFor computes the order amount in paise. The free tier and unknown
// tiers are rejected.
func PriceFor(t Tier, cycle BillingCycle) (int64, error) {
	plan, err := PlanFor(t)
	if err != nil {
		return 0, err
	}
	if plan.Tier == TierFree {
		return 0, domain.ErrFreeTier
	}
	var amount int64
	switch cycle {
	case BillingMonthly:
		amount = plan.MonthlyPrice
	case BillingYearly:
		amount = int64(math.Round(float64(plan.MonthlyPrice) * 12 * YearlyDiscount))
	default:
		return 0, domain.ErrInvalidBillingCycle
	}
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	return amount, nil
}

// RupeesToPaise converts a major-unit amount from the legacy order request.
func RupeesToPaise(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
