package model

import "time"

type PaymentStatus string

const (
	PaymentStatusCreated PaymentStatus = "created" // order accepted by the gateway
	PaymentStatusPaid    PaymentStatus = "paid"    // signature verified and entitlement granted
	PaymentStatusFailed  PaymentStatus = "failed"
)

// DefaultCurrency is used when an order request names none.
const DefaultCurrency = "INR"

// Order notes keys. The gateway stores them verbatim and returns them on fetch.
const (
	NoteUserID       = "user_id"
	NoteTier         = "tier"
	NoteBillingCycle = "billing_cycle"
	NotePlanName     = "plan_name"
)

// Order is the gateway-side order. It is created remotely and never mutated
// by this service.
type Order struct {
	ID       string
	Amount   int64 // paise
	Currency string
	Receipt  string
	Status   string
	Notes    map[string]string
}

// OrderRequest is what we ask the gateway to create.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Payment is the local ledger row of one checkout attempt.
type Payment struct {
	ID           string
	UserID       string
	OrderID      string
	PaymentID    *string // gateway payment id, set on verification
	Tier         Tier
	BillingCycle BillingCycle
	Amount       int64 // paise
	Currency     string
	Receipt      string
	Status       PaymentStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PaidAt       *time.Time
}

// PurchasedTier resolves the tier recorded on the order: the tier note first,
// then the display plan name.
func (o *Order) PurchasedTier() (Tier, error) {
	if t, err := ParseTier(o.Notes[NoteTier]); err == nil {
		return t, nil
	}
	return ParseTier(o.Notes[NotePlanName])
}

// PurchasedCycle defaults to monthly for orders created without a cycle note.
func (o *Order) PurchasedCycle() BillingCycle {
	c, err := ParseBillingCycle(o.Notes[NoteBillingCycle])
	if err != nil {
		return BillingMonthly
	}
	return c
}

// OwnedBy reports whether the order may be settled by userID. Orders without
// a user note are accepted.
func (o *Order) OwnedBy(userID string) bool {
	owner, ok := o.Notes[NoteUserID]
	return !ok || owner == "" || owner == userID
}
