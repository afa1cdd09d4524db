package models

import (
	"time"
)

// Tier constants
const (
	TierFree = "free"
	TierPro  = "pro"
)

// Daily word budgets per tier
const (
	FreeDailyWords int64 = 1000
	ProDailyWords  int64 = 20000
)

// DailyWordLimit returns the daily word budget for a tier
func DailyWordLimit(tier string) int64 {
	if tier == TierPro {
		return ProDailyWords
	}
	return FreeDailyWords
}

// Stripe subscription status values we care about
const (
	StatusActive     = "active"
	StatusTrialing   = "trialing"
	StatusPastDue    = "past_due"
	StatusCanceled   = "canceled"
	StatusIncomplete = "incomplete"
	StatusUnpaid     = "unpaid"
)

// AccountEntitlement is the durable per-account billing record. It is
// mutated only by the subscription reconciler and read everywhere else.
type AccountEntitlement struct {
	AccountID        string     `json:"account_id" db:"account_id"`
	StripeCustomerID string     `json:"stripe_customer_id" db:"stripe_customer_id"`
	StripeStatus     string     `json:"stripe_status" db:"stripe_status"`
	StripePeriodEnd  *time.Time `json:"stripe_period_end,omitempty" db:"stripe_period_end"`
	LastEventAt      *time.Time `json:"last_event_at,omitempty" db:"last_event_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// IsProAt reports whether the record grants Pro at the given instant.
// Requires a linked customer, a qualifying status and a period end that
// is either absent or still in the future.
func (e *AccountEntitlement) IsProAt(now time.Time) bool {
	if e == nil || e.StripeCustomerID == "" {
		return false
	}
	switch e.StripeStatus {
	case StatusActive, StatusTrialing, StatusPastDue:
	default:
		return false
	}
	if e.StripePeriodEnd != nil && e.StripePeriodEnd.Before(now) {
		return false
	}
	return true
}
