package quota

import (
	"context"
	"errors"
	"time"

	"github.com/scribely/backend/internal/entitlement"
	"github.com/scribely/backend/internal/models"
)

// ErrLimitReached is returned when admitting the request would exceed the
// caller's daily word budget.
var ErrLimitReached = errors.New("daily word limit reached")

// TierResolver determines the plan tier for a caller
type TierResolver interface {
	Resolve(ctx context.Context, caller entitlement.Caller) string
}

// Admission is the outcome of a gate decision. Used reflects the counter
// after a granted increment, or the usage that caused a rejection.
// Authoritative is false when the value came from the local estimate rather
// than the counter store.
type Admission struct {
	Tier          string
	Key           string
	Used          int64
	Limit         int64
	Authoritative bool
}

// Gate admits or rejects metered requests against the daily word budget.
// The admit-then-increment sequence is deliberately not transactional across
// instances: two racing requests near the limit may both be admitted, each
// overshooting by at most its own word count. Quota is a cost control, not a
// security boundary, so the gate errs toward availability.
type Gate struct {
	tiers TierResolver
	store Store
	now   func() time.Time
}

// NewGate creates a quota gate
func NewGate(tiers TierResolver, store Store) *Gate {
	return &Gate{tiers: tiers, store: store, now: time.Now}
}

// Admit checks the caller's remaining budget and, when the request fits,
// records the consumption atomically. localUsed is the cookie-derived
// estimate consulted only when the counter store is unreachable.
// On rejection the returned Admission still carries used and limit, and the
// error is ErrLimitReached.
func (g *Gate) Admit(ctx context.Context, caller entitlement.Caller, words, localUsed int64) (*Admission, error) {
	tier := g.tiers.Resolve(ctx, caller)
	limit := models.DailyWordLimit(tier)
	day := DayKey(g.now())
	key := BuildKey(day, caller.Identity(), tier)

	used, _, err := g.store.Get(ctx, key)
	authoritative := err == nil
	if !authoritative {
		used = localUsed
	}

	if used+words > limit {
		return &Admission{Tier: tier, Key: key, Used: used, Limit: limit, Authoritative: authoritative}, ErrLimitReached
	}

	newUsed, err := g.store.IncrBy(ctx, key, words, CounterTTL)
	if err != nil {
		// both backends down; keep serving with the local estimate
		newUsed = used + words
		authoritative = false
	}

	return &Admission{Tier: tier, Key: key, Used: newUsed, Limit: limit, Authoritative: authoritative}, nil
}

// Peek reports current usage without consuming quota
func (g *Gate) Peek(ctx context.Context, caller entitlement.Caller) (*Admission, error) {
	tier := g.tiers.Resolve(ctx, caller)
	limit := models.DailyWordLimit(tier)
	day := DayKey(g.now())
	key := BuildKey(day, caller.Identity(), tier)

	used, _, err := g.store.Get(ctx, key)
	authoritative := err == nil
	if !authoritative {
		used = 0
	}

	return &Admission{Tier: tier, Key: key, Used: used, Limit: limit, Authoritative: authoritative}, nil
}
