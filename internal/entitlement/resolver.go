// Package entitlement decides which plan tier applies to a caller. The tier
// is derived per request from two signals with different trust levels: the
// durable account record kept current by billing events, and the signed
// entitlement cookie issued at checkout for browsers without an account.
package entitlement

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/scribely/backend/internal/models"
	"github.com/scribely/backend/internal/repository"
)

// AccountStore is the durable entitlement lookup used by the resolver
type AccountStore interface {
	GetByAccountID(ctx context.Context, accountID string) (*models.AccountEntitlement, error)
}

// Caller bundles the per-request identity signals the resolver works from
type Caller struct {
	AccountID string // empty when unauthenticated
	IP        string
	Cookie    *Cookie // nil when absent or invalid
}

// Identity returns the best stable proxy for the requester: the account ID
// when authenticated, otherwise the client IP.
func (c Caller) Identity() string {
	if c.AccountID != "" {
		return c.AccountID
	}
	return c.IP
}

// Resolver determines the caller's tier with a fixed precedence:
// durable account record, then entitlement cookie, then Free.
type Resolver struct {
	store AccountStore
	now   func() time.Time
}

// NewResolver creates a resolver. The store may be nil when no durable
// storage is configured; resolution then relies on the cookie alone.
func NewResolver(store AccountStore) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// Resolve returns the tier for the caller. Once a durable record exists it
// is authoritative in both directions: a lapsed subscription yields Free
// even when a stale pro cookie is still presented.
func (r *Resolver) Resolve(ctx context.Context, caller Caller) string {
	if caller.AccountID != "" && r.store != nil {
		record, err := r.store.GetByAccountID(ctx, caller.AccountID)
		switch {
		case err == nil:
			if record.IsProAt(r.now()) {
				return models.TierPro
			}
			return models.TierFree
		case errors.Is(err, repository.ErrEntitlementNotFound):
			// no record yet, fall through to the cookie
		default:
			// storage trouble is not the caller's problem; degrade to the cookie
			log.Printf("[entitlement] durable lookup failed for account=%s: %v", caller.AccountID, err)
		}
	}

	if caller.Cookie != nil && caller.Cookie.Pro {
		return models.TierPro
	}

	return models.TierFree
}
