package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/scribely/backend/internal/database"
	"github.com/scribely/backend/internal/models"
)

var (
	// ErrEntitlementNotFound is returned when no entitlement record exists
	ErrEntitlementNotFound = errors.New("entitlement not found")
)

// EntitlementRepository handles account entitlement database operations
type EntitlementRepository struct {
	db *database.DB
}

// NewEntitlementRepository creates a new entitlement repository
func NewEntitlementRepository(db *database.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

// GetByAccountID retrieves the entitlement record for an account
func (r *EntitlementRepository) GetByAccountID(ctx context.Context, accountID string) (*models.AccountEntitlement, error) {
	query := `
		SELECT account_id, stripe_customer_id, stripe_status, stripe_period_end, last_event_at, created_at, updated_at
		FROM account_entitlements
		WHERE account_id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, accountID))
}

// GetByCustomerID retrieves the entitlement record linked to a Stripe customer
func (r *EntitlementRepository) GetByCustomerID(ctx context.Context, customerID string) (*models.AccountEntitlement, error) {
	query := `
		SELECT account_id, stripe_customer_id, stripe_status, stripe_period_end, last_event_at, created_at, updated_at
		FROM account_entitlements
		WHERE stripe_customer_id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, customerID))
}

// UpsertCustomer links a Stripe customer to an account, creating the record
// when it does not exist yet. Used by the checkout confirm path.
func (r *EntitlementRepository) UpsertCustomer(ctx context.Context, accountID, customerID string) error {
	query := `
		INSERT INTO account_entitlements (account_id, stripe_customer_id, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (account_id)
		DO UPDATE SET stripe_customer_id = EXCLUDED.stripe_customer_id, updated_at = now()
	`
	if _, err := r.db.Exec(ctx, query, accountID, customerID); err != nil {
		return fmt.Errorf("failed to upsert customer link: %w", err)
	}
	return nil
}

// ApplySubscriptionState writes (status, period end) for all records linked
// to the given customer. The eventAt guard makes the write last-writer-wins:
// an older event never overwrites the state left by a newer one, so webhook
// and confirm updates may arrive in any order.
func (r *EntitlementRepository) ApplySubscriptionState(ctx context.Context, customerID, status string, periodEnd *time.Time, eventAt time.Time) error {
	query := `
		UPDATE account_entitlements
		SET stripe_status = $2,
		    stripe_period_end = $3,
		    last_event_at = $4,
		    updated_at = now()
		WHERE stripe_customer_id = $1
		  AND (last_event_at IS NULL OR last_event_at <= $4)
	`
	if _, err := r.db.Exec(ctx, query, customerID, status, periodEnd, eventAt); err != nil {
		return fmt.Errorf("failed to apply subscription state: %w", err)
	}
	return nil
}

func (r *EntitlementRepository) scanOne(row pgx.Row) (*models.AccountEntitlement, error) {
	var e models.AccountEntitlement
	err := row.Scan(
		&e.AccountID, &e.StripeCustomerID, &e.StripeStatus,
		&e.StripePeriodEnd, &e.LastEventAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntitlementNotFound
		}
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}
	return &e, nil
}
