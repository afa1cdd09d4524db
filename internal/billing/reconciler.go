package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/scribely/backend/internal/models"
	"github.com/scribely/backend/internal/repository"
)

var (
	// ErrSessionIncomplete is returned when a confirm arrives for a
	// checkout session that never reached a paid terminal state.
	ErrSessionIncomplete = errors.New("checkout session not completed")
	// ErrMissingCustomer is returned when the provider payload carries no
	// customer reference to key the durable record on.
	ErrMissingCustomer = errors.New("missing customer reference")
)

// AccountStore is the durable entitlement surface the reconciler writes to.
// The write methods must be idempotent; ApplySubscriptionState additionally
// enforces last-writer-wins via the event timestamp.
type AccountStore interface {
	GetByCustomerID(ctx context.Context, customerID string) (*models.AccountEntitlement, error)
	UpsertCustomer(ctx context.Context, accountID, customerID string) error
	ApplySubscriptionState(ctx context.Context, customerID, status string, periodEnd *time.Time, eventAt time.Time) error
}

// ConfirmResult carries what the confirm path learned from the provider,
// used to issue the entitlement cookie for the current browser session.
type ConfirmResult struct {
	CustomerID     string
	SubscriptionID string
	Status         string
	PeriodEnd      *time.Time
}

// Reconciler updates the durable entitlement record from checkout
// confirmations and webhook events. Both entry points tolerate duplicates
// and reordering: the record converges to the most recent provider state
// regardless of arrival order.
type Reconciler struct {
	provider PaymentProvider
	store    AccountStore
	now      func() time.Time
}

// NewReconciler creates a reconciler. The store may be nil when durable
// storage is not configured; reconciliation then only feeds the cookie.
func NewReconciler(provider PaymentProvider, store AccountStore) *Reconciler {
	return &Reconciler{provider: provider, store: store, now: time.Now}
}

// Confirm handles the synchronous redirect right after checkout. It
// verifies the session reached a completed state, links the customer to the
// authenticated account when there is one, and reports the subscription
// state for the cookie. Durable write failures are logged, not returned:
// the webhook path will converge the record on its next delivery.
func (r *Reconciler) Confirm(ctx context.Context, sessionID, accountID string) (*ConfirmResult, error) {
	sess, err := r.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.Mode != string(stripe.CheckoutSessionModeSubscription) && sess.Mode != string(stripe.CheckoutSessionModePayment) {
		return nil, fmt.Errorf("unsupported checkout mode %q", sess.Mode)
	}
	if sess.Status != string(stripe.CheckoutSessionStatusComplete) {
		return nil, fmt.Errorf("%w: status %q", ErrSessionIncomplete, sess.Status)
	}
	if sess.CustomerID == "" {
		return nil, ErrMissingCustomer
	}

	result := &ConfirmResult{
		CustomerID:     sess.CustomerID,
		SubscriptionID: sess.SubscriptionID,
		Status:         sess.SubStatus,
		PeriodEnd:      sess.SubPeriodEnd,
	}
	if result.Status == "" {
		result.Status = models.StatusActive
	}

	if r.store != nil && accountID != "" {
		if err := r.store.UpsertCustomer(ctx, accountID, sess.CustomerID); err != nil {
			log.Printf("[billing] failed to link customer %s to account %s: %v", sess.CustomerID, accountID, err)
			return result, nil
		}
		if err := r.store.ApplySubscriptionState(ctx, sess.CustomerID, result.Status, result.PeriodEnd, r.now()); err != nil {
			log.Printf("[billing] failed to apply confirm state for customer %s: %v", sess.CustomerID, err)
		}
	}

	return result, nil
}

// HandleEvent processes a verified webhook event. Unknown event types are
// ignored and report success; signature verification happens before this is
// called.
func (r *Reconciler) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return r.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.updated", "customer.subscription.deleted":
		return r.handleSubscriptionChanged(ctx, event)
	default:
		// other events are not used
		return nil
	}
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	if sess.Customer == nil || sess.Customer.ID == "" {
		return ErrMissingCustomer
	}
	customerID := sess.Customer.ID

	status := models.StatusActive
	var periodEnd *time.Time
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		sub, err := r.provider.GetSubscription(ctx, sess.Subscription.ID)
		if err != nil {
			return err
		}
		status = sub.Status
		periodEnd = sub.CurrentPeriodEnd
	}

	return r.apply(ctx, customerID, status, periodEnd, eventTime(event))
}

func (r *Reconciler) handleSubscriptionChanged(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	if sub.Customer == nil || sub.Customer.ID == "" {
		return ErrMissingCustomer
	}

	return r.apply(ctx, sub.Customer.ID, string(sub.Status), unixToTime(sub.CurrentPeriodEnd), eventTime(event))
}

func (r *Reconciler) apply(ctx context.Context, customerID, status string, periodEnd *time.Time, eventAt time.Time) error {
	if r.store == nil {
		return nil
	}

	if _, err := r.store.GetByCustomerID(ctx, customerID); err != nil {
		if errors.Is(err, repository.ErrEntitlementNotFound) {
			// cookie-only purchase: no account linked yet, nothing durable
			// to update until a confirm arrives for an authenticated session
			log.Printf("[billing] event for unlinked customer %s, skipping durable update", customerID)
			return nil
		}
		return err
	}

	return r.store.ApplySubscriptionState(ctx, customerID, status, periodEnd, eventAt)
}

func eventTime(event stripe.Event) time.Time {
	if event.Created > 0 {
		return time.Unix(event.Created, 0).UTC()
	}
	return time.Now().UTC()
}
