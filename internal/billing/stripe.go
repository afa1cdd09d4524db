// Package billing talks to the payment provider and keeps the durable
// entitlement record in sync with checkout confirmations and webhook events.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	portalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/subscription"
)

// ErrNotConfigured is returned when the Stripe secret key is missing
var ErrNotConfigured = errors.New("stripe is not configured")

// CheckoutSession is the provider-neutral view of a checkout session
type CheckoutSession struct {
	ID             string
	URL            string
	Mode           string
	Status         string
	CustomerID     string
	SubscriptionID string
	SubStatus      string
	SubPeriodEnd   *time.Time
}

// Subscription is the provider-neutral view of a subscription
type Subscription struct {
	ID               string
	CustomerID       string
	Status           string
	CurrentPeriodEnd *time.Time
}

// PaymentProvider is the payment API surface the reconciler and the billing
// handlers depend on. Tests substitute a fake.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, priceID, successURL, cancelURL string) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL, configurationID string) (string, error)
}

// StripeProvider implements PaymentProvider against the Stripe API
type StripeProvider struct{}

// NewStripeProvider wires the Stripe API key and returns the provider, or
// an error when no key is configured.
func NewStripeProvider(secretKey string) (*StripeProvider, error) {
	if secretKey == "" {
		return nil, ErrNotConfigured
	}
	stripe.Key = secretKey
	return &StripeProvider{}, nil
}

// CreateCheckoutSession starts a subscription checkout for the monthly price
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, priceID, successURL, cancelURL string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(successURL),
		CancelURL:           stripe.String(cancelURL),
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	if sess.URL == "" {
		return nil, errors.New("stripe returned no checkout URL")
	}
	return fromStripeSession(sess), nil
}

// GetCheckoutSession retrieves a checkout session with its subscription expanded
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")

	sess, err := checkoutsession.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}
	return fromStripeSession(sess), nil
}

// GetSubscription retrieves a subscription
func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription: %w", err)
	}
	return fromStripeSubscription(sub), nil
}

// CreatePortalSession opens the customer billing portal
func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL, configurationID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	if configurationID != "" {
		params.Configuration = stripe.String(configurationID)
	}

	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return sess.URL, nil
}

func fromStripeSession(sess *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:     sess.ID,
		URL:    sess.URL,
		Mode:   string(sess.Mode),
		Status: string(sess.Status),
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
		out.SubStatus = string(sess.Subscription.Status)
		out.SubPeriodEnd = unixToTime(sess.Subscription.CurrentPeriodEnd)
	}
	return out
}

func fromStripeSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:               sub.ID,
		Status:           string(sub.Status),
		CurrentPeriodEnd: unixToTime(sub.CurrentPeriodEnd),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out
}

func unixToTime(unix int64) *time.Time {
	if unix == 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}
