package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribely/backend/internal/billing"
	"github.com/scribely/backend/internal/config"
	"github.com/scribely/backend/internal/entitlement"
	"github.com/scribely/backend/internal/models"
)

type fakeProvider struct {
	session   *billing.CheckoutSession
	portalURL string
	err       error
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, priceID, successURL, cancelURL string) (*billing.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &billing.CheckoutSession{ID: "cs_new", URL: "https://checkout.stripe.com/pay/cs_new"}, nil
}

func (f *fakeProvider) GetCheckoutSession(ctx context.Context, id string) (*billing.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeProvider) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	return &billing.Subscription{ID: id, CustomerID: "cus_1", Status: "active"}, nil
}

func (f *fakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL, configurationID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.portalURL, nil
}

type recordingAccounts struct {
	linked  map[string]string
	applied []string
}

func (r *recordingAccounts) GetByCustomerID(ctx context.Context, customerID string) (*models.AccountEntitlement, error) {
	// every customer counts as linked; the handler tests only observe writes
	return &models.AccountEntitlement{AccountID: "acc_1", StripeCustomerID: customerID}, nil
}

func (r *recordingAccounts) UpsertCustomer(ctx context.Context, accountID, customerID string) error {
	if r.linked == nil {
		r.linked = make(map[string]string)
	}
	r.linked[accountID] = customerID
	return nil
}

func (r *recordingAccounts) ApplySubscriptionState(ctx context.Context, customerID, status string, periodEnd *time.Time, eventAt time.Time) error {
	r.applied = append(r.applied, customerID+":"+status)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                  "test",
		BaseURL:              "https://scribely.example",
		SessionSecret:        "test-secret",
		StripeSecretKey:      "sk_test_123",
		StripeWebhookSecret:  "whsec_test",
		StripePriceIDMonthly: "price_123",
	}
}

func newBillingHandler(provider billing.PaymentProvider, store *recordingAccounts, cfg *config.Config) (*BillingHandler, *entitlement.CookieCodec) {
	codec := entitlement.NewCookieCodec(cfg.SessionSecret, false)
	var accounts billing.AccountStore
	if store != nil {
		accounts = store
	}
	reconciler := billing.NewReconciler(provider, accounts)
	return NewBillingHandler(reconciler, provider, codec, cfg), codec
}

func TestCheckoutRedirectsBrowser(t *testing.T) {
	h, _ := newBillingHandler(&fakeProvider{}, nil, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/checkout", nil)
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_new", rec.Header().Get("Location"))
}

func TestCheckoutPostReturnsURL(t *testing.T) {
	h, _ := newBillingHandler(&fakeProvider{}, nil, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", nil)
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://checkout.stripe.com/pay/cs_new")
}

func TestCheckoutWithoutStripeConfig(t *testing.T) {
	cfg := testConfig()
	cfg.StripePriceIDMonthly = ""
	h, _ := newBillingHandler(&fakeProvider{}, nil, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/checkout", nil)
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestConfirmSetsEntitlementCookieAndRedirects(t *testing.T) {
	provider := &fakeProvider{session: &billing.CheckoutSession{
		ID:             "cs_1",
		Mode:           "subscription",
		Status:         "complete",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		SubStatus:      "active",
	}}
	h, codec := newBillingHandler(provider, &recordingAccounts{}, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/confirm?session_id=cs_1", nil)
	rec := httptest.NewRecorder()
	h.Confirm(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/account?msg=")

	var ent *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == entitlement.CookieName {
			ent = c
		}
	}
	require.NotNil(t, ent)

	verify := httptest.NewRequest(http.MethodGet, "/", nil)
	verify.AddCookie(ent)
	parsed, err := codec.Read(verify)
	require.NoError(t, err)
	assert.True(t, parsed.Pro)
	assert.Equal(t, "cus_1", parsed.CustomerID)
	assert.Equal(t, "sub_1", parsed.SubscriptionID)
}

func TestConfirmIncompleteSessionRedirectsWithError(t *testing.T) {
	provider := &fakeProvider{session: &billing.CheckoutSession{
		ID: "cs_1", Mode: "subscription", Status: "open", CustomerID: "cus_1",
	}}
	h, _ := newBillingHandler(provider, &recordingAccounts{}, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/confirm?session_id=cs_1", nil)
	rec := httptest.NewRecorder()
	h.Confirm(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "msg=")
	assert.Empty(t, rec.Result().Cookies())
}

func TestConfirmMissingSessionID(t *testing.T) {
	h, _ := newBillingHandler(&fakeProvider{}, nil, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/confirm", nil)
	rec := httptest.NewRecorder()
	h.Confirm(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "session_id")
}

// signPayload builds a Stripe-Signature header the verifier accepts
func signPayload(secret string, payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestWebhookVerifiesSignatureAndApplies(t *testing.T) {
	cfg := testConfig()
	store := &recordingAccounts{}
	h, _ := newBillingHandler(&fakeProvider{}, store, cfg)

	now := time.Now()
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "customer.subscription.deleted",
		"created": %d,
		"data": {"object": {"id": "sub_1", "customer": "cus_1", "status": "canceled"}}
	}`, now.Unix()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", signPayload(cfg.StripeWebhookSecret, payload, now))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"cus_1:canceled"}, store.applied)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	cfg := testConfig()
	store := &recordingAccounts{}
	h, _ := newBillingHandler(&fakeProvider{}, store, cfg)

	payload := []byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{}}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", signPayload("whsec_wrong", payload, time.Now()))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.applied)
}

func TestWebhookOversizedBodyIsRejectedWithoutEffects(t *testing.T) {
	cfg := testConfig()
	store := &recordingAccounts{}
	h, _ := newBillingHandler(&fakeProvider{}, store, cfg)

	now := time.Now()
	// a correctly signed payload past the size cap must still be rejected
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":"customer.subscription.deleted","created":%d,"data":{"object":{"id":"sub_1","customer":"cus_1","status":"canceled","metadata":{"pad":"%s"}}}}`,
		now.Unix(), strings.Repeat("x", 1<<21)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", signPayload(cfg.StripeWebhookSecret, payload, now))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.applied)
}

func TestWebhookWithoutSecretsIsRejected(t *testing.T) {
	cfg := testConfig()
	cfg.StripeWebhookSecret = ""
	h, _ := newBillingHandler(&fakeProvider{}, &recordingAccounts{}, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPortalRedirectsKnownCustomer(t *testing.T) {
	provider := &fakeProvider{portalURL: "https://billing.stripe.com/session/ps_1"}
	h, codec := newBillingHandler(provider, nil, testConfig())

	issue := httptest.NewRecorder()
	require.NoError(t, codec.Issue(issue, entitlement.Cookie{Pro: true, CustomerID: "cus_1"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/portal", nil)
	req.AddCookie(issue.Result().Cookies()[0])
	rec := httptest.NewRecorder()
	h.Portal(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://billing.stripe.com/session/ps_1", rec.Header().Get("Location"))
}

func TestPortalWithoutCustomerGoesToPricing(t *testing.T) {
	h, _ := newBillingHandler(&fakeProvider{}, nil, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/portal", nil)
	rec := httptest.NewRecorder()
	h.Portal(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://scribely.example/#precios", rec.Header().Get("Location"))
}

func TestSignoutClearsTheCookie(t *testing.T) {
	h, _ := newBillingHandler(&fakeProvider{}, nil, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/signout", nil)
	rec := httptest.NewRecorder()
	h.Signout(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, entitlement.CookieName, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}
