package handlers

import (
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/scribely/backend/internal/api/request"
	"github.com/scribely/backend/internal/api/response"
	"github.com/scribely/backend/internal/auth"
	"github.com/scribely/backend/internal/billing"
	"github.com/scribely/backend/internal/config"
	"github.com/scribely/backend/internal/entitlement"
)

// maxWebhookBody bounds webhook payload reads. Stripe events routinely run
// tens of kilobytes; an oversized body is rejected outright rather than
// truncated, which would only surface later as a signature mismatch.
const maxWebhookBody = int64(1 << 20)

// BillingHandler serves checkout, confirm, webhook, portal and signout
type BillingHandler struct {
	reconciler *billing.Reconciler
	provider   billing.PaymentProvider
	cookies    *entitlement.CookieCodec
	cfg        *config.Config
}

// NewBillingHandler creates a new billing handler. provider may be nil when
// Stripe is not configured; every endpoint then reports the missing
// configuration instead of degrading silently.
func NewBillingHandler(reconciler *billing.Reconciler, provider billing.PaymentProvider, cookies *entitlement.CookieCodec, cfg *config.Config) *BillingHandler {
	return &BillingHandler{
		reconciler: reconciler,
		provider:   provider,
		cookies:    cookies,
		cfg:        cfg,
	}
}

// Checkout handles GET and POST /api/v1/billing/checkout. GET redirects the
// browser straight to Stripe; POST returns the URL for client-side redirects.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil || h.cfg.StripePriceIDMonthly == "" {
		response.InternalError(w, "Faltan STRIPE_SECRET_KEY o STRIPE_PRICE_ID_MONTHLY")
		return
	}

	// the placeholder is filled in by Stripe on redirect
	successURL := h.cfg.BaseURL + "/api/v1/billing/confirm?session_id={CHECKOUT_SESSION_ID}"
	cancelURL := h.cfg.BaseURL + "/#precios"

	sess, err := h.provider.CreateCheckoutSession(r.Context(), h.cfg.StripePriceIDMonthly, successURL, cancelURL)
	if err != nil {
		log.Printf("[billing] checkout session failed: %v", err)
		response.InternalError(w, "No se pudo iniciar el pago")
		return
	}

	if r.Method == http.MethodGet {
		response.Redirect(w, http.StatusSeeOther, sess.URL)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"url": sess.URL})
}

// Confirm handles GET /api/v1/billing/confirm?session_id=...
// It verifies the checkout with Stripe, reconciles the durable record for
// the authenticated account, and always sets the entitlement cookie as the
// immediate signal for this browser.
func (h *BillingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	sessionID := request.GetQueryString(r, "session_id", "")
	if sessionID == "" {
		sessionID = request.GetQueryString(r, "sid", "")
	}
	if sessionID == "" {
		h.redirectMsg(w, "Falta session_id")
		return
	}
	if h.provider == nil {
		h.redirectMsg(w, "Falta STRIPE_SECRET_KEY")
		return
	}

	accountID := ""
	if session := auth.GetSession(r.Context()); session != nil {
		accountID = session.AccountID
	}

	result, err := h.reconciler.Confirm(r.Context(), sessionID, accountID)
	if err != nil {
		log.Printf("[billing] confirm failed for session %s: %v", sessionID, err)
		h.redirectMsg(w, "Error confirmando el pago")
		return
	}

	if err := h.cookies.Issue(w, entitlement.Cookie{
		Pro:            true,
		CustomerID:     result.CustomerID,
		SubscriptionID: result.SubscriptionID,
	}); err != nil {
		log.Printf("[billing] failed to set entitlement cookie: %v", err)
	}

	response.Redirect(w, http.StatusFound,
		h.cfg.BaseURL+"/account?msg="+url.QueryEscape("Pago confirmado. ¡Gracias!"))
}

// Webhook handles POST /api/v1/billing/webhook. The signature is verified
// before anything else; an unverified payload produces no effects at all.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.cfg.StripeWebhookSecret == "" || h.cfg.StripeSecretKey == "" {
		response.Error(w, http.StatusBadRequest, "Missing Stripe configuration")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Printf("[billing] webhook body read failed: %v", err)
		response.BadRequest(w, "invalid payload")
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		r.Header.Get("Stripe-Signature"),
		h.cfg.StripeWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		log.Printf("[billing] webhook signature verification failed: %v", err)
		response.Error(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	if err := h.reconciler.HandleEvent(r.Context(), event); err != nil {
		log.Printf("[billing] webhook handler error for %s: %v", event.Type, err)
		response.InternalError(w, "handler error")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Portal handles GET /api/v1/billing/portal, sending the customer from the
// entitlement cookie to the Stripe billing portal.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		h.redirectMsg(w, "Falta STRIPE_SECRET_KEY")
		return
	}

	cookie, err := h.cookies.Read(r)
	if err != nil || cookie.CustomerID == "" {
		// nothing to manage; send them to pricing instead
		response.Redirect(w, http.StatusFound, h.cfg.BaseURL+"/#precios")
		return
	}

	portalURL, err := h.provider.CreatePortalSession(r.Context(), cookie.CustomerID, h.cfg.BaseURL, h.cfg.StripePortalConfigID)
	if err != nil {
		log.Printf("[billing] portal session failed for customer %s: %v", cookie.CustomerID, err)
		h.redirectMsg(w, "No se pudo abrir el portal de cliente")
		return
	}

	response.Redirect(w, http.StatusSeeOther, portalURL)
}

// Signout handles GET /api/v1/billing/signout, destroying the entitlement
// cookie for this browser. The durable record is untouched.
func (h *BillingHandler) Signout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	response.Redirect(w, http.StatusFound, h.cfg.BaseURL)
}

func (h *BillingHandler) redirectMsg(w http.ResponseWriter, msg string) {
	response.Redirect(w, http.StatusFound, h.cfg.BaseURL+"/?msg="+url.QueryEscape(msg))
}
