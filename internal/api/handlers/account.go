package handlers

import (
	"net/http"

	"github.com/scribely/backend/internal/api/response"
	"github.com/scribely/backend/internal/entitlement"
)

// AccountHandler exposes the cookie-level entitlement view for the client
type AccountHandler struct {
	cookies *entitlement.CookieCodec
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(cookies *entitlement.CookieCodec) *AccountHandler {
	return &AccountHandler{cookies: cookies}
}

// AccountResponse mirrors the entitlement cookie contents
type AccountResponse struct {
	Pro          bool    `json:"pro"`
	Customer     *string `json:"customer"`
	Subscription *string `json:"subscription"`
}

// GetAccount handles GET /api/v1/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	resp := AccountResponse{}

	if cookie, err := h.cookies.Read(r); err == nil {
		resp.Pro = cookie.Pro
		if cookie.CustomerID != "" {
			resp.Customer = &cookie.CustomerID
		}
		if cookie.SubscriptionID != "" {
			resp.Subscription = &cookie.SubscriptionID
		}
	}

	response.JSON(w, http.StatusOK, resp)
}
