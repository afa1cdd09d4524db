package handlers

import (
	"net/http"

	"github.com/scribely/backend/internal/api/response"
	"github.com/scribely/backend/internal/entitlement"
	"github.com/scribely/backend/internal/models"
	"github.com/scribely/backend/internal/quota"
)

// UsageHandler serves the read-only quota inspection endpoint
type UsageHandler struct {
	gate    *quota.Gate
	cookies *entitlement.CookieCodec
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(gate *quota.Gate, cookies *entitlement.CookieCodec) *UsageHandler {
	return &UsageHandler{gate: gate, cookies: cookies}
}

// UsageResponse reports the caller's current counter without consuming quota
type UsageResponse struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
	IsPro bool  `json:"isPro"`
}

// GetUsage handles GET /api/v1/usage
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r, h.cookies)

	admission, err := h.gate.Peek(r.Context(), caller)
	if err != nil {
		response.InternalError(w, "Error interno consultando tu uso")
		return
	}

	response.JSON(w, http.StatusOK, UsageResponse{
		Used:  admission.Used,
		Limit: admission.Limit,
		IsPro: admission.Tier == models.TierPro,
	})
}
