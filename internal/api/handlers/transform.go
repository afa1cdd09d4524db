package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/scribely/backend/internal/ai"
	"github.com/scribely/backend/internal/api/response"
	"github.com/scribely/backend/internal/entitlement"
	"github.com/scribely/backend/internal/models"
	"github.com/scribely/backend/internal/quota"
)

// TransformHandler serves the gated AI text transformation
type TransformHandler struct {
	gate        *quota.Gate
	transformer *ai.TransformService
	cookies     *entitlement.CookieCodec
	configured  bool // OPENAI_API_KEY present
	secure      bool
}

// NewTransformHandler creates a new transform handler
func NewTransformHandler(gate *quota.Gate, transformer *ai.TransformService, cookies *entitlement.CookieCodec, configured, secure bool) *TransformHandler {
	return &TransformHandler{
		gate:        gate,
		transformer: transformer,
		cookies:     cookies,
		configured:  configured,
		secure:      secure,
	}
}

// TransformRequest is the inbound payload
type TransformRequest struct {
	Mode string `json:"mode"`
	Text string `json:"text"`
	Tone string `json:"tone,omitempty"`
}

// TransformResponse is the success payload
type TransformResponse struct {
	Result string `json:"result"`
	Used   int64  `json:"used"`
	Limit  int64  `json:"limit"`
}

// Transform handles POST /api/v1/ai/transform.
// The quota charge happens at admission, before generation: a request that
// fails upstream after being counted stays counted, and the demo fallback
// never charges a second time.
func (h *TransformHandler) Transform(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TransformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Cuerpo de la petición inválido")
		return
	}

	if !h.configured {
		response.InternalError(w, "Falta OPENAI_API_KEY (revisa el entorno)")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		response.BadRequest(w, `Falta el campo "text" con contenido`)
		return
	}

	caller := callerFrom(r, h.cookies)
	words := quota.CountWords(req.Text)
	day := quota.DayKey(time.Now())

	admission, err := h.gate.Admit(ctx, caller, words, localUsageHint(r, day))
	if err != nil {
		if errors.Is(err, quota.ErrLimitReached) {
			response.ErrorWithCode(w, http.StatusPaymentRequired, limitMessage(admission.Tier), "limit_reached")
			return
		}
		response.InternalError(w, "Error interno comprobando tu límite diario")
		return
	}

	// advisory progress cookie; the counter store stays the source of truth
	setUsageCookie(w, day, admission.Used, h.secure)

	result, _, err := h.transformer.Transform(ctx, req.Mode, req.Text, req.Tone)
	if err != nil {
		response.InternalError(w, "Error interno generando el resultado")
		return
	}

	response.JSON(w, http.StatusOK, TransformResponse{
		Result: result,
		Used:   admission.Used,
		Limit:  admission.Limit,
	})
}

// limitMessage picks the tier-appropriate guidance for a rejected request
func limitMessage(tier string) string {
	if tier == models.TierPro {
		return "Has superado tu límite diario de palabras."
	}
	return "Límite diario gratis alcanzado. Hazte Pro para ampliarlo."
}
