package httpapi

import (
	"net/http"
	"time"

	"github.com/dannycabezas/semantic-firewall/internal/service/gateway"
)

// handleChat serves POST /api/chat: decode, run the full gateway
// pipeline, and respond 200 whether the request was allowed or blocked.
// Backend/internal failures map through firewallerr.StatusCode (502/500).
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req gateway.ChatRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if req.Message == "" {
		h.respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp, err := h.gateway.ProcessChatRequest(r.Context(), req, r.Header, h.tenantID)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.promMetrics.observeChatResult(start, resp.Blocked, resp.Policy.MatchedRule)
	h.respondJSON(w, http.StatusOK, resp)
}
