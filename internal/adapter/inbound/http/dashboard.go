package httpapi

import (
	"net/http"
	"strconv"
)

// handleStats serves GET /api/stats, the rolling aggregate summary.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.metricsStore.Stats())
}

// handleRecentRequests serves GET /api/recent-requests?limit=N.
func (h *Handler) handleRecentRequests(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	h.respondJSON(w, http.StatusOK, h.metricsStore.Recent(limit))
}

// handleSessionAnalytics serves GET /api/session-analytics?top=N.
func (h *Handler) handleSessionAnalytics(w http.ResponseWriter, r *http.Request) {
	top := queryInt(r, "top", 0)
	h.respondJSON(w, http.StatusOK, h.metricsStore.SessionAnalytics(top))
}

// handleTemporalBreakdown serves GET /api/temporal-breakdown?minutes=N.
func (h *Handler) handleTemporalBreakdown(w http.ResponseWriter, r *http.Request) {
	minutes := queryInt(r, "minutes", 0)
	h.respondJSON(w, http.StatusOK, h.metricsStore.TemporalBreakdown(minutes))
}

// queryInt parses an int query param, returning def on absence or
// malformed input.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
