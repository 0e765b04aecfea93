package httpapi

import "net/http"

// healthResponse is the payload of GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: "semantic-firewall"})
}
