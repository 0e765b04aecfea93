package httpapi

import (
	"net/http"

	"github.com/dannycabezas/semantic-firewall/internal/domain/detector"
)

// availableModelsResponse is the payload of GET /api/models/available.
type availableModelsResponse struct {
	Available map[string][]string `json:"available"`
	Defaults  map[string]string   `json:"defaults"`
}

// handleModelsAvailable lists every detector variant by category plus the
// process-wide default, per spec.md §6.
func (h *Handler) handleModelsAvailable(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, availableModelsResponse{
		Available: map[string][]string{
			"prompt_injection": {detector.VariantCustomONNX, detector.VariantDeBERTa, detector.VariantLlamaGuard86M, detector.VariantLlamaGuard22M},
			"pii":              {detector.VariantPresidio, detector.VariantONNX, detector.VariantMock},
			"toxicity":         {detector.VariantDetoxify, detector.VariantONNX},
		},
		Defaults: map[string]string{
			"prompt_injection": h.detectorDefaults.PromptInjection,
			"pii":              h.detectorDefaults.PII,
			"toxicity":         h.detectorDefaults.Toxicity,
		},
	})
}

// cacheEntry describes one populated registry slot.
type cacheEntry struct {
	Kind  string `json:"kind"`
	Model string `json:"model"`
}

// handleModelsCache serves GET /api/models/cache: every currently
// constructed detector instance.
func (h *Handler) handleModelsCache(w http.ResponseWriter, r *http.Request) {
	keys := h.registry.Keys()
	entries := make([]cacheEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, cacheEntry{Kind: string(k.Kind), Model: k.ModelName})
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"size": len(entries), "entries": entries})
}

// handleModelsCacheClear serves POST /api/models/cache/clear: drops every
// cached detector instance. A subsequent request reconstructs lazily.
func (h *Handler) handleModelsCacheClear(w http.ResponseWriter, r *http.Request) {
	h.registry.Clear()
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
