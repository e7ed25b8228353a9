package api

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/yuna-network/yuna/internal/dispatch"
	"github.com/yuna-network/yuna/internal/domain"
)

// ─── Generation API ─────────────────────────────────────────────────────────
// POST /api/generate           — paid image generation
// GET  /api/generate/models    — models on the first responsive endpoint
// GET  /api/generate/endpoints — endpoint health snapshot

// handleGenerate runs a paid generation: the cost is reserved up front and
// either committed (success) or refunded (any failure).
// POST /api/generate {"user_id": "...", "prompt": "...", "quality": "high",
// "ratio": "1:1", "steps": 24, "cfg_scale": 4.5}
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		domain.GenerationRequest
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}
	if body.Prompt == "" {
		writeError(w, http.StatusBadRequest, "missing prompt")
		return
	}

	result, err := s.coordinator.Perform(r.Context(), body.UserID, s.generationCost, body.GenerationRequest)
	if err != nil {
		writeGenerateError(w, err)
		return
	}

	normalized := body.GenerationRequest.Normalize()
	images := make([]string, 0, len(result.Images))
	for _, img := range result.Images {
		images = append(images, base64.StdEncoding.EncodeToString(img))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"images":          images,
		"endpoint":        result.Endpoint,
		"cost":            s.generationCost,
		"prompt":          normalized.Prompt,
		"negative_prompt": normalized.NegativePrompt,
		"width":           normalized.Width,
		"height":          normalized.Height,
		"steps":           normalized.Steps,
		"cfg_scale":       normalized.CfgScale,
	})
}

// handleListModels lists the models on the first responsive endpoint.
// GET /api/generate/models
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.coordinator.ListModels(r.Context())
	if err != nil {
		writeGenerateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}

// handleEndpoints reports endpoint health for operators.
// GET /api/generate/endpoints
func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints := s.registry.Snapshot()
	out := make([]map[string]interface{}, 0, len(endpoints))
	for _, ep := range endpoints {
		entry := map[string]interface{}{
			"address":              ep.Address,
			"health":               ep.Health.String(),
			"consecutive_failures": ep.ConsecutiveFailures,
		}
		if !ep.CooldownUntil.IsZero() {
			entry["cooldown_until"] = ep.CooldownUntil
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"endpoints": out})
}

// writeGenerateError maps dispatch failures; everything else falls back to
// the ledger mapping.
func writeGenerateError(w http.ResponseWriter, err error) {
	var exhausted *dispatch.ExhaustedError
	if errors.As(err, &exhausted) {
		reasons := make([]map[string]string, 0, len(exhausted.Attempts))
		for _, a := range exhausted.Attempts {
			reasons = append(reasons, map[string]string{
				"address": a.Address,
				"reason":  a.Err.Error(),
			})
		}
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error": map[string]interface{}{
				"message": "all generation endpoints failed",
				"type":    "endpoints_exhausted",
				"reasons": reasons,
			},
		})
		return
	}
	writeLedgerError(w, err)
}
