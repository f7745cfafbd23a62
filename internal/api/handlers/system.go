package handlers

import (
	"net/http"
	"time"

	"github.com/agentoven/psymarket/pkg/models"
	"github.com/rs/zerolog/log"
)

// ── System Handlers ──────────────────────────────────────────

// SystemStatus reports which providers have credentials and the overall
// health of every service class.
func (h *Handlers) SystemStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.System.Status())
}

// SystemTest probes every service class with a live call.
func (h *Handlers) SystemTest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	results := h.System.TestAll(r.Context())

	passed := 0
	for _, res := range results {
		if res.Success {
			passed++
		}
	}
	log.Info().
		Int("passed", passed).
		Int("total", len(results)).
		Dur("duration", time.Since(start)).
		Msg("🔍 System test finished")

	if results == nil {
		results = []models.ProbeResult{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":   passed == len(results),
		"passed":    passed,
		"total":     len(results),
		"results":   results,
		"tested_at": time.Now().UTC(),
	})
}
