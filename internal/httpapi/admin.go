package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/llmrelay/llmrelay/internal/config"
	"github.com/llmrelay/llmrelay/internal/jsonval"
)

// ConfigPath is set by cmd/llmrelay at startup so handleAdminReload can
// re-read the same file without threading a path through every Engine
// construction site.
var ConfigPath string

// handleAdminReload re-reads the config file at ConfigPath and atomically
// swaps the registry snapshot (spec.md §6.2 "Admin CRUD on /admin/* --
// external" names this surface but leaves its shape to the implementation;
// a single reload endpoint is the minimum viable admin surface).
func (e *Engine) handleAdminReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snap, err := config.Load(ConfigPath)
	if err != nil {
		writeErrorEnvelope(w, r.URL.Path, http.StatusInternalServerError, "internal_error", err.Error(), "reload_failed")
		return
	}
	if err := e.Registry.Reload(snap.Backends()); err != nil {
		writeErrorEnvelope(w, r.URL.Path, http.StatusInternalServerError, "internal_error", err.Error(), "reload_failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jsonval.Value{"status": "reloaded", "backends": e.Registry.Names()})
}

// handleAdminBackends lists the currently registered backends and their
// non-secret fields.
func (e *Engine) handleAdminBackends(w http.ResponseWriter, r *http.Request) {
	list := e.Registry.List()
	out := make([]jsonval.Value, 0, len(list))
	for _, b := range list {
		out = append(out, jsonval.Value{
			"name":               b.Name,
			"base_url":           b.BaseURL,
			"api_type":           string(b.APIType),
			"target_model":       b.TargetModel,
			"supports_reasoning": b.SupportsReasoning,
			"http2":              b.HTTP2,
			"fallbacks":          b.Fallbacks,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jsonval.Value{"backends": out})
}
