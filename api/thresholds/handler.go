// Package thresholds exposes the trigger configuration over HTTP.
package thresholds

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tradedesk/routeopt/core/thresholds"
)

type patch struct {
	Enabled         *bool                    `json:"enabled,omitempty"`
	CooldownSeconds *int                     `json:"cooldown_seconds,omitempty"`
	Thresholds      map[string]float64       `json:"thresholds,omitempty"`
	PollIntervals   map[string]time.Duration `json:"poll_intervals,omitempty"`
}

// NewHandler returns an HTTP handler for threshold configuration.
// GET /api/thresholds lists every group; GET /api/thresholds/<group>
// returns one; PATCH /api/thresholds/<group> merges changes into it;
// PUT /api/thresholds/<group> replaces the full configuration.
func NewHandler(store *thresholds.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			if r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		group := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/thresholds"), "/")

		switch {
		case r.Method == http.MethodGet && group == "":
			writeJSON(w, store.All())

		case r.Method == http.MethodGet:
			cfg, ok := store.Get(group)
			if !ok {
				http.Error(w, "unknown product group", http.StatusNotFound)
				return
			}
			writeJSON(w, cfg)

		case r.Method == http.MethodPatch:
			var p patch
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			cfg, ok := applyPatch(store, group, p)
			if !ok {
				http.Error(w, "unknown product group", http.StatusNotFound)
				return
			}
			writeJSON(w, cfg)

		case r.Method == http.MethodPut && group != "":
			var cfg thresholds.Config
			if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			cfg.ProductGroup = group
			store.Replace(cfg)
			stored, _ := store.Get(group)
			writeJSON(w, stored)

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func applyPatch(store *thresholds.Store, group string, p patch) (thresholds.Config, bool) {
	cfg, ok := store.Get(group)
	if !ok {
		return thresholds.Config{}, false
	}
	if len(p.Thresholds) > 0 {
		cfg, ok = store.MergeThresholds(group, p.Thresholds)
	}
	if ok && len(p.PollIntervals) > 0 {
		cfg, ok = store.MergePollIntervals(group, p.PollIntervals)
	}
	if ok && p.Enabled != nil {
		cfg, ok = store.SetEnabled(group, *p.Enabled)
	}
	if ok && p.CooldownSeconds != nil {
		cfg, ok = store.SetCooldown(group, time.Duration(*p.CooldownSeconds)*time.Second)
	}
	return cfg, ok
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
