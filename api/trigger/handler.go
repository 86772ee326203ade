// Package trigger exposes manual solve dispatch and loop status over HTTP.
package trigger

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/tradedesk/routeopt/core/trigger"
)

// NewHandler returns an HTTP handler for the trigger loops.
// GET /api/trigger/status reports every loop; POST /api/trigger/solve
// with a product_group query parameter dispatches a manual run.
func NewHandler(loops map[string]*trigger.Loop, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			if r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/trigger/status":
			statuses := make([]trigger.Status, 0, len(loops))
			for _, l := range loops {
				st, err := l.Status(r.Context())
				if err != nil {
					http.Error(w, err.Error(), http.StatusServiceUnavailable)
					return
				}
				statuses = append(statuses, st)
			}
			sort.Slice(statuses, func(i, j int) bool {
				return statuses[i].ProductGroup < statuses[j].ProductGroup
			})
			writeJSON(w, statuses)

		case r.Method == http.MethodPost && r.URL.Path == "/api/trigger/solve":
			group := r.URL.Query().Get("product_group")
			loop, ok := loops[group]
			if !ok {
				http.Error(w, "unknown product group", http.StatusNotFound)
				return
			}
			err := loop.SolveNow(r.Context())
			switch {
			case errors.Is(err, trigger.ErrBusy):
				http.Error(w, "solve already in flight", http.StatusConflict)
			case errors.Is(err, trigger.ErrStopped):
				http.Error(w, "loop stopped", http.StatusServiceUnavailable)
			case err != nil:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			default:
				w.WriteHeader(http.StatusAccepted)
			}

		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
