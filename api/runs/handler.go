// Package runs exposes the solve audit trail over HTTP.
package runs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tradedesk/routeopt/core/audit"
)

// NewHandler returns an HTTP handler exposing solve runs via GET /api/runs.
// Requests must include an Authorization header with "Bearer <token>" when
// token is non-empty. A run_id query parameter selects a single record.
func NewHandler(store audit.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" {
			if r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		if id := r.URL.Query().Get("run_id"); id != "" {
			o, err := store.GetOutcome(r.Context(), id)
			if errors.Is(err, audit.ErrNotFound) {
				http.Error(w, "run not found", http.StatusNotFound)
				return
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, o)
			return
		}

		q := audit.Query{ProductGroup: r.URL.Query().Get("product_group")}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				q.Limit = n
			}
		}
		outcomes, err := store.QueryOutcomes(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, outcomes)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
