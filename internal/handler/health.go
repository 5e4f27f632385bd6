package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health handles GET /healthz. It checks database connectivity so load
// balancers stop routing to an instance that lost its store.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"reason": "database unreachable",
				})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
