package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
)

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// Readyz reports ready once the bookmarks table answers a ping.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := d.Store.Ping(ctx); err != nil {
			d.Logger.Warn("readiness check failed", logger.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Ready: false, Error: "table unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
	}
}
