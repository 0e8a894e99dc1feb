package handlers

import (
	_ "embed"
	"net/http"

	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
)

//go:embed web/index.html
var indexHTML []byte

// Page serves the single-page view. It renders itself from the snapshots
// pushed over /api/live.
func Page(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if _, err := w.Write(indexHTML); err != nil {
			d.Logger.Debug("failed to write page", logger.Error(err))
		}
	}
}
