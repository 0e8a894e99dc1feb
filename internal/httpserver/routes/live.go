package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/mw"
)

func init() { Register(registerLive) }

// No request timeout: the connection lives as long as the page.
func registerLive(r chi.Router, d deps.Deps) {
	r.With(mw.EnforceHost(d.AllowedHosts, d.Logger)).Get("/api/live", handlers.Live(d))
}
