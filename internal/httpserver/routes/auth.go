package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/mw"
)

func init() { Register(registerAuth) }

func registerAuth(r chi.Router, d deps.Deps) {
	// One limiter for the whole sign-in surface
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.AuthRateBurst,
		RefillPerIPPerMin: d.AuthRatePerMin,
		MaxEntries:        10000,
		TrustProxy:        d.TrustProxy,
	})

	r.Group(func(g chi.Router) {
		g.Use(mw.EnforceHost(d.AllowedHosts, d.Logger), limit, middleware.Timeout(requestTimeout(d)))
		g.Get("/auth/{provider}/login", handlers.Login(d))
		g.Get("/auth/{provider}/callback", handlers.Callback(d))
		g.Post("/auth/logout", handlers.Logout(d))
	})
}
