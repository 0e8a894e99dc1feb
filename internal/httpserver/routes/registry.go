package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
)

type (
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type entry struct {
	reg Registrar
	mws []Middleware
}

var registry []entry

// Register a registrar with optional per-route middlewares.
func Register(reg Registrar, mws ...Middleware) {
	registry = append(registry, entry{reg: reg, mws: mws})
}

// Called once from server.New()
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, e := range registry {
		if len(e.mws) == 0 {
			e.reg(r, d)
			continue
		}
		sub := r.With(e.mws...) // apply per-route middlewares
		e.reg(sub, d)
	}
}

// requestTimeout bounds a whole request. A mutation makes up to three remote
// calls (identity, write, refresh), each bounded by RemoteTimeout.
func requestTimeout(d deps.Deps) time.Duration {
	if d.RemoteTimeout <= 0 {
		return 30 * time.Second
	}
	return 3 * d.RemoteTimeout
}
