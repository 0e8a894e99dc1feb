package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/mw"
)

func init() { Register(registerBookmarks) }

func registerBookmarks(r chi.Router, d deps.Deps) {
	r.Group(func(g chi.Router) {
		g.Use(mw.EnforceHost(d.AllowedHosts, d.Logger), middleware.Timeout(requestTimeout(d)))
		g.Get("/api/bookmarks", handlers.ListBookmarks(d))
		g.Post("/api/bookmarks", handlers.CreateBookmark(d))
		g.Delete("/api/bookmarks/{id}", handlers.DeleteBookmark(d))
	})
}
