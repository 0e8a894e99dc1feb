package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/smartmark/internal/controller"
	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/mw"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps a remote or controller error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, remote.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, remote.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMissingField):
		return http.StatusBadRequest
	case errors.Is(err, remote.ErrUnsupportedProvider):
		return http.StatusNotFound
	case remote.IsTransport(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// openView builds a short-lived controller for the request's session and
// activates it. The caller must Close it.
func openView(d deps.Deps, r *http.Request) (*controller.Controller, error) {
	client := d.Store.Connect(mw.TokenFrom(r.Context()))
	view := controller.New(client, d.Logger, controller.Options{Timeout: d.RemoteTimeout})
	if err := view.Activate(r.Context()); err != nil {
		d.Logger.Debug("view activation incomplete", logger.Error(err))
		return view, err
	}
	return view, nil
}
