package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/smartmark/internal/controller"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
)

const maxBookmarkBody = 16 << 10

// ListBookmarks returns the caller's view snapshot.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := openView(d, r)
		defer view.Close()

		snap := view.Snapshot()
		if snap.State == controller.StateUnauthenticated {
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// CreateBookmark inserts {title, url} for the caller and returns the refreshed snapshot.
func CreateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var draft controller.Draft
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBookmarkBody)).Decode(&draft); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		view, _ := openView(d, r)
		defer view.Close()

		if view.Snapshot().State == controller.StateUnauthenticated {
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}

		if err := view.Create(r.Context(), draft); err != nil {
			d.Logger.Debug("create rejected", logger.Error(err))
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, view.Snapshot())
	}
}

// DeleteBookmark removes one of the caller's bookmarks by id.
func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid bookmark id")
			return
		}

		view, _ := openView(d, r)
		defer view.Close()

		if view.Snapshot().State == controller.StateUnauthenticated {
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}

		if err := view.Delete(r.Context(), id); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, view.Snapshot())
	}
}
