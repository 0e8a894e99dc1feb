package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/smartmark/internal/auth"
	"github.com/MrSnakeDoc/smartmark/internal/controller"
	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/mw"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
)

// Login starts a sign-in and redirects to the provider. After the round trip
// the user lands back on the origin the request came from.
func Login(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		origin := requestOrigin(r, d)

		view := controller.New(d.Store.Connect(""), d.Logger, controller.Options{Timeout: d.RemoteTimeout})
		defer view.Close()

		target, err := view.SignIn(r.Context(), provider, origin)
		if err != nil {
			d.Logger.Warn("sign-in could not start",
				logger.String("provider", provider),
				logger.Error(err))
			writeError(w, statusFor(err), "sign-in unavailable")
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// Callback finishes the provider round trip, issues a session cookie and
// sends the user back to where the sign-in started.
func Callback(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Google == nil || chi.URLParam(r, "provider") != domain.ProviderGoogle {
			writeError(w, http.StatusNotFound, "unknown provider")
			return
		}

		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			d.Logger.Info("sign-in declined at provider", logger.String("reason", e))
			http.Redirect(w, r, d.PublicURL, http.StatusFound)
			return
		}

		id, target, err := d.Google.Complete(r.Context(), q.Get("state"), q.Get("code"))
		if err != nil {
			if errors.Is(err, auth.ErrInvalidState) {
				writeError(w, http.StatusBadRequest, "sign-in expired, please retry")
				return
			}
			d.Logger.Warn("sign-in callback failed", logger.Error(err))
			writeError(w, http.StatusBadGateway, "sign-in failed")
			return
		}

		token, err := d.Sessions.Issue(r.Context(), id)
		if err != nil {
			d.Logger.Error("failed to issue session", logger.Error(err))
			writeError(w, http.StatusInternalServerError, "sign-in failed")
			return
		}
		mw.SetSessionCookie(w, token, d.Sessions.TTL(), d.CookieSecure)

		if !isAllowedRedirect(hostOf(target), d.AllowedDomains) {
			target = d.PublicURL
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// Logout revokes the session and clears the cookie. The cookie is cleared
// even when revocation fails.
func Logout(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := controller.New(d.Store.Connect(mw.TokenFrom(r.Context())), d.Logger, controller.Options{Timeout: d.RemoteTimeout})
		defer view.Close()

		if err := view.SignOut(r.Context()); err != nil {
			d.Logger.Warn("session revocation failed", logger.Error(err))
		}
		mw.ClearSessionCookie(w, d.CookieSecure)
		w.WriteHeader(http.StatusNoContent)
	}
}

// requestOrigin picks the origin a sign-in returns to: the Origin or Referer
// of the request when it is an allowed domain, the public URL otherwise.
func requestOrigin(r *http.Request, d deps.Deps) string {
	for _, raw := range []string{r.Header.Get("Origin"), r.Header.Get("Referer")} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if isAllowedRedirect(u.Hostname(), d.AllowedDomains) {
			return u.Scheme + "://" + u.Host
		}
	}
	return d.PublicURL
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// isAllowedRedirect checks if a hostname is allowed for redirection
func isAllowedRedirect(hostname string, allowedDomains []string) bool {
	if hostname == "" {
		return false
	}
	hostname = strings.ToLower(hostname)

	for _, allowed := range allowedDomains {
		allowed = strings.ToLower(allowed)

		// Exact match
		if hostname == allowed {
			return true
		}

		// Subdomain match (hostname ends with .domain)
		if strings.HasSuffix(hostname, "."+allowed) {
			return true
		}
	}

	return false
}
