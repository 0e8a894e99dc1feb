package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/MrSnakeDoc/smartmark/internal/auth"
	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/mw"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
	"github.com/MrSnakeDoc/smartmark/internal/store/memory"
)

const publicURL = "https://marks.example.com"

var ada = domain.Identity{ID: "g-42", Email: "ada@example.com", Name: "Ada", Provider: domain.ProviderGoogle}

// wireSnapshot mirrors the snapshot JSON as a browser sees it.
type wireSnapshot struct {
	Version   uint64            `json:"version"`
	State     string            `json:"state"`
	Identity  *domain.Identity  `json:"identity"`
	Bookmarks []domain.Bookmark `json:"bookmarks"`
	LastError string            `json:"last_error"`
}

type testEnv struct {
	deps     deps.Deps
	store    *remote.Store
	sessions *auth.Sessions
	handler  http.Handler
}

func newFakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": ada.ID, "email": ada.Email, "name": ada.Name, "verified_email": true,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestEnv(t *testing.T, tweak ...func(*deps.Deps)) *testEnv {
	t.Helper()
	log := logger.NewNop()
	fake := newFakeGoogle(t)

	tokens, err := auth.NewTokens([]byte("0123456789abcdef0123456789abcdef"), "smartmark-test")
	require.NoError(t, err)
	sessions := auth.NewSessions(tokens, memory.NewSessionRegistry(time.Hour, time.Minute), time.Hour)
	google := auth.NewGoogle(auth.GoogleConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		CallbackURL:  publicURL + "/auth/google/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  fake.URL + "/auth",
			TokenURL: fake.URL + "/token",
		},
		UserInfoURL: fake.URL + "/userinfo",
	}, log)

	store, err := remote.NewStore(remote.Backends{
		Table:    memory.NewTable(),
		Feed:     memory.NewFeed(),
		Sessions: sessions,
		SignIn:   google,
	}, log)
	require.NoError(t, err)

	d := deps.Deps{
		Logger:           log,
		StartTime:        time.Now(),
		Version:          "test",
		PublicURL:        publicURL,
		AllowedDomains:   []string{"marks.example.com", "example.com", "127.0.0.1"},
		Store:            store,
		Sessions:         sessions,
		Google:           google,
		RemoteTimeout:    2 * time.Second,
		AuthRateBurst:    100,
		AuthRatePerMin:   100,
		LiveWriteTimeout: time.Second,
	}
	for _, fn := range tweak {
		fn(&d)
	}

	return &testEnv{deps: d, store: store, sessions: sessions, handler: NewRouter(log, d)}
}

func (e *testEnv) token(t *testing.T, id domain.Identity) string {
	t.Helper()
	token, err := e.sessions.Issue(context.Background(), id)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: mw.SessionCookie, Value: token})
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) wireSnapshot {
	t.Helper()
	var snap wireSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap), rec.Body.String())
	return snap
}

func titles(rows []domain.Bookmark) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Title)
	}
	return out
}

func TestBookmarksRequireSession(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/bookmarks", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/bookmarks", "", `{"title":"a","url":"b"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodDelete, "/api/bookmarks/1", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/bookmarks", "garbage", "").Code)
}

func TestBookmarksCreateListDelete(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, ada)

	rec := env.do(t, http.MethodGet, "/api/bookmarks", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeSnapshot(t, rec)
	assert.Equal(t, "authenticated_ready", snap.State)
	assert.Empty(t, snap.Bookmarks)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, ada.ID, snap.Identity.ID)

	rec = env.do(t, http.MethodPost, "/api/bookmarks", token, `{"title":"Example","url":"https://example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	snap = decodeSnapshot(t, rec)
	require.Len(t, snap.Bookmarks, 1)
	assert.Equal(t, ada.ID, snap.Bookmarks[0].Owner)

	rec = env.do(t, http.MethodPost, "/api/bookmarks", token, `{"title":"Second","url":"https://second.example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"Second", "Example"}, titles(decodeSnapshot(t, rec).Bookmarks))

	rec = env.do(t, http.MethodPost, "/api/bookmarks", token, `{"title":"  ","url":"https://x.example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/bookmarks", token, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rows, err := env.store.SelectOwner(context.Background(), ada.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rec = env.do(t, http.MethodDelete, "/api/bookmarks/"+jsonInt(rows[1].ID), token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Second"}, titles(decodeSnapshot(t, rec).Bookmarks))

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/bookmarks/9999", token, "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, "/api/bookmarks/abc", token, "").Code)
}

func TestBookmarksAcceptBearerToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, ada)

	req := httptest.NewRequest(http.MethodGet, "/api/bookmarks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOtherOwnersCannotDelete(t *testing.T) {
	env := newTestEnv(t)
	row, err := env.store.InsertTrusted(context.Background(), domain.NewBookmark{Title: "Mine", URL: "https://a.example.com", Owner: ada.ID})
	require.NoError(t, err)

	bob := env.token(t, domain.Identity{ID: "bob"})
	rec := env.do(t, http.MethodDelete, "/api/bookmarks/"+jsonInt(row.ID), bob, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/bookmarks", bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeSnapshot(t, rec).Bookmarks)
}

func TestSignInFlowAndLogout(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	req.Header.Set("Referer", "https://marks.example.com/some/page")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	loginURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loginURL.Query().Get("state")
	require.NotEmpty(t, state)

	rec = env.do(t, http.MethodGet, "/auth/google/callback?state="+url.QueryEscape(state)+"&code=good-code", "", "")
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "https://marks.example.com", rec.Header().Get("Location"))

	var token string
	for _, c := range rec.Result().Cookies() {
		if c.Name == mw.SessionCookie {
			token = c.Value
			assert.True(t, c.HttpOnly)
		}
	}
	require.NotEmpty(t, token)

	rec = env.do(t, http.MethodGet, "/api/bookmarks", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ada.ID, decodeSnapshot(t, rec).Identity.ID)

	rec = env.do(t, http.MethodPost, "/auth/logout", token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == mw.SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "session cookie should be cleared")

	// The old token is revoked server side.
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/bookmarks", token, "").Code)
}

func TestLoginFallsBackToPublicURL(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	req.Header.Set("Referer", "https://evil.test/")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	loginURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	rec = env.do(t, http.MethodGet, "/auth/google/callback?state="+url.QueryEscape(loginURL.Query().Get("state"))+"&code=good-code", "", "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, publicURL, rec.Header().Get("Location"))
}

func TestSignInErrors(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/auth/github/login", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/auth/google/callback?state=unknown&code=good-code", "", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/auth/github/callback?state=x&code=y", "", "").Code)

	disabled := newTestEnv(t, func(d *deps.Deps) { d.Google = nil })
	assert.Equal(t, http.StatusNotFound, disabled.do(t, http.MethodGet, "/auth/google/callback?state=x&code=y", "", "").Code)
}

func TestAuthRateLimit(t *testing.T) {
	env := newTestEnv(t, func(d *deps.Deps) {
		d.AuthRateBurst = 2
		d.AuthRatePerMin = 1
	})

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/auth/logout", "", "").Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/auth/logout", "", "").Code)
	rec := env.do(t, http.MethodPost, "/auth/logout", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Bookmarks are not behind the sign-in limiter.
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/bookmarks", "", "").Code)
}

func TestPage(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "No bookmarks yet")
	assert.Contains(t, rec.Body.String(), "/api/live")
}

func TestProbes(t *testing.T) {
	env := newTestEnv(t, func(d *deps.Deps) {
		d.Checks = []deps.Check{
			{Name: "table", Backend: "memory", Critical: true, Ping: func(context.Context) error { return nil }},
			{Name: "feed", Backend: "nats", Ping: func(context.Context) error { return errors.New("connection closed") }},
		}
	})

	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = env.do(t, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":true}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/infra", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var infra struct {
		Mode       string `json:"mode"`
		Components map[string]struct {
			OK     bool   `json:"ok"`
			Impact string `json:"impact"`
		} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infra))
	assert.Equal(t, "degraded", infra.Mode)
	assert.True(t, infra.Components["table"].OK)
	assert.False(t, infra.Components["feed"].OK)
	assert.Equal(t, "live-updates-disabled", infra.Components["feed"].Impact)
}

func TestProbesRestrictedByCIDR(t *testing.T) {
	env := newTestEnv(t, func(d *deps.Deps) {
		d.AllowedCIDRS = []string{"10.0.0.0/8"}
		d.TrustProxy = false
	})
	// httptest requests come from 192.0.2.1
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/readyz", "", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/", "", "").Code)
}

func TestReload(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/reload", "", "").Code)

	trigger := make(chan struct{}, 1)
	env = newTestEnv(t, func(d *deps.Deps) { d.ImportTrigger = trigger })
	assert.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/reload", "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodPost, "/reload", "", "").Code)
	<-trigger
}

func dialLive(t *testing.T, srv *httptest.Server, token, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", mw.SessionCookie+"="+token)
	}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/live", header)
}

func readUntil(t *testing.T, ws *websocket.Conn, cond func(wireSnapshot) bool) wireSnapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var msg struct {
			Type  string        `json:"type"`
			Data  *wireSnapshot `json:"data"`
			Error string        `json:"error"`
		}
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type == "snapshot" && cond(*msg.Data) {
			return *msg.Data
		}
	}
}

func TestLiveView(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	token := env.token(t, ada)
	ws, _, err := dialLive(t, srv, token, "")
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	readUntil(t, ws, func(s wireSnapshot) bool { return s.State == "authenticated_ready" })

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"op": "create", "title": "Example", "url": "https://example.com"}))
	snap := readUntil(t, ws, func(s wireSnapshot) bool { return len(s.Bookmarks) == 1 })
	assert.Equal(t, "Example", snap.Bookmarks[0].Title)

	// A write made elsewhere shows up without any command from this view.
	_, err = env.store.InsertTrusted(context.Background(), domain.NewBookmark{Title: "Elsewhere", URL: "https://elsewhere.example.com", Owner: ada.ID})
	require.NoError(t, err)
	snap = readUntil(t, ws, func(s wireSnapshot) bool { return len(s.Bookmarks) == 2 })
	assert.Equal(t, []string{"Elsewhere", "Example"}, titles(snap.Bookmarks))

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"op": "signout"}))
	snap = readUntil(t, ws, func(s wireSnapshot) bool { return s.State == "unauthenticated" })
	assert.Empty(t, snap.Bookmarks)
	assert.Nil(t, snap.Identity)
}

func TestLiveViewWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ws, _, err := dialLive(t, srv, "", "")
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	snap := readUntil(t, ws, func(wireSnapshot) bool { return true })
	assert.Equal(t, "unauthenticated", snap.State)
}

func TestLiveViewRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	_, resp, err := dialLive(t, srv, "", "https://evil.test")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func jsonInt(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
