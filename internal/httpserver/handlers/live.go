package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MrSnakeDoc/smartmark/internal/controller"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/mw"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
)

const (
	liveReadLimit  = 16 << 10
	livePongWait   = 60 * time.Second
	livePingPeriod = 45 * time.Second
)

// liveMessage is pushed to the browser.
type liveMessage struct {
	Type  string               `json:"type"` // "snapshot" | "error"
	Data  *controller.Snapshot `json:"data,omitempty"`
	Op    string               `json:"op,omitempty"`
	Error string               `json:"error,omitempty"`
}

// latestSnapshot holds the newest snapshot not yet written. Only the newest
// one matters; an unsent older one is replaced.
type latestSnapshot struct {
	mu    sync.Mutex
	snap  controller.Snapshot
	has   bool
	ready chan struct{}
}

func newLatestSnapshot() *latestSnapshot {
	return &latestSnapshot{ready: make(chan struct{}, 1)}
}

func (l *latestSnapshot) offer(snap controller.Snapshot) {
	l.mu.Lock()
	if !l.has || snap.Version >= l.snap.Version {
		l.snap, l.has = snap, true
	}
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *latestSnapshot) take() controller.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}

// liveCommand is sent by the browser.
type liveCommand struct {
	Op    string `json:"op"` // "create" | "delete" | "refresh" | "signout"
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
	ID    int64  `json:"id,omitempty"`
}

// Live upgrades to a websocket and hosts one live view for the connection.
// Every applied snapshot is pushed; commands from the browser run against the
// same view. The view is closed when the connection ends.
func Live(d deps.Deps) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), d.AllowedDomains)
		},
	}
	writeTimeout := d.LiveWriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			d.Logger.Debug("websocket upgrade failed", logger.Error(err))
			return
		}
		defer func() { _ = ws.Close() }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		pending := newLatestSnapshot()
		failures := make(chan liveMessage, 8)

		view, activateErr := openLiveView(ctx, d, r, pending.offer)
		defer view.Close()

		if activateErr != nil {
			d.Logger.Debug("live view started without a first refresh", logger.Error(activateErr))
		}
		// An unauthenticated view never notifies, so send its state explicitly.
		pending.offer(view.Snapshot())

		go func() {
			// Unblock the reader when the writer gives up.
			defer func() {
				cancel()
				_ = ws.Close()
			}()
			writeLoop(ctx, ws, pending, failures, writeTimeout, d.Logger)
		}()

		readLoop(ctx, ws, view, failures, d.Logger)
	}
}

func openLiveView(ctx context.Context, d deps.Deps, r *http.Request, push func(controller.Snapshot)) (*controller.Controller, error) {
	view := controller.New(d.Store.Connect(mw.TokenFrom(r.Context())), d.Logger, controller.Options{
		Live:    true,
		Timeout: d.RemoteTimeout,
	})
	view.Watch(push)
	return view, view.Activate(ctx)
}

func writeLoop(ctx context.Context, ws *websocket.Conn, pending *latestSnapshot, failures <-chan liveMessage, writeTimeout time.Duration, log logger.Logger) {
	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()

	var lastSent uint64
	sent := false
	for {
		var msg liveMessage
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return
		case <-pending.ready:
			snap := pending.take()
			if sent && snap.Version <= lastSent {
				continue
			}
			lastSent, sent = snap.Version, true
			msg = liveMessage{Type: "snapshot", Data: &snap}
		case msg = <-failures:
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Debug("live ping failed", logger.Error(err))
				return
			}
			continue
		}

		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteJSON(msg); err != nil {
			// a websocket write deadline cannot be recovered
			log.Debug("live write failed", logger.Error(err))
			return
		}
	}
}

func readLoop(ctx context.Context, ws *websocket.Conn, view *controller.Controller, failures chan<- liveMessage, log logger.Logger) {
	ws.SetReadLimit(liveReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(livePongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		var cmd liveCommand
		if err := ws.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("live connection closed", logger.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(livePongWait))

		if err := runCommand(ctx, view, cmd); err != nil {
			if errors.Is(err, controller.ErrClosed) {
				return
			}
			select {
			case failures <- liveMessage{Type: "error", Op: cmd.Op, Error: err.Error()}:
			default:
			}
		}
	}
}

func runCommand(ctx context.Context, view *controller.Controller, cmd liveCommand) error {
	switch cmd.Op {
	case "create":
		return view.Create(ctx, controller.Draft{Title: cmd.Title, URL: cmd.URL})
	case "delete":
		return view.Delete(ctx, cmd.ID)
	case "refresh":
		return view.Refresh(ctx)
	case "signout":
		return view.SignOut(ctx)
	default:
		return errors.New("unknown op: " + cmd.Op)
	}
}

// originAllowed accepts requests without an Origin (non-browser clients) and
// browser requests from an allowed domain.
func originAllowed(origin string, allowedDomains []string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return isAllowedRedirect(u.Hostname(), allowedDomains)
}
