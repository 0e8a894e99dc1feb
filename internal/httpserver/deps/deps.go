package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/smartmark/internal/auth"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

// Check is one backing component reported by /infra.
type Check struct {
	Name     string                          // ex: "table", "feed", "sessions"
	Backend  string                          // ex: "redis", "postgres"
	Critical bool                            // true => the app cannot serve views without it
	Ping     func(ctx context.Context) error // nil => always ok
}

type Deps struct {
	Logger           logger.Logger
	StartTime        time.Time
	Version          string
	Commit           string
	BuildDate        string
	GoVersion        string
	TimeNow          func() time.Time // for testing, defaults to time.Now
	AllowedHosts     []string         // Host headers allowed to access the server
	AllowedCIDRS     []string         // IPs allowed to access healthz/readyz endpoints
	TrustProxy       bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)
	PublicURL        string           // external origin, used when a request carries none
	AllowedDomains   []string         // Allowed domain suffixes for sign-in redirects
	Store            *remote.Store    // the bookmarks table, change feed and sessions
	Sessions         *auth.Sessions   // issues session tokens after sign-in
	Google           *auth.Google     // nil if sign-in is disabled
	RemoteTimeout    time.Duration    // bound on every remote call made by a view
	CookieSecure     bool             // mark the session cookie Secure
	AuthRateBurst    int              // /auth/* burst per client IP
	AuthRatePerMin   int              // /auth/* refill per client IP
	LiveWriteTimeout time.Duration    // websocket write deadline
	Checks           []Check          // components reported by /infra
	ImportTrigger    chan struct{}    // Channel to trigger a manual bookmarks import (nil if import disabled)
}
