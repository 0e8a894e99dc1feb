package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by SMARTMARK_TABLE_BACKEND and SMARTMARK_FEED_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendNATS     = "nats"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)
	LogFile   string // optional, rotated JSON copy of the logs

	PublicURL      string   // external origin of the app (ex: https://marks.domain.ext)
	AllowedDomains []string // domains a sign-in may redirect back to (derived from AllowedHosts + PublicURL)

	TableBackend string // "redis" | "postgres" | "memory"
	FeedBackend  string // "redis" | "nats" | "memory"

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisPoolSize         int           // Redis connection pool size

	// Startup retry, shared by every backing service
	ConnectMaxWait       time.Duration // max wait between retries (ex: 10s)
	ConnectPingTimeout   time.Duration // timeout for each ping attempt (ex: 5s)
	ConnectTimeout       time.Duration // Total time to retry connecting (ex: 30s)
	ConnectRetryInterval time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	ConnectWarnThreshold int           // warn after this many attempts

	PostgresDSN string // required when TableBackend=postgres
	NATSURL     string // required when FeedBackend=nats

	// Sign-in and sessions
	GoogleClientID     string        // empty => sign-in disabled
	GoogleClientSecret string        //
	SessionSecret      string        // HMAC key for session tokens, >= 32 bytes
	SessionTTL         time.Duration // lifetime of a session (ex: 720h)
	CookieSecure       bool          // mark the session cookie Secure (default: PublicURL is https)

	RemoteTimeout    time.Duration // bound on every remote call made by a view
	AuthRateBurst    int           // /auth/* requests allowed in a burst per client IP
	AuthRatePerMin   int           // /auth/* refill rate per client IP
	LiveWriteTimeout time.Duration // websocket write deadline

	// Optional Homepage bookmarks.yaml import
	ImportFile     string        // empty => no background import
	ImportOwner    string        // user id the imported bookmarks belong to
	ImportInterval time.Duration // re-read the file every interval (ex: 5m)

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict probe access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

func Load() *Config {
	publicURL := strings.TrimRight(requireEnv("SMARTMARK_PUBLIC_URL"), "/")
	allowedHosts := splitAndTrim(getenv("SMARTMARK_ALLOWED_HOSTS", ""))

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SMARTMARK_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("SMARTMARK_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("SMARTMARK_LOG_LEVEL", "info"),
		PrettyLog: mustBool("SMARTMARK_PRETTY_LOG", true),
		LogFile:   getenv("SMARTMARK_LOG_FILE", ""),

		PublicURL:      publicURL,
		AllowedDomains: extractDomains(append(allowedHosts, hostOf(publicURL))),

		// Backends
		TableBackend: strings.ToLower(getenv("SMARTMARK_TABLE_BACKEND", BackendRedis)),
		FeedBackend:  strings.ToLower(getenv("SMARTMARK_FEED_BACKEND", BackendRedis)),

		// Redis settings
		RedisUser:             getenv("SMARTMARK_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("SMARTMARK_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("SMARTMARK_REDIS_PASSWORD", ""),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),

		ConnectMaxWait:       mustDuration("SMARTMARK_CONNECT_MAX_WAIT", 10*time.Second),
		ConnectPingTimeout:   mustDuration("SMARTMARK_CONNECT_PING_TIMEOUT", 5*time.Second),
		ConnectTimeout:       mustDuration("SMARTMARK_CONNECT_TIMEOUT", 30*time.Second),
		ConnectRetryInterval: mustDuration("SMARTMARK_CONNECT_RETRY_INTERVAL", 2*time.Second),
		ConnectWarnThreshold: getenvInt("SMARTMARK_CONNECT_WARN_THRESHOLD", 3),

		// Sign-in
		GoogleClientID:     getenv("SMARTMARK_GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getenv("SMARTMARK_GOOGLE_CLIENT_SECRET", ""),
		SessionSecret:      requireEnv("SMARTMARK_SESSION_SECRET"),
		SessionTTL:         mustDuration("SMARTMARK_SESSION_TTL", 30*24*time.Hour),
		CookieSecure:       mustBool("SMARTMARK_COOKIE_SECURE", strings.HasPrefix(publicURL, "https://")),

		RemoteTimeout:    mustDuration("SMARTMARK_REMOTE_TIMEOUT", 10*time.Second),
		AuthRateBurst:    getenvInt("SMARTMARK_AUTH_RATE_BURST", 10),
		AuthRatePerMin:   getenvInt("SMARTMARK_AUTH_RATE_PER_MIN", 30),
		LiveWriteTimeout: mustDuration("SMARTMARK_LIVE_WRITE_TIMEOUT", 10*time.Second),

		// Import
		ImportFile:     getenv("SMARTMARK_IMPORT_FILE", ""),
		ImportInterval: mustDuration("SMARTMARK_IMPORT_INTERVAL", 5*time.Minute),

		// Access restrictions
		AllowedHosts: allowedHosts,
		AllowedCIDRS: parseAllowedIPs(getenv("SMARTMARK_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("SMARTMARK_TRUST_PROXY", true),
	}

	switch cfg.TableBackend {
	case BackendRedis, BackendMemory:
	case BackendPostgres:
		cfg.PostgresDSN = requireEnv("SMARTMARK_POSTGRES_DSN")
	default:
		panic(fmt.Sprintf("❌ FATAL: SMARTMARK_TABLE_BACKEND must be redis, postgres or memory, got %q", cfg.TableBackend))
	}

	switch cfg.FeedBackend {
	case BackendRedis, BackendMemory:
	case BackendNATS:
		cfg.NATSURL = requireEnv("SMARTMARK_NATS_URL")
	default:
		panic(fmt.Sprintf("❌ FATAL: SMARTMARK_FEED_BACKEND must be redis, nats or memory, got %q", cfg.FeedBackend))
	}

	if cfg.UsesRedis() {
		cfg.RedisAddr = requireEnv("SMARTMARK_REDIS_ADDR")
		cfg.RedisDB = requireEnvInt("SMARTMARK_REDIS_DB")

		// Validate Redis password configuration
		if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
			panic("❌ FATAL: SMARTMARK_REDIS_PASSWORD is required when SMARTMARK_REDIS_PASSWORD_REQUIRED=true")
		}
	}

	if cfg.ImportFile != "" {
		cfg.ImportOwner = requireEnv("SMARTMARK_IMPORT_OWNER")
	}

	if len(cfg.SessionSecret) < 32 {
		panic("❌ FATAL: SMARTMARK_SESSION_SECRET must be at least 32 bytes")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		cfgCopy.SessionSecret = "***REDACTED***"
		cfgCopy.GoogleClientSecret = "***REDACTED***"
		if cfg.PostgresDSN != "" {
			cfgCopy.PostgresDSN = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// UsesRedis reports whether any backend needs the Redis connection.
// Sessions live in Redis whenever Redis is configured for anything else.
func (c *Config) UsesRedis() bool {
	return c.TableBackend == BackendRedis || c.FeedBackend == BackendRedis
}

// SignInEnabled reports whether Google credentials are configured.
func (c *Config) SignInEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// ImportEnabled reports whether a bookmarks file should be imported in the background.
func (c *Config) ImportEnabled() bool {
	return c.ImportFile != ""
}

// CallbackURL is the OAuth redirect URI registered with the provider.
func (c *Config) CallbackURL(provider string) string {
	return c.PublicURL + "/auth/" + provider + "/callback"
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func requireEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid integer value for %s: %s", key, v))
	}
	return i
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// hostOf returns the host[:port] of a URL, or "" if it does not parse.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// extractDomains extracts domain suffixes from allowed hosts for redirect validation.
// Examples: "marks.domain.ext" -> ["marks.domain.ext", "domain.ext"]
//
//	"10.70.80.2:8080" -> ["10.70.80.2"] (port dropped, IPs have no suffix)
func extractDomains(hosts []string) []string {
	if len(hosts) == 0 {
		return nil
	}

	domains := make([]string, 0, len(hosts)*2)
	seen := make(map[string]bool)

	for _, host := range hosts {
		if host == "" {
			continue
		}
		// Remove port if present
		hostWithoutPort := host
		if idx := strings.LastIndex(host, ":"); idx != -1 {
			// Check if it's actually a port (not IPv6)
			if !strings.Contains(host[:idx], "]:") {
				hostWithoutPort = host[:idx]
			}
		}

		// Add the full host
		if !seen[hostWithoutPort] {
			domains = append(domains, hostWithoutPort)
			seen[hostWithoutPort] = true
		}

		if net.ParseIP(hostWithoutPort) != nil {
			continue
		}

		// Extract domain suffix (everything after first dot)
		parts := strings.Split(hostWithoutPort, ".")
		if len(parts) >= 3 {
			domainSuffix := strings.Join(parts[1:], ".")
			if !seen[domainSuffix] {
				domains = append(domains, domainSuffix)
				seen[domainSuffix] = true
			}
		}
	}

	return domains
}
