package app

import (
	"context"
	"fmt"
	"io"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/smartmark/internal/auth"
	"github.com/MrSnakeDoc/smartmark/internal/config"
	"github.com/MrSnakeDoc/smartmark/internal/connect"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
	"github.com/MrSnakeDoc/smartmark/internal/redis"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
	"github.com/MrSnakeDoc/smartmark/internal/store/memory"
	natsstore "github.com/MrSnakeDoc/smartmark/internal/store/nats"
	"github.com/MrSnakeDoc/smartmark/internal/store/postgres"
	redisstore "github.com/MrSnakeDoc/smartmark/internal/store/redis"
	"github.com/MrSnakeDoc/smartmark/internal/utils"
)

// tokenIssuer is the audience-free issuer claim of session tokens.
const tokenIssuer = "smartmark"

// Backends is the assembled remote store plus everything that must be closed
// on shutdown.
type Backends struct {
	Store    *remote.Store
	Sessions *auth.Sessions
	Google   *auth.Google
	Checks   []deps.Check

	closers []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

func (b *Backends) onClose(name string, c io.Closer) {
	b.closers = append(b.closers, namedCloser{name: name, c: c})
}

// Close releases connections in reverse order of opening.
func (b *Backends) Close(log logger.Logger) {
	if b == nil {
		return
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		utils.MustClose(b.closers[i].c, b.closers[i].name, log)
	}
	b.closers = nil
}

func retryPolicy(cfg *config.Config) connect.Policy {
	return connect.Policy{
		ConnectTimeout: cfg.ConnectTimeout,
		RetryInterval:  cfg.ConnectRetryInterval,
		MaxWait:        cfg.ConnectMaxWait,
		PingTimeout:    cfg.ConnectPingTimeout,
		WarnThreshold:  cfg.ConnectWarnThreshold,
	}
}

// OpenBackends connects every configured backing service, failing fast when
// one stays unreachable past the retry policy. On failure whatever was
// already opened is closed before the error is returned.
func OpenBackends(ctx context.Context, cfg *config.Config, log logger.Logger) (*Backends, error) {
	return openInto(ctx, &Backends{}, cfg, log)
}

func openInto(ctx context.Context, b *Backends, cfg *config.Config, log logger.Logger) (*Backends, error) {
	if err := b.open(ctx, cfg, log); err != nil {
		b.Close(log)
		return nil, err
	}
	return b, nil
}

func (b *Backends) open(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	policy := retryPolicy(cfg)

	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		log.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		var err error
		redisClient, err = redis.New(ctx, redis.ConnectOptions{
			Addr:         cfg.RedisAddr,
			User:         cfg.RedisUser,
			Password:     cfg.RedisPassword,
			RedisDB:      cfg.RedisDB,
			DialTimeout:  cfg.RedisDT,
			ReadTimeout:  cfg.RedisRT,
			WriteTimeout: cfg.RedisWT,
			PoolSize:     cfg.RedisPoolSize,
			Retry:        policy,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.onClose("redis", redisClient)
		log.Info("Redis initialized successfully")
	}

	var table remote.Table
	switch cfg.TableBackend {
	case config.BackendRedis:
		table = redisstore.NewStore(redisClient)
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.DefaultPool, policy, cfg.LogLevel, log)
		if err != nil {
			return fmt.Errorf("failed to open postgres: %w", err)
		}
		b.onClose("postgres", utils.CloserFunc(func() error { return postgres.Close(db) }))
		table = postgres.NewTable(db)
	default:
		log.Warn("bookmarks live in memory and are lost on restart")
		table = memory.NewTable()
	}
	b.Checks = append(b.Checks, deps.Check{Name: "table", Backend: cfg.TableBackend, Critical: true, Ping: table.Ping})

	var feed remote.Feed
	switch cfg.FeedBackend {
	case config.BackendRedis:
		feed = redisstore.NewFeed(redisClient, log)
		b.Checks = append(b.Checks, deps.Check{Name: "feed", Backend: cfg.FeedBackend, Ping: pingRedis(redisClient)})
	case config.BackendNATS:
		nc, err := natsstore.Connect(ctx, cfg.NATSURL, policy, log)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		b.onClose("nats", utils.CloserFunc(func() error { return nc.Drain() }))
		natsFeed := natsstore.NewFeed(nc, log)
		feed = natsFeed
		b.Checks = append(b.Checks, deps.Check{Name: "feed", Backend: cfg.FeedBackend, Ping: natsFeed.Ping})
	default:
		feed = memory.NewFeed()
		b.Checks = append(b.Checks, deps.Check{Name: "feed", Backend: config.BackendMemory})
	}

	var registry auth.Registry
	if redisClient != nil {
		registry = redisstore.NewSessionRegistry(redisClient)
		b.Checks = append(b.Checks, deps.Check{Name: "sessions", Backend: config.BackendRedis, Critical: true, Ping: pingRedis(redisClient)})
	} else {
		registry = memory.NewSessionRegistry(cfg.SessionTTL, 10*time.Minute)
		b.Checks = append(b.Checks, deps.Check{Name: "sessions", Backend: config.BackendMemory, Critical: true})
	}

	tokens, err := auth.NewTokens([]byte(cfg.SessionSecret), tokenIssuer)
	if err != nil {
		return err
	}
	b.Sessions = auth.NewSessions(tokens, registry, cfg.SessionTTL)

	backends := remote.Backends{Table: table, Feed: feed, Sessions: b.Sessions}
	if cfg.SignInEnabled() {
		gc := auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			CallbackURL:  cfg.CallbackURL("google"),
		}
		// pending sign-ins follow the sessions so any replica can finish them
		if redisClient != nil {
			gc.States = redisstore.NewOAuthStates(redisClient)
		}
		b.Google = auth.NewGoogle(gc, log)
		backends.SignIn = b.Google
	} else {
		log.Warn("Google credentials not configured, sign-in disabled")
	}

	b.Store, err = remote.NewStore(backends, log)
	return err
}

func pingRedis(client *goredis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error { return client.Ping(ctx).Err() }
}
