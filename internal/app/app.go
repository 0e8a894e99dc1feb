package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/smartmark/internal/config"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver"
	"github.com/MrSnakeDoc/smartmark/internal/httpserver/deps"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
	"github.com/MrSnakeDoc/smartmark/internal/scheduler"
	"github.com/MrSnakeDoc/smartmark/internal/sources/homepage"
	"github.com/MrSnakeDoc/smartmark/internal/version"
)

type App struct {
	cfg      *config.Config
	logger   logger.Logger
	server   *httpserver.Server
	backends *Backends
	reloader *scheduler.ImportReloader
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.PrettyLog,
		File:   cfg.LogFile,
	})
}

// New connects every backing service and assembles the HTTP server.
// Backing services are required up front: an unreachable one is an error.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	b, err := OpenBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// Initialize bookmark import (if a bookmarks file is configured)
	var reloader *scheduler.ImportReloader
	var importTrigger chan struct{}
	if cfg.ImportEnabled() {
		log.Info("bookmark file configured, initializing import reloader",
			logger.String("file", cfg.ImportFile),
			logger.String("owner", cfg.ImportOwner))
		importTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewImportReloader(
			homepage.NewImporter(cfg.ImportFile, b.Store, log),
			cfg.ImportOwner,
			log,
			cfg.ImportInterval,
			importTrigger,
		)
	} else {
		log.Info("bookmark file not configured, background import disabled")
	}

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:           log,
		StartTime:        time.Now(),
		Version:          version.Version,
		Commit:           version.Commit,
		BuildDate:        version.BuildDate,
		GoVersion:        version.GoVersion,
		TimeNow:          time.Now,
		AllowedHosts:     cfg.AllowedHosts,
		AllowedCIDRS:     cfg.AllowedCIDRS,
		TrustProxy:       cfg.TrustProxy,
		PublicURL:        cfg.PublicURL,
		AllowedDomains:   cfg.AllowedDomains,
		Store:            b.Store,
		Sessions:         b.Sessions,
		Google:           b.Google,
		RemoteTimeout:    cfg.RemoteTimeout,
		CookieSecure:     cfg.CookieSecure,
		AuthRateBurst:    cfg.AuthRateBurst,
		AuthRatePerMin:   cfg.AuthRatePerMin,
		LiveWriteTimeout: cfg.LiveWriteTimeout,
		Checks:           b.Checks,
		ImportTrigger:    importTrigger,
	}

	return &App{
		cfg:      cfg,
		logger:   log,
		server:   httpserver.New(cfg, log, d),
		backends: b,
		reloader: reloader,
	}, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting smartmark %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("smartmark %s", version.String())
	a.logger.Info("backends",
		logger.String("table", a.cfg.TableBackend),
		logger.String("feed", a.cfg.FeedBackend))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.backends.Close(a.logger)

	// Start import reloader (if enabled)
	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start import reloader: %w", err)
		}
		a.logger.Info("import reloader started",
			logger.Duration("interval", a.cfg.ImportInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	if a.reloader != nil {
		a.reloader.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.logger.Info("✅ smartmark stopped cleanly")
	return nil
}
