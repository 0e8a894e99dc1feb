// Package connect dials backing services at startup, retrying with
// exponential backoff until they answer or the overall deadline passes.
package connect

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/smartmark/internal/logger"
)

// Policy defines retry behavior for one backing service.
type Policy struct {
	ConnectTimeout time.Duration // Total time allowed for connection attempts (ex: 30s)
	RetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	MaxWait        time.Duration // max wait between retries (ex: 10s)
	PingTimeout    time.Duration // timeout for each ping attempt (ex: 2s)
	WarnThreshold  int           // warn after this many attempts, error afterwards
}

// DefaultPolicy is used by tooling that does not read the full config.
var DefaultPolicy = Policy{
	ConnectTimeout: 30 * time.Second,
	RetryInterval:  2 * time.Second,
	MaxWait:        10 * time.Second,
	PingTimeout:    5 * time.Second,
	WarnThreshold:  3,
}

// Validate ensures all values are usable.
func (p Policy) Validate() error {
	if p.ConnectTimeout <= 0 {
		return fmt.Errorf("ConnectTimeout must be > 0, got %v", p.ConnectTimeout)
	}
	if p.RetryInterval <= 0 {
		return fmt.Errorf("RetryInterval must be > 0, got %v", p.RetryInterval)
	}
	if p.MaxWait <= 0 {
		return fmt.Errorf("MaxWait must be > 0, got %v", p.MaxWait)
	}
	if p.PingTimeout <= 0 {
		return fmt.Errorf("PingTimeout must be > 0, got %v", p.PingTimeout)
	}
	if p.WarnThreshold < 0 {
		return fmt.Errorf("WarnThreshold must be >= 0, got %d", p.WarnThreshold)
	}
	return nil
}

// PingFunc checks a service once.
type PingFunc func(ctx context.Context) error

// attemptLogger handles all connection logging for one service.
type attemptLogger struct {
	logger  logger.Logger
	service string
	addr    string
}

func (al *attemptLogger) start(timeout time.Duration) {
	al.logger.Info("connecting to "+al.service,
		logger.String("addr", al.addr),
		logger.Duration("timeout", timeout))
}

func (al *attemptLogger) success(attempts int, elapsed time.Duration) {
	if attempts > 1 {
		al.logger.Warn("connected to "+al.service+" after retry",
			logger.String("addr", al.addr),
			logger.Int("attempts", attempts),
			logger.Duration("elapsed", elapsed))
		return
	}
	al.logger.Info("connected to "+al.service,
		logger.String("addr", al.addr))
}

func (al *attemptLogger) timeout(attempts int, timeout time.Duration, err error) {
	al.logger.Error(al.service+" unavailable - failed to connect after timeout",
		logger.String("addr", al.addr),
		logger.Int("attempts", attempts),
		logger.Duration("timeout", timeout),
		logger.Error(err))
}

func (al *attemptLogger) retry(attempt int, remaining, nextRetry time.Duration, warnThreshold int, err error) {
	switch {
	case remaining < 10*time.Second:
		al.logger.Error(al.service+" still down - retrying but timeout approaching",
			logger.String("addr", al.addr),
			logger.Int("attempt", attempt),
			logger.Duration("remaining", remaining),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	case attempt <= warnThreshold:
		al.logger.Warn(al.service+" connection failed, retrying",
			logger.String("addr", al.addr),
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	default:
		al.logger.Error(al.service+" still unavailable - connection attempts failing",
			logger.String("addr", al.addr),
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	}
}

// Retry calls ping until it succeeds or policy.ConnectTimeout elapses.
// service and addr only label log lines and the returned error.
func Retry(ctx context.Context, service, addr string, policy Policy, ping PingFunc, log logger.Logger) error {
	if err := policy.Validate(); err != nil {
		log.Error("invalid connect policy", logger.String("service", service), logger.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, policy.ConnectTimeout)
	defer cancel()

	al := &attemptLogger{logger: log, service: service, addr: addr}
	al.start(policy.ConnectTimeout)

	attempt := 0
	wait := policy.RetryInterval

	for {
		attempt++

		pingCtx, pingCancel := context.WithTimeout(ctx, policy.PingTimeout)
		err := ping(pingCtx)
		pingCancel()

		if err == nil {
			al.success(attempt, policy.ConnectTimeout-timeLeft(ctx))
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			al.timeout(attempt, policy.ConnectTimeout, err)
			return fmt.Errorf("%s unavailable at %s after %d attempts (timeout: %v): %w",
				service, addr, attempt, policy.ConnectTimeout, err)

		case <-timer.C:
			al.retry(attempt, timeLeft(ctx), wait, policy.WarnThreshold, err)
			// Exponential backoff with cap
			wait *= 2
			if wait > policy.MaxWait {
				wait = policy.MaxWait
			}
		}
	}
}

// timeLeft returns the remaining time before context deadline.
func timeLeft(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
