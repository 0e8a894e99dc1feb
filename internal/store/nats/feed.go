// Package nats carries change events over core NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"

	"github.com/MrSnakeDoc/smartmark/internal/connect"
	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

// SubjectPrefix is prepended to the table name to form the subject.
const SubjectPrefix = "smartmark.changes."

// Subject returns the subject carrying changes for table.
func Subject(table string) string {
	return SubjectPrefix + table
}

// Connect dials url, retrying per policy. Once connected the client
// reconnects on its own.
func Connect(ctx context.Context, url string, policy connect.Policy, log logger.Logger) (*nats.Conn, error) {
	var nc *nats.Conn
	dial := func(context.Context) error {
		c, err := nats.Connect(url,
			nats.Name("smartmark"),
			nats.Timeout(policy.PingTimeout),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					log.Warn("nats disconnected", logger.Error(err))
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				log.Info("nats reconnected", logger.String("url", c.ConnectedUrlRedacted()))
			}),
		)
		if err != nil {
			return err
		}
		nc = c
		return nil
	}
	if err := connect.Retry(ctx, "nats", url, policy, dial, log); err != nil {
		return nil, err
	}
	return nc, nil
}

// Feed publishes and receives change events on NATS. Delivery is at most
// once, which is enough since any event only triggers a refresh.
type Feed struct {
	nc     *nats.Conn
	logger logger.Logger
}

func NewFeed(nc *nats.Conn, log logger.Logger) *Feed {
	return &Feed{nc: nc, logger: log}
}

// Publish sends ev on its table's subject
func (f *Feed) Publish(_ context.Context, ev domain.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := f.nc.Publish(Subject(ev.Table), data); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

type subscription struct {
	id   string
	sub  *nats.Subscription
	once sync.Once
	err  error
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.sub.Unsubscribe()
	})
	return s.err
}

// Subscribe registers onEvent for every change on table. NATS calls the
// handler from one goroutine per subscription, so events arrive in order.
func (f *Feed) Subscribe(_ context.Context, table string, onEvent func(domain.ChangeEvent)) (remote.Subscription, error) {
	sub, err := f.nc.Subscribe(Subject(table), func(msg *nats.Msg) {
		var ev domain.ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			f.logger.Warn("dropping malformed change event",
				logger.String("subject", msg.Subject),
				logger.Error(err))
			return
		}
		onEvent(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
	}
	if err := f.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("failed to confirm subscription: %w", err)
	}
	return &subscription{id: ulid.Make().String(), sub: sub}, nil
}

// Ping reports whether the connection is currently usable.
func (f *Feed) Ping(context.Context) error {
	if !f.nc.IsConnected() {
		return fmt.Errorf("nats not connected (status %s)", f.nc.Status())
	}
	return nil
}
