package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

// Feed carries change events over Redis pub/sub, one channel per table.
// Delivery is at most once: a subscriber that is disconnected misses events,
// which is fine since any later event triggers a full refresh anyway.
type Feed struct {
	client *redis.Client
	logger logger.Logger
}

func NewFeed(client *redis.Client, log logger.Logger) *Feed {
	return &Feed{client: client, logger: log}
}

// Publish sends ev on its table's channel
func (f *Feed) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := f.client.Publish(ctx, ChangesChannel(ev.Table), data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

type subscription struct {
	id     string
	pubsub *redis.PubSub
	once   sync.Once
	err    error
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.pubsub.Close()
	})
	return s.err
}

// Subscribe registers onEvent for every change on table. It returns once
// Redis has confirmed the subscription.
func (f *Feed) Subscribe(ctx context.Context, table string, onEvent func(domain.ChangeEvent)) (remote.Subscription, error) {
	ps := f.client.Subscribe(ctx, ChangesChannel(table))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
	}

	sub := &subscription{id: ulid.Make().String(), pubsub: ps}
	go f.deliver(sub, onEvent)
	return sub, nil
}

// deliver runs until the pubsub is closed.
func (f *Feed) deliver(sub *subscription, onEvent func(domain.ChangeEvent)) {
	for msg := range sub.pubsub.Channel() {
		var ev domain.ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			f.logger.Warn("dropping malformed change event",
				logger.String("channel", msg.Channel),
				logger.Error(err))
			continue
		}
		onEvent(ev)
	}
	f.logger.Debug("change subscription closed", logger.String("subscription", sub.id))
}
