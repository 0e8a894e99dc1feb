package memory

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

// subscriberBuffer bounds pending events per subscriber. A full buffer means
// a refresh is already queued, so dropping the newest event loses nothing.
const subscriberBuffer = 64

// Feed is an in-process change feed. Each subscriber gets its own goroutine
// so events for one subscriber are delivered in publish order.
type Feed struct {
	mu   sync.RWMutex
	subs map[string]*subscription
}

// NewFeed creates an empty feed
func NewFeed() *Feed {
	return &Feed{subs: make(map[string]*subscription)}
}

type subscription struct {
	id      string
	table   string
	feed    *Feed
	events  chan domain.ChangeEvent
	done    chan struct{}
	once    sync.Once
	onEvent func(domain.ChangeEvent)
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		s.feed.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (s *subscription) run() {
	for {
		select {
		case ev := <-s.events:
			// Unsubscribe may race with a queued event.
			select {
			case <-s.done:
				return
			default:
			}
			s.onEvent(ev)
		case <-s.done:
			return
		}
	}
}

// Subscribe registers onEvent for every change on table
func (f *Feed) Subscribe(_ context.Context, table string, onEvent func(domain.ChangeEvent)) (remote.Subscription, error) {
	sub := &subscription{
		id:      ulid.Make().String(),
		table:   table,
		feed:    f,
		events:  make(chan domain.ChangeEvent, subscriberBuffer),
		done:    make(chan struct{}),
		onEvent: onEvent,
	}

	f.mu.Lock()
	f.subs[sub.id] = sub
	f.mu.Unlock()

	go sub.run()
	return sub, nil
}

// Publish fans ev out to every subscriber of its table without blocking
func (f *Feed) Publish(_ context.Context, ev domain.ChangeEvent) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		if sub.table != ev.Table {
			continue
		}
		select {
		case sub.events <- ev:
		default:
		}
	}
	return nil
}

// SubscriberCount returns the number of live subscriptions
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.subs)
}
