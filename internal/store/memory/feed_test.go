package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFeedDeliversToTableSubscribers(t *testing.T) {
	feed := NewFeed()
	ctx := context.Background()

	var got atomic.Int32
	sub, err := feed.Subscribe(ctx, domain.TableBookmarks, func(domain.ChangeEvent) { got.Add(1) })
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	if sub.ID() == "" {
		t.Error("subscription should have an ID")
	}

	_ = feed.Publish(ctx, domain.ChangeEvent{Type: domain.ChangeInsert, Table: domain.TableBookmarks, RowID: 1})
	_ = feed.Publish(ctx, domain.ChangeEvent{Type: domain.ChangeInsert, Table: "other", RowID: 2})

	waitFor(t, func() bool { return got.Load() == 1 })

	// Give a misrouted event a chance to show up.
	time.Sleep(20 * time.Millisecond)
	if got.Load() != 1 {
		t.Errorf("events delivered = %d, want 1", got.Load())
	}
}

func TestFeedUnsubscribeStopsDelivery(t *testing.T) {
	feed := NewFeed()
	ctx := context.Background()

	var got atomic.Int32
	sub, _ := feed.Subscribe(ctx, domain.TableBookmarks, func(domain.ChangeEvent) { got.Add(1) })

	if feed.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", feed.SubscriberCount())
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe() error: %v", err)
	}
	// Second call is a no-op.
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("second Unsubscribe() error: %v", err)
	}

	if feed.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d after unsubscribe, want 0", feed.SubscriberCount())
	}

	_ = feed.Publish(ctx, domain.ChangeEvent{Type: domain.ChangeDelete, Table: domain.TableBookmarks})
	time.Sleep(20 * time.Millisecond)
	if got.Load() != 0 {
		t.Errorf("events delivered after unsubscribe = %d, want 0", got.Load())
	}
}

func TestSessionRegistry(t *testing.T) {
	reg := NewSessionRegistry(time.Hour, time.Minute)
	ctx := context.Background()

	if _, err := reg.Get(ctx, "missing"); err == nil {
		t.Error("Get() on missing session should fail")
	}

	id := domain.Identity{ID: "u1", Email: "u1@example.com"}
	_ = reg.Put(ctx, "s1", id, time.Hour)

	got, err := reg.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != id {
		t.Errorf("Get() = %+v, want %+v", got, id)
	}

	_ = reg.Delete(ctx, "s1")
	if _, err := reg.Get(ctx, "s1"); err == nil {
		t.Error("Get() after Delete() should fail")
	}
}
