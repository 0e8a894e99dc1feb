// Package controller keeps one view's bookmark state in step with the remote
// store.
//
// The cache is a read-through snapshot: it only ever changes by replacing it
// wholesale with the result of a refresh. Local mutations and remote change
// events both end in a refresh; nothing is patched in place.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("controller closed")

// DefaultTimeout bounds each remote call when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Options configures a Controller.
type Options struct {
	// Live opens the change listener on activation. Short-lived views
	// (one REST request) leave it off.
	Live bool
	// Timeout bounds every remote call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Controller owns the state of one view: session, bookmark cache, create
// draft and the change subscription.
type Controller struct {
	client remote.Client
	logger logger.Logger
	opts   Options

	mu       sync.Mutex
	state    State
	session  *domain.Identity
	cache    []domain.Bookmark
	draft    Draft
	lastErr  error
	sub      remote.Subscription
	stopLife context.CancelFunc
	life     context.Context
	epoch    uint64 // bumped on every reset; results from an older epoch are dropped
	version  uint64
	started  uint64 // refreshes issued
	applied  uint64 // newest refresh whose result is in cache
	closed   bool
	watchers []func(Snapshot)

	notifyMu     sync.Mutex
	lastNotified uint64
}

// New creates a controller in the unauthenticated state.
func New(client remote.Client, log logger.Logger, opts Options) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Controller{
		client: client,
		logger: log,
		opts:   opts,
		state:  StateUnauthenticated,
	}
}

// Watch registers fn to receive every snapshot applied from now on.
// Snapshots are delivered in version order; an older one is never delivered
// after a newer one.
func (c *Controller) Watch(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Activate resolves the session. With an identity it moves to loading, opens
// the change listener (when Live) and performs the first refresh. Identity
// errors are not returned: they simply leave the view unauthenticated.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	epoch := c.epoch
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	id, err := c.client.CurrentIdentity(callCtx)
	cancel()
	if err != nil {
		c.logger.Debug("no session, staying unauthenticated", logger.Error(err))
		return nil
	}

	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		return nil
	}
	c.session = &id
	c.state = StateLoading
	snap, watchers := c.bumpLocked()
	c.mu.Unlock()
	c.notify(watchers, snap)

	c.logger.Debug("session resolved", logger.String("user_id", id.ID))

	if c.opts.Live {
		if err := c.listen(ctx, epoch); err != nil {
			c.recordError(epoch, err)
			c.logger.Warn("failed to open change listener", logger.Error(err))
		}
	}

	return c.Refresh(ctx)
}

// listen opens the change subscription for the current session.
func (c *Controller) listen(ctx context.Context, epoch uint64) error {
	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		return nil
	}
	if c.stopLife == nil {
		c.life, c.stopLife = context.WithCancel(context.Background())
	}
	life := c.life
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	sub, err := c.client.Subscribe(callCtx, domain.TableBookmarks, func(ev domain.ChangeEvent) {
		c.onChange(life, ev)
	})
	cancel()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		_ = sub.Unsubscribe()
		return nil
	}
	old := c.sub
	c.sub = sub
	c.mu.Unlock()

	if old != nil {
		_ = old.Unsubscribe()
	}
	c.logger.Debug("change listener opened", logger.String("subscription", sub.ID()))
	return nil
}

// onChange reacts to any row event with a full refresh. The payload is not inspected.
func (c *Controller) onChange(life context.Context, ev domain.ChangeEvent) {
	if life.Err() != nil {
		return
	}
	c.logger.Debug("change event received",
		logger.String("type", string(ev.Type)),
		logger.Int64("row_id", ev.RowID))

	if err := c.Refresh(life); err != nil && !errors.Is(err, ErrClosed) {
		c.logger.Warn("refresh after change event failed", logger.Error(err))
	}
}

// Refresh replaces the cache with the store's current rows. On failure the
// previous cache is kept and the error is recorded. Overlapping refreshes are
// allowed; a result is dropped when a later-issued refresh already landed.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.session == nil {
		c.mu.Unlock()
		return remote.ErrNoSession
	}
	epoch := c.epoch
	c.started++
	seq := c.started
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	rows, err := c.client.SelectAll(callCtx)
	cancel()

	c.mu.Lock()
	if c.closed || epoch != c.epoch || seq < c.applied {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.lastErr = err
		snap, watchers := c.bumpLocked()
		c.mu.Unlock()
		c.notify(watchers, snap)
		return err
	}
	c.cache = rows
	c.applied = seq
	c.lastErr = nil
	if c.state == StateLoading {
		c.state = StateReady
	}
	snap, watchers := c.bumpLocked()
	c.mu.Unlock()
	c.notify(watchers, snap)

	c.logger.Debug("cache refreshed", logger.Int("bookmarks", len(rows)))
	return nil
}

// Create inserts a bookmark owned by the session identity and refreshes.
// Without a session it does nothing. On failure the draft is kept for retry.
func (c *Controller) Create(ctx context.Context, d Draft) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.draft = d
	session := c.session
	epoch := c.epoch
	c.mu.Unlock()

	if session == nil {
		return remote.ErrNoSession
	}

	rec := domain.NewBookmark{Title: d.Title, URL: d.URL, Owner: session.ID}
	if err := rec.Validate(); err != nil {
		c.recordError(epoch, err)
		return err
	}

	callCtx, cancel := c.callContext(ctx)
	row, err := c.client.Insert(callCtx, rec)
	cancel()
	if err != nil {
		c.recordError(epoch, err)
		c.logger.Warn("create failed", logger.Error(err))
		return err
	}

	c.mu.Lock()
	if epoch == c.epoch && c.draft == d {
		c.draft = Draft{}
	}
	c.mu.Unlock()

	c.logger.Info("bookmark created",
		logger.Int64("id", row.ID),
		logger.String("user_id", session.ID))

	return c.Refresh(ctx)
}

// Delete removes a row and always refreshes explicitly afterwards, without
// waiting for the change listener. The cache is not touched optimistically.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	session := c.session
	epoch := c.epoch
	c.mu.Unlock()

	if session == nil {
		return remote.ErrNoSession
	}

	callCtx, cancel := c.callContext(ctx)
	err := c.client.DeleteByID(callCtx, id)
	cancel()
	if err != nil {
		c.recordError(epoch, err)
		c.logger.Warn("delete failed", logger.Int64("id", id), logger.Error(err))
		return err
	}

	c.logger.Info("bookmark deleted",
		logger.Int64("id", id),
		logger.String("user_id", session.ID))

	return c.Refresh(ctx)
}

// SignIn returns the provider URL to send the user to. The flow ends back at
// origin; nothing changes locally until a new view is activated.
func (c *Controller) SignIn(ctx context.Context, provider, origin string) (string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	return c.client.SignInURL(callCtx, provider, origin)
}

// SignOut invalidates the remote session and then resets the view. The reset
// happens even when invalidation fails; that error is returned.
func (c *Controller) SignOut(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	err := c.client.SignOut(callCtx)
	cancel()
	if err != nil {
		c.logger.Warn("remote sign-out failed", logger.Error(err))
	}

	c.Reset()
	return err
}

// Reset drops the session, cache and draft and releases the change listener.
// In-flight results started before the reset are discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	sub, stop := c.teardownLocked()
	snap, watchers := c.bumpLocked()
	c.mu.Unlock()

	c.release(sub, stop)
	c.notify(watchers, snap)
}

// Close tears the view down for good. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub, stop := c.teardownLocked()
	c.watchers = nil
	c.mu.Unlock()

	c.release(sub, stop)
}

func (c *Controller) teardownLocked() (remote.Subscription, context.CancelFunc) {
	c.epoch++
	sub, stop := c.sub, c.stopLife
	c.sub, c.stopLife, c.life = nil, nil, nil
	c.session = nil
	c.cache = nil
	c.draft = Draft{}
	c.lastErr = nil
	c.state = StateUnauthenticated
	return sub, stop
}

func (c *Controller) release(sub remote.Subscription, stop context.CancelFunc) {
	if stop != nil {
		stop()
	}
	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		c.logger.Warn("failed to release change listener", logger.Error(err))
		return
	}
	c.logger.Debug("change listener released", logger.String("subscription", sub.ID()))
}

func (c *Controller) recordError(epoch uint64, err error) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.lastErr = err
	snap, watchers := c.bumpLocked()
	c.mu.Unlock()
	c.notify(watchers, snap)
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.Timeout)
}

// bumpLocked advances the version and captures what must be sent to watchers.
func (c *Controller) bumpLocked() (Snapshot, []func(Snapshot)) {
	c.version++
	watchers := make([]func(Snapshot), len(c.watchers))
	copy(watchers, c.watchers)
	return c.snapshotLocked(), watchers
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:   c.version,
		State:     c.state,
		Bookmarks: make([]domain.Bookmark, len(c.cache)),
		Draft:     c.draft,
	}
	copy(snap.Bookmarks, c.cache)
	if c.session != nil {
		id := *c.session
		snap.Identity = &id
	}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	return snap
}

func (c *Controller) notify(watchers []func(Snapshot), snap Snapshot) {
	if len(watchers) == 0 {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Version <= c.lastNotified {
		return
	}
	c.lastNotified = snap.Version
	for _, fn := range watchers {
		fn(snap)
	}
}
