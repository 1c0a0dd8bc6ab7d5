package client

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
)

// Fetcher loads the authoritative notification list.
type Fetcher interface {
	Notifications(ctx context.Context) ([]Notification, error)
}

// FeedOptions holds optional Feed callbacks.
type FeedOptions struct {
	// OnChange receives a copy of the list after every replacement.
	OnChange func([]Notification)
	// OnSessionExpired is called once state has been cleared because the
	// session could not be refreshed.
	OnSessionExpired func()
	// FetchTimeout bounds background re-fetches. Zero means 15s.
	FetchTimeout time.Duration
}

// Feed is the reconciled notification list. Push events are shown at once
// and then replaced by a re-fetched list from the store of record.
type Feed struct {
	fetcher Fetcher
	opts    FeedOptions
	base    context.Context
	logger  *slog.Logger

	mu    sync.Mutex
	items []Notification
	user  *Session
	// epoch advances on Clear; fetches started in an older epoch are
	// discarded when they resolve.
	epoch uint64

	inflight sync.WaitGroup
}

// NewFeed creates an empty feed. ctx bounds background re-fetches.
func NewFeed(ctx context.Context, fetcher Fetcher, opts FeedOptions, logger *slog.Logger) *Feed {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	return &Feed{
		fetcher: fetcher,
		opts:    opts,
		base:    ctx,
		logger:  logger,
		items:   []Notification{},
	}
}

// Items returns a copy of the current list, newest first.
func (f *Feed) Items() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items)
}

// User returns the identity last set or pushed through userUpdated.
func (f *Feed) User() *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

// SetUser records the logged-in identity.
func (f *Feed) SetUser(s *Session) {
	f.mu.Lock()
	f.user = s
	f.mu.Unlock()
}

// HandleEvent surfaces a push event immediately and starts an authoritative
// re-fetch. Re-fetches are never cancelled; whichever resolves last wins.
func (f *Feed) HandleEvent(ev Event) {
	now := time.Now().UTC()
	f.mu.Lock()
	if ev.Name == EventUserUpdated && ev.User != nil {
		f.user = ev.User
	}
	f.items = append([]Notification{{
		Message:   ev.Message,
		Status:    "unread",
		CourseID:  ev.CourseID,
		Event:     ev.Name,
		CreatedAt: now,
		UpdatedAt: now,
		Pending:   true,
	}}, f.items...)
	snapshot := slices.Clone(f.items)
	f.mu.Unlock()

	f.notify(snapshot)
	f.refetch()
}

// HandleReconnect re-fetches the list; pushes missed while disconnected are
// never redelivered.
func (f *Feed) HandleReconnect() {
	f.refetch()
}

// Refresh fetches the list and replaces local state with it. A 404 means
// there is nothing yet and yields an empty list. ErrReauthRequired clears all
// local state. Any other error keeps the last list.
func (f *Feed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	epoch := f.epoch
	f.mu.Unlock()
	return f.fetch(ctx, epoch)
}

// Clear empties local state without contacting the server. Fetches already
// in flight are discarded when they resolve.
func (f *Feed) Clear() {
	f.mu.Lock()
	f.clearLocked()
	f.mu.Unlock()
	f.notify([]Notification{})
}

// Wait blocks until every background re-fetch has resolved.
func (f *Feed) Wait() {
	f.inflight.Wait()
}

func (f *Feed) refetch() {
	f.mu.Lock()
	epoch := f.epoch
	f.mu.Unlock()

	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		ctx, cancel := context.WithTimeout(f.base, f.opts.FetchTimeout)
		defer cancel()
		if err := f.fetch(ctx, epoch); err != nil && !errors.Is(err, ErrReauthRequired) {
			f.logger.Warn("notification re-fetch failed, keeping last list", slog.String("error", err.Error()))
		}
	}()
}

func (f *Feed) fetch(ctx context.Context, epoch uint64) error {
	list, err := f.fetcher.Notifications(ctx)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNotFound):
		list = []Notification{}
	case errors.Is(err, ErrReauthRequired):
		f.mu.Lock()
		stale := f.epoch != epoch
		if !stale {
			f.clearLocked()
		}
		f.mu.Unlock()
		if !stale {
			f.notify([]Notification{})
			if f.opts.OnSessionExpired != nil {
				f.opts.OnSessionExpired()
			}
		}
		return err
	default:
		return err
	}

	f.mu.Lock()
	if f.epoch != epoch {
		f.mu.Unlock()
		return nil
	}
	f.items = list
	snapshot := slices.Clone(list)
	f.mu.Unlock()

	f.notify(snapshot)
	return nil
}

func (f *Feed) clearLocked() {
	f.items = []Notification{}
	f.user = nil
	f.epoch++
}

func (f *Feed) notify(snapshot []Notification) {
	if f.opts.OnChange != nil {
		f.opts.OnChange(snapshot)
	}
}
