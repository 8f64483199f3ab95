// Package feed keeps the in-memory activity feed in sync with the backend.
//
// A Synchronizer runs at most one load at a time. A load is served from the
// page-1 cache when allowed, otherwise fetched, merged into the loaded list,
// presented and broadcast to subscribers as an Update. Failed loads keep the
// loaded list and present an error row instead.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"activityfeed/metrics"
	"activityfeed/paginate"
	"activityfeed/pkg/activity"
	"activityfeed/render"
)

// DefaultRefreshInterval is how old data may get before a refresh is due.
const DefaultRefreshInterval = 60 * time.Second

// EventActivitiesUpdated names the broadcast sent after every successful load.
const EventActivitiesUpdated = "activitiesUpdated"

var (
	// ErrLoadInProgress is returned when Load is called while another load is in flight.
	// The call has no effect.
	ErrLoadInProgress = errors.New("feed: load already in progress")
	// ErrNoMorePages is returned by LoadMore when the server reported no further pages.
	ErrNoMorePages = errors.New("feed: no more pages")
	// ErrStale is returned when a response arrived after the load was superseded.
	ErrStale = errors.New("feed: response superseded by a newer request")
	// ErrClosed is returned once the synchronizer has been closed.
	ErrClosed = errors.New("feed: synchronizer closed")
)

// Fetcher retrieves one page of the feed.
type Fetcher interface {
	FetchPage(ctx context.Context, page int) (*activity.Page, error)
}

// Cache holds the latest page-1 snapshot.
type Cache interface {
	Get() (activity.Page, bool)
	Put(page activity.Page)
}

// Presenter receives the rendered feed after every state change.
type Presenter interface {
	Present(d render.Display)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(render.Display)

// Present calls f(d).
func (f PresenterFunc) Present(d render.Display) { f(d) }

// State is a snapshot of the feed.
type State struct {
	LastUpdate  time.Time // Zero until the first successful load
	Err         error     // Error of the last failed load, nil after a success
	Activities  []activity.Record
	CurrentPage int
	HasMore     bool
	IsLoading   bool
}

// Update is the payload of the activitiesUpdated broadcast.
type Update struct {
	Timestamp  time.Time
	Activities []activity.Record
	Count      int
}

// Config tunes a Synchronizer.
type Config struct {
	Now             func() time.Time
	RefreshInterval time.Duration
}

type subscriber struct {
	fn func(Update)
	id int
}

// Synchronizer owns the feed state.
type Synchronizer struct {
	lastUpdate      time.Time
	err             error
	fetcher         Fetcher
	cache           Cache
	presenter       Presenter
	logger          *slog.Logger
	now             func() time.Time
	cancel          context.CancelFunc
	pages           *paginate.Controller
	subs            []subscriber
	generation      uint64
	refreshInterval time.Duration
	retryPage       int
	nextSubID       int
	mu              sync.Mutex
	loading         bool
	closed          bool
}

// New creates a synchronizer. presenter may be nil.
func New(cfg Config, fetcher Fetcher, cache Cache, presenter Presenter, logger *slog.Logger) *Synchronizer {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Synchronizer{
		fetcher:         fetcher,
		cache:           cache,
		presenter:       presenter,
		logger:          logger,
		now:             cfg.Now,
		refreshInterval: cfg.RefreshInterval,
		pages:           paginate.NewController(),
	}
}

// Load loads the given page. Page 1 with useCache may be served from the cache.
// A call made while another load is in flight returns ErrLoadInProgress and changes nothing.
func (s *Synchronizer) Load(ctx context.Context, page int, useCache bool) error {
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.loading {
		s.mu.Unlock()
		metrics.RecordLoad("none", "busy")
		s.logger.Debug("Load ignored, another load is in flight", "page", page)
		return ErrLoadInProgress
	}
	s.loading = true
	s.generation++
	gen := s.generation
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	display := s.displayLocked()
	s.mu.Unlock()
	defer cancel()

	s.present(display)

	if page == 1 && useCache && s.cache != nil {
		cached, ok := s.cache.Get()
		metrics.RecordCacheLookup(ok)
		if ok {
			s.logger.Debug("Serving page 1 from cache", "activities", len(cached.Activities))
			return s.complete(gen, page, &cached, "cache")
		}
	}

	s.logger.Info("Loading feed page", "page", page, "use_cache", useCache, "generation", gen)
	fetched, err := s.fetcher.FetchPage(loadCtx, page)
	if err != nil {
		return s.fail(gen, page, err)
	}
	return s.complete(gen, page, fetched, "network")
}

// Start performs the initial load, allowing a cached first page.
func (s *Synchronizer) Start(ctx context.Context) error {
	return s.Load(ctx, 1, true)
}

// Refresh reloads page 1 from the network, replacing the loaded list.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.Load(ctx, 1, false)
}

// LoadMore loads the page after the current one. Before anything has loaded it loads page 1.
func (s *Synchronizer) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	neverLoaded := s.lastUpdate.IsZero()
	hasMore := s.pages.HasMore()
	next := s.pages.Next()
	s.mu.Unlock()

	if neverLoaded {
		return s.Load(ctx, 1, true)
	}
	if !hasMore {
		return ErrNoMorePages
	}
	return s.Load(ctx, next, false)
}

// Retry re-issues the last failed request, bypassing the cache.
func (s *Synchronizer) Retry(ctx context.Context) error {
	s.mu.Lock()
	page := s.retryPage
	s.mu.Unlock()

	if page < 1 {
		page = 1
	}
	s.logger.Info("Retrying failed load", "page", page)
	return s.Load(ctx, page, false)
}

// DismissError clears the error row without reloading.
func (s *Synchronizer) DismissError() {
	s.mu.Lock()
	if s.err == nil {
		s.mu.Unlock()
		return
	}
	s.err = nil
	s.retryPage = 0
	display := s.displayLocked()
	s.mu.Unlock()

	s.present(display)
}

// ShouldRefresh reports whether the data is missing or older than the refresh interval.
func (s *Synchronizer) ShouldRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastUpdate.IsZero() {
		return true
	}
	return s.now().Sub(s.lastUpdate) >= s.refreshInterval
}

// IsLoading reports whether a load is in flight.
func (s *Synchronizer) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// HasMore reports whether the server has further pages.
func (s *Synchronizer) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages.HasMore()
}

// State returns a snapshot of the feed state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Activities:  s.pages.Activities(),
		CurrentPage: s.pages.Page(),
		HasMore:     s.pages.HasMore(),
		LastUpdate:  s.lastUpdate,
		IsLoading:   s.loading,
		Err:         s.err,
	}
}

// Display renders the current state.
func (s *Synchronizer) Display() render.Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayLocked()
}

// Subscribe registers fn for activitiesUpdated broadcasts and returns a function that removes it.
// Subscribers run synchronously, in subscription order, after the state is updated.
func (s *Synchronizer) Subscribe(fn func(Update)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Reset drops the loaded list and supersedes any in-flight load.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.loading = false
	s.pages.Reset()
	s.lastUpdate = time.Time{}
	s.err = nil
	s.retryPage = 0
	display := s.displayLocked()
	s.mu.Unlock()

	s.present(display)
}

// Close cancels any in-flight load and rejects further loads.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.loading = false
	s.logger.Info("Feed synchronizer closed")
}

func (s *Synchronizer) complete(gen uint64, page int, p *activity.Page, source string) error {
	s.mu.Lock()
	if err := s.staleLocked(gen); err != nil {
		s.mu.Unlock()
		metrics.RecordLoad(source, "stale")
		s.logger.Info("Discarding superseded response", "page", page, "generation", gen)
		return err
	}

	s.loading = false
	s.cancel = nil
	result := s.pages.Apply(*p, page)
	s.lastUpdate = s.now()
	s.err = nil
	s.retryPage = 0
	if page == 1 && source == "network" && s.cache != nil {
		s.cache.Put(*p)
	}

	update := Update{
		Count:      s.pages.Len(),
		Timestamp:  s.lastUpdate,
		Activities: s.pages.Activities(),
	}
	display := s.displayLocked()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	hasMore := s.pages.HasMore()
	s.mu.Unlock()

	metrics.RecordLoad(source, "success")
	metrics.SetActivities(update.Count)
	s.logger.Info("Feed page loaded",
		"page", page,
		"source", source,
		"added", result.Added,
		"duplicates_dropped", result.Duplicates,
		"replaced", result.Replaced,
		"total", update.Count,
		"has_more", hasMore)

	s.present(display)

	s.logger.Debug("Broadcasting update", "event", EventActivitiesUpdated, "subscribers", len(subs), "count", update.Count)
	for _, sub := range subs {
		sub.fn(update)
	}
	return nil
}

func (s *Synchronizer) fail(gen uint64, page int, loadErr error) error {
	s.mu.Lock()
	if err := s.staleLocked(gen); err != nil {
		s.mu.Unlock()
		metrics.RecordLoad("network", "stale")
		s.logger.Info("Discarding superseded failure", "page", page, "generation", gen, "error", loadErr)
		return err
	}

	s.loading = false
	s.cancel = nil
	s.err = loadErr
	s.retryPage = page
	display := s.displayLocked()
	kept := s.pages.Len()
	s.mu.Unlock()

	metrics.RecordLoad("network", "failure")
	s.logger.Error("Feed load failed", "page", page, "activities_kept", kept, "error", loadErr)

	s.present(display)
	return fmt.Errorf("load page %d: %w", page, loadErr)
}

func (s *Synchronizer) staleLocked(gen uint64) error {
	if s.closed {
		return ErrClosed
	}
	if gen != s.generation {
		return ErrStale
	}
	return nil
}

func (s *Synchronizer) displayLocked() render.Display {
	return render.Build(render.Input{
		Activities: s.pages.Activities(),
		HasMore:    s.pages.HasMore(),
		Loading:    s.loading,
		Err:        s.err,
		RetryPage:  s.retryPage,
	}, s.now())
}

func (s *Synchronizer) present(d render.Display) {
	if s.presenter != nil {
		s.presenter.Present(d)
	}
}
