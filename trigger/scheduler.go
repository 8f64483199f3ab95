package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher is the part of the synchronizer the scheduler drives.
type Refresher interface {
	Refresh(ctx context.Context) error
	ShouldRefresh() bool
	IsLoading() bool
}

// Scheduler refreshes page 1 once the data is older than the refresh interval.
// It owns a single cron entry; overlapping ticks are skipped.
type Scheduler struct {
	refresher Refresher
	cron      *cron.Cron
	logger    *slog.Logger
	interval  time.Duration
	mu        sync.Mutex
	running   bool
	hidden    bool
}

// NewScheduler creates a scheduler that checks freshness every interval.
// cron schedules with one-second granularity, so interval is rounded down to whole seconds.
func NewScheduler(refresher Refresher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval < time.Second {
		interval = time.Second
	}
	return &Scheduler{
		refresher: refresher,
		interval:  interval,
		logger:    logger,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start registers the periodic check. Calling Start again while running does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Warn("Scheduled refresh failed", "error", err)
		}
	}))
	s.cron.Start()
	s.running = true
	s.logger.Info("Refresh scheduler started", "interval", s.interval.String())
}

// Stop removes the periodic check and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for _, e := range s.cron.Entries() {
		s.cron.Remove(e.ID)
	}
	stopped := s.cron.Stop()
	s.mu.Unlock()

	<-stopped.Done()
	s.logger.Info("Refresh scheduler stopped")
}

// Tick runs one freshness check. It reports whether a refresh was issued.
// Ticks while the page is hidden are skipped.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	s.mu.Lock()
	hidden := s.hidden
	s.mu.Unlock()

	if hidden {
		s.logger.Debug("Skipping refresh check, page hidden")
		return false, nil
	}
	return s.refreshIfStale(ctx)
}

// VisibilityChanged records page visibility. Becoming visible runs the freshness check at once.
func (s *Scheduler) VisibilityChanged(ctx context.Context, visible bool) (bool, error) {
	s.mu.Lock()
	s.hidden = !visible
	s.mu.Unlock()

	if !visible {
		return false, nil
	}
	s.logger.Debug("Page visible, checking freshness")
	return s.refreshIfStale(ctx)
}

func (s *Scheduler) refreshIfStale(ctx context.Context) (bool, error) {
	if !s.refresher.ShouldRefresh() || s.refresher.IsLoading() {
		return false, nil
	}

	s.logger.Info("Data stale, refreshing feed")
	err := s.refresher.Refresh(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return true, err
	}
	return true, nil
}
