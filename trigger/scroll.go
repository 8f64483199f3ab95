// Package trigger decides when the feed loads: near the bottom of the list
// and on a periodic freshness check.
package trigger

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// DefaultScrollThreshold is the distance from the bottom, in pixels, that counts as near the bottom.
const DefaultScrollThreshold = 100

// DefaultScrollThrottle is the minimum spacing between scroll-initiated loads.
const DefaultScrollThrottle = 250 * time.Millisecond

// Pager is the part of the synchronizer the scroll trigger drives.
type Pager interface {
	LoadMore(ctx context.Context) error
	IsLoading() bool
	HasMore() bool
}

// Position describes the scroll state of the feed container.
type Position struct {
	Offset   float64 // Scrolled distance from the top
	Viewport float64 // Visible height
	Content  float64 // Total content height
}

// NearBottom reports whether the viewport ends within threshold pixels of the content end.
func (p Position) NearBottom(threshold float64) bool {
	return p.Offset+p.Viewport >= p.Content-threshold
}

// ScrollOption configures a Scroll trigger.
type ScrollOption func(*Scroll)

// WithThreshold sets the near-bottom distance in pixels.
func WithThreshold(px float64) ScrollOption {
	return func(s *Scroll) {
		if px >= 0 {
			s.threshold = px
		}
	}
}

// WithThrottle sets the minimum spacing between scroll-initiated loads.
func WithThrottle(every time.Duration) ScrollOption {
	return func(s *Scroll) {
		s.limiter = rate.NewLimiter(rate.Every(every), 1)
	}
}

// WithScrollClock replaces the clock used by the throttle.
func WithScrollClock(now func() time.Time) ScrollOption {
	return func(s *Scroll) {
		s.now = now
	}
}

// Scroll requests the next page when the user scrolls near the bottom.
type Scroll struct {
	pager     Pager
	limiter   *rate.Limiter
	logger    *slog.Logger
	now       func() time.Time
	threshold float64
}

// NewScroll creates a scroll trigger for pager.
func NewScroll(pager Pager, logger *slog.Logger, opts ...ScrollOption) *Scroll {
	s := &Scroll{
		pager:     pager,
		logger:    logger,
		now:       time.Now,
		threshold: DefaultScrollThreshold,
		limiter:   rate.NewLimiter(rate.Every(DefaultScrollThrottle), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnScroll handles one scroll event. It reports whether a load was requested.
// Nothing is requested while a load is in flight or when the server has no more pages.
func (s *Scroll) OnScroll(ctx context.Context, pos Position) (bool, error) {
	if !pos.NearBottom(s.threshold) {
		return false, nil
	}
	if s.pager.IsLoading() || !s.pager.HasMore() {
		return false, nil
	}
	if !s.limiter.AllowN(s.now(), 1) {
		s.logger.Debug("Scroll load throttled")
		return false, nil
	}

	s.logger.Debug("Near bottom, loading next page",
		"offset", pos.Offset,
		"viewport", pos.Viewport,
		"content", pos.Content)
	if err := s.pager.LoadMore(ctx); err != nil {
		return true, err
	}
	return true, nil
}
