// Package cache holds the most recent first page of the feed for a short time.
package cache

import (
	"sync"
	"time"

	"activityfeed/pkg/activity"
)

// DefaultTTL is how long a cached page stays fresh.
const DefaultTTL = 30 * time.Second

// Store is a single-slot cache for the latest page-1 snapshot.
// Only the first page is ever cached; deeper pages always go to the network.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	storedAt time.Time
	payload  activity.Page
	ttl      time.Duration
	filled   bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store with the given TTL.
func New(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsValid reports whether an entry exists and is younger than the TTL.
func (s *Store) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validLocked()
}

// Get returns the cached page while it is still fresh.
func (s *Store) Get() (activity.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.validLocked() {
		return activity.Page{}, false
	}
	return clonePage(s.payload), true
}

// Put overwrites the slot unconditionally.
func (s *Store) Put(page activity.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payload = clonePage(page)
	s.storedAt = s.now()
	s.filled = true
}

// Invalidate empties the slot.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payload = activity.Page{}
	s.storedAt = time.Time{}
	s.filled = false
}

// Age returns how long ago the entry was stored, or zero when empty.
func (s *Store) Age() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.filled {
		return 0
	}
	return s.now().Sub(s.storedAt)
}

func (s *Store) validLocked() bool {
	return s.filled && s.now().Sub(s.storedAt) < s.ttl
}

func clonePage(p activity.Page) activity.Page {
	out := activity.Page{HasNext: p.HasNext}
	if p.Activities != nil {
		out.Activities = make([]activity.Record, len(p.Activities))
		copy(out.Activities, p.Activities)
	}
	return out
}
