// Package summary keeps the "this week" totals shown beside the feed.
package summary

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"activityfeed/feed"
	"activityfeed/pkg/activity"
)

// Window is the period the panel totals cover, ending at the update timestamp.
const Window = 7 * 24 * time.Hour

// Totals are the sums for one currency.
type Totals struct {
	Currency string          `json:"currency"`
	Credits  decimal.Decimal `json:"credits"`
	Debits   decimal.Decimal `json:"debits"`
	Net      decimal.Decimal `json:"net"`
}

// Snapshot is the panel content after the latest update.
type Snapshot struct {
	UpdatedAt time.Time `json:"updated_at"`
	Totals    []Totals  `json:"totals"` // Sorted by currency
	Count     int       `json:"count"`  // Records inside the window
	Loaded    int       `json:"loaded"` // All loaded records
}

// Subscriber is the part of the synchronizer the panel listens to.
type Subscriber interface {
	Subscribe(fn func(feed.Update)) (unsubscribe func())
}

// Panel recomputes its snapshot on every feed update.
type Panel struct {
	logger      *slog.Logger
	unsubscribe func()
	snapshot    Snapshot
	mu          sync.RWMutex
}

// New creates a panel and subscribes it to src.
func New(src Subscriber, logger *slog.Logger) *Panel {
	p := &Panel{logger: logger}
	p.unsubscribe = src.Subscribe(p.handle)
	return p
}

// Snapshot returns the latest totals.
func (p *Panel) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := p.snapshot
	s.Totals = append([]Totals(nil), p.snapshot.Totals...)
	return s
}

// Close stops listening for updates.
func (p *Panel) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}

func (p *Panel) handle(u feed.Update) {
	s := Compute(u.Activities, u.Timestamp)

	p.mu.Lock()
	p.snapshot = s
	p.mu.Unlock()

	p.logger.Debug("Summary updated", "in_window", s.Count, "loaded", s.Loaded, "currencies", len(s.Totals))
}

// Compute totals the records whose timestamp falls within Window before now.
// Records without a timestamp are counted as loaded but not totalled.
func Compute(records []activity.Record, now time.Time) Snapshot {
	s := Snapshot{UpdatedAt: now, Loaded: len(records)}
	since := now.Add(-Window)

	byCurrency := make(map[string]*Totals)
	for _, rec := range records {
		if rec.Timestamp.IsZero() || rec.Timestamp.Before(since) || rec.Timestamp.After(now) {
			continue
		}
		s.Count++

		t, ok := byCurrency[rec.Currency]
		if !ok {
			t = &Totals{Currency: rec.Currency}
			byCurrency[rec.Currency] = t
		}
		switch {
		case rec.Type.Credit():
			t.Credits = t.Credits.Add(rec.Amount)
		case rec.Type.Debit():
			t.Debits = t.Debits.Add(rec.Amount)
		}
		t.Net = t.Credits.Sub(t.Debits)
	}

	for _, t := range byCurrency {
		s.Totals = append(s.Totals, *t)
	}
	sort.Slice(s.Totals, func(i, j int) bool { return s.Totals[i].Currency < s.Totals[j].Currency })
	return s
}
