package summary

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"activityfeed/feed"
	"activityfeed/pkg/activity"
)

var now = time.Date(2025, 10, 13, 12, 0, 0, 0, time.UTC)

func rec(typ activity.Type, amount, currency string, age time.Duration) activity.Record {
	r := activity.Record{Type: typ, Amount: decimal.RequireFromString(amount), Currency: currency}
	if age >= 0 {
		r.Timestamp = now.Add(-age)
	}
	return r
}

func TestCompute(t *testing.T) {
	records := []activity.Record{
		rec(activity.TypeDeposit, "10000", "UGX", time.Hour),
		rec(activity.TypeBonus, "500.50", "UGX", 2*24*time.Hour),
		rec(activity.TypeWithdraw, "2500", "UGX", 6*24*time.Hour),
		rec(activity.TypeDeposit, "20", "USD", time.Minute),
		rec(activity.TypeDeposit, "99999", "UGX", 8*24*time.Hour), // outside the window
		rec(activity.TypeBonus, "1", "UGX", -1),                   // no timestamp
		rec(activity.Type("refund"), "7", "USD", time.Minute),
	}

	s := Compute(records, now)

	if s.Loaded != 7 || s.Count != 5 {
		t.Errorf("Loaded = %d, Count = %d, want 7, 5", s.Loaded, s.Count)
	}
	if len(s.Totals) != 2 {
		t.Fatalf("len(Totals) = %d, want 2", len(s.Totals))
	}

	want := []struct {
		currency, credits, debits, net string
	}{
		{"UGX", "10500.5", "2500", "8000.5"},
		{"USD", "20", "0", "20"},
	}
	for i, w := range want {
		got := s.Totals[i]
		if got.Currency != w.currency ||
			!got.Credits.Equal(decimal.RequireFromString(w.credits)) ||
			!got.Debits.Equal(decimal.RequireFromString(w.debits)) ||
			!got.Net.Equal(decimal.RequireFromString(w.net)) {
			t.Errorf("Totals[%d] = %+v, want %+v", i, got, w)
		}
	}
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(nil, now)
	if s.Count != 0 || s.Loaded != 0 || len(s.Totals) != 0 {
		t.Errorf("Compute(nil) = %+v", s)
	}
	if !s.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v", s.UpdatedAt)
	}
}

type fakeSource struct {
	subs []func(feed.Update)
}

func (f *fakeSource) Subscribe(fn func(feed.Update)) func() {
	f.subs = append(f.subs, fn)
	idx := len(f.subs) - 1
	return func() { f.subs[idx] = nil }
}

func (f *fakeSource) emit(u feed.Update) {
	for _, fn := range f.subs {
		if fn != nil {
			fn(u)
		}
	}
}

func TestPanelFollowsUpdates(t *testing.T) {
	src := &fakeSource{}
	p := New(src, slog.New(slog.DiscardHandler))

	if s := p.Snapshot(); s.Count != 0 || !s.UpdatedAt.IsZero() {
		t.Errorf("initial snapshot = %+v", s)
	}

	acts := []activity.Record{rec(activity.TypeDeposit, "100", "UGX", time.Hour)}
	src.emit(feed.Update{Timestamp: now, Activities: acts, Count: 1})

	s := p.Snapshot()
	if s.Count != 1 || !s.Totals[0].Net.Equal(decimal.NewFromInt(100)) {
		t.Errorf("snapshot after update = %+v", s)
	}

	s.Totals[0].Currency = "XXX"
	if p.Snapshot().Totals[0].Currency != "UGX" {
		t.Error("Snapshot() exposed internal state")
	}

	p.Close()
	src.emit(feed.Update{Timestamp: now})
	if p.Snapshot().Count != 1 {
		t.Error("panel changed after Close")
	}
}
