package render

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"activityfeed/fetch"
	"activityfeed/pkg/activity"
)

var testNow = time.Date(2025, 10, 13, 12, 0, 0, 0, time.UTC)

func sampleActivities() []activity.Record {
	return []activity.Record{
		{ID: "1", Type: activity.TypeBonus, Title: "Daily Bonus", Amount: decimal.NewFromInt(1500), Currency: "UGX", Timestamp: testNow.Add(-5 * time.Minute)},
		{ID: "2", Type: activity.TypeDeposit, Title: "", Amount: decimal.RequireFromString("1234567.891"), Currency: "UGX", Timestamp: testNow.Add(-3 * time.Hour)},
		{ID: "3", Type: activity.TypeWithdraw, Title: "Withdrawal Request", Amount: decimal.RequireFromString("250.5"), Currency: "UGX", Timestamp: testNow.Add(-10 * 24 * time.Hour)},
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	in := Input{Activities: sampleActivities(), HasMore: true}
	snapshot := make([]activity.Record, len(in.Activities))
	copy(snapshot, in.Activities)

	first := Build(in, testNow)
	second := Build(in, testNow)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Build() not idempotent:\n%+v\n%+v", first, second)
	}
	if !reflect.DeepEqual(in.Activities, snapshot) {
		t.Error("Build() mutated its input")
	}
}

func TestBuildRows(t *testing.T) {
	d := Build(Input{Activities: sampleActivities(), HasMore: true}, testNow)

	if d.Empty != nil || d.Error != nil {
		t.Fatalf("unexpected branch: empty=%v error=%v", d.Empty, d.Error)
	}
	if !d.HasMore {
		t.Error("HasMore = false, want true")
	}

	want := []struct {
		title, amount, when string
		dir                 Direction
	}{
		{"Daily Bonus", "+UGX 1,500.00", "5m ago", Credit},
		{"Funds Deposit", "+UGX 1,234,567.89", "3h ago", Credit},
		{"Withdrawal Request", "-UGX 250.50", "Oct 3, 2025", Debit},
	}
	if len(d.Rows) != len(want) {
		t.Fatalf("len(Rows) = %d, want %d", len(d.Rows), len(want))
	}
	for i, w := range want {
		row := d.Rows[i]
		if row.Title != w.title || row.Amount != w.amount || row.When != w.when || row.Direction != w.dir {
			t.Errorf("row %d = %+v, want %+v", i, row, w)
		}
	}
}

func TestBuildEmptyAndErrorBranches(t *testing.T) {
	failure := &fetch.HTTPStatusError{URL: "http://x", StatusCode: 500}

	tests := []struct {
		name      string
		in        Input
		wantEmpty bool
		wantError bool
		wantRows  int
	}{
		{name: "empty", in: Input{}, wantEmpty: true},
		{name: "error with nothing loaded", in: Input{Err: failure}, wantError: true},
		{name: "error keeps rows", in: Input{Err: failure, Activities: sampleActivities(), HasMore: true}, wantError: true, wantRows: 3},
		{name: "rows", in: Input{Activities: sampleActivities()}, wantRows: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Build(tt.in, testNow)
			if (d.Empty != nil) != tt.wantEmpty {
				t.Errorf("Empty = %v, want %v", d.Empty != nil, tt.wantEmpty)
			}
			if (d.Error != nil) != tt.wantError {
				t.Errorf("Error = %v, want %v", d.Error != nil, tt.wantError)
			}
			if len(d.Rows) != tt.wantRows {
				t.Errorf("len(Rows) = %d, want %d", len(d.Rows), tt.wantRows)
			}
			if d.Error != nil && d.HasMore {
				t.Error("HasMore = true while showing an error row")
			}
		})
	}
}

func TestErrorRowMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transport", &fetch.TransportError{URL: "u", Err: errors.New("refused")}, "Network error"},
		{"status", &fetch.HTTPStatusError{URL: "u", StatusCode: 503}, "HTTP 503"},
		{"invalid", &fetch.InvalidResponseError{URL: "u", Reason: "x"}, "unexpected response"},
		{"other", errors.New("weird"), "Could not load"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Build(Input{Err: tt.err, RetryPage: 2}, testNow)
			if !strings.Contains(d.Error.Message, tt.want) {
				t.Errorf("Message = %q, want substring %q", d.Error.Message, tt.want)
			}
			if !d.Error.Retryable || d.Error.RetryPage != 2 {
				t.Errorf("retry affordance = %+v", d.Error)
			}
		})
	}
}

func TestRelativeTime(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "Unknown"},
		{"future clock skew", testNow.Add(time.Minute), "Just now"},
		{"seconds", testNow.Add(-30 * time.Second), "Just now"},
		{"minutes", testNow.Add(-5 * time.Minute), "5m ago"},
		{"hours", testNow.Add(-23 * time.Hour), "23h ago"},
		{"days", testNow.Add(-6 * 24 * time.Hour), "6d ago"},
		{"week", testNow.Add(-7 * 24 * time.Hour), "Oct 6, 2025"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RelativeTime(tt.t, testNow); got != tt.want {
				t.Errorf("RelativeTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name     string
		typ      activity.Type
		amount   string
		currency string
		want     string
	}{
		{"bonus", activity.TypeBonus, "5000", "UGX", "+UGX 5,000.00"},
		{"deposit rounds", activity.TypeDeposit, "999.999", "USD", "+USD 1,000.00"},
		{"withdraw", activity.TypeWithdraw, "1250.5", "UGX", "-UGX 1,250.50"},
		{"negative input uses type sign", activity.TypeWithdraw, "-10", "UGX", "-UGX 10.00"},
		{"unknown type unsigned", activity.Type("refund"), "3", "UGX", "UGX 3.00"},
		{"no currency", activity.TypeBonus, "0", "", "+0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatAmount(tt.typ, decimal.RequireFromString(tt.amount), tt.currency)
			if got != tt.want {
				t.Errorf("FormatAmount() = %q, want %q", got, tt.want)
			}
		})
	}
}

const shell = `<!DOCTYPE html><html><body>
<p id="feed-status"></p>
<ul id="activity-feed"><li>stale</li></ul>
<button id="load-more">Load more</button>
</body></html>`

func loadShell(t *testing.T) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(shell))
	if err != nil {
		t.Fatalf("parse shell: %v", err)
	}
	return doc
}

func TestPatchRows(t *testing.T) {
	doc := loadShell(t)
	acts := sampleActivities()
	acts[0].Title = `<script>alert("x")</script>`

	if err := Patch(doc, Build(Input{Activities: acts, HasMore: true}, testNow)); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	items := doc.Find("#activity-feed li.activity-item")
	if items.Length() != 3 {
		t.Fatalf("rendered %d items, want 3", items.Length())
	}
	if doc.Find("#activity-feed script").Length() != 0 {
		t.Error("title markup was not escaped")
	}
	if got := items.First().Find(".activity-title").Text(); got != acts[0].Title {
		t.Errorf("title text = %q", got)
	}
	if got, _ := items.Eq(2).Attr("class"); !strings.Contains(got, "activity-debit") {
		t.Errorf("withdraw row class = %q", got)
	}
	if _, hidden := doc.Find("#load-more").Attr("hidden"); hidden {
		t.Error("load-more hidden while more pages exist")
	}
	if got := doc.Find("#feed-status").Text(); got != "3 activities" {
		t.Errorf("status = %q", got)
	}
}

func TestPatchErrorKeepsRows(t *testing.T) {
	doc := loadShell(t)
	in := Input{Activities: sampleActivities(), HasMore: true, Err: &fetch.HTTPStatusError{URL: "u", StatusCode: 500}, RetryPage: 2}

	if err := Patch(doc, Build(in, testNow)); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	if doc.Find("#activity-feed li.activity-item").Length() != 3 {
		t.Error("rows dropped on error")
	}
	errRow := doc.Find("#activity-feed li.activity-error")
	if errRow.Length() != 1 {
		t.Fatal("no error row rendered")
	}
	if errRow.Find("button.activity-retry").Length() != 1 {
		t.Error("error row has no retry button")
	}
	if v, _ := errRow.Find(`input[name="page"]`).Attr("value"); v != "2" {
		t.Errorf("retry page = %q, want 2", v)
	}
	if _, hidden := doc.Find("#load-more").Attr("hidden"); !hidden {
		t.Error("load-more visible while showing an error")
	}
}

func TestPatchEmpty(t *testing.T) {
	doc := loadShell(t)
	if err := Patch(doc, Build(Input{}, testNow)); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if doc.Find("#activity-feed li.activity-empty").Length() != 1 {
		t.Error("empty state not rendered")
	}
	if doc.Find("#activity-feed li").Length() != 1 {
		t.Error("stale children were not removed")
	}
}

func TestPatchMissingList(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	if err != nil {
		t.Fatal(err)
	}
	if err := Patch(doc, Display{}); !errors.Is(err, ErrNoFeedElement) {
		t.Errorf("Patch() error = %v, want ErrNoFeedElement", err)
	}
}
