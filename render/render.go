// Package render turns the loaded activity list into display rows.
//
// Build is a pure function: it reads its input and the supplied clock value and
// never mutates either, so rendering the same state twice yields the same rows.
// Empty and error states are separate branches of Display rather than special rows.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"activityfeed/fetch"
	"activityfeed/pkg/activity"
)

// Direction tells whether a row adds or removes funds.
type Direction string

// Row directions.
const (
	Credit  Direction = "credit"
	Debit   Direction = "debit"
	Neutral Direction = "neutral"
)

// Input is the part of the feed state the renderer reads.
type Input struct {
	Err        error
	Activities []activity.Record
	RetryPage  int
	HasMore    bool
	Loading    bool
}

// Row is one display line of the feed.
type Row struct {
	Timestamp time.Time
	ID        string
	Type      activity.Type
	Title     string
	Amount    string // Signed and currency-labelled, e.g. "+UGX 1,500.00"
	When      string // Relative label, e.g. "5m ago"
	Direction Direction
}

// EmptyState is shown when nothing is loaded and nothing failed.
type EmptyState struct {
	Message string
}

// ErrorRow is a dismissable error line offering a manual retry.
type ErrorRow struct {
	Message   string
	Detail    string
	RetryPage int
	Retryable bool
}

// Display is the full render output.
type Display struct {
	Empty   *EmptyState
	Error   *ErrorRow
	Rows    []Row
	HasMore bool
	Loading bool
}

// Build renders the input at the given instant.
func Build(in Input, now time.Time) Display {
	d := Display{
		HasMore: in.HasMore && in.Err == nil && len(in.Activities) > 0,
		Loading: in.Loading,
	}

	if in.Err != nil {
		d.Error = buildErrorRow(in.Err, in.RetryPage)
	}

	if len(in.Activities) == 0 {
		if d.Error == nil {
			d.Empty = &EmptyState{Message: "No recent activity yet."}
		}
		return d
	}

	d.Rows = make([]Row, len(in.Activities))
	for i, rec := range in.Activities {
		d.Rows[i] = BuildRow(rec, now)
	}
	return d
}

// BuildRow renders a single record.
func BuildRow(rec activity.Record, now time.Time) Row {
	return Row{
		ID:        rec.ID,
		Type:      rec.Type,
		Title:     Title(rec),
		Amount:    FormatAmount(rec.Type, rec.Amount, rec.Currency),
		When:      RelativeTime(rec.Timestamp, now),
		Timestamp: rec.Timestamp,
		Direction: directionOf(rec.Type),
	}
}

// Title returns the record title, falling back to a label for its type.
func Title(rec activity.Record) string {
	if t := strings.TrimSpace(rec.Title); t != "" {
		return t
	}
	switch rec.Type {
	case activity.TypeBonus:
		return "Bonus Credit"
	case activity.TypeDeposit:
		return "Funds Deposit"
	case activity.TypeWithdraw:
		return "Withdrawal"
	default:
		return "Transaction"
	}
}

// FormatAmount renders a signed amount: credits get "+", withdrawals get "-",
// unknown types are unsigned.
func FormatAmount(t activity.Type, amount decimal.Decimal, currency string) string {
	rounded := amount.Abs().Round(2)
	fixed := rounded.StringFixed(2)
	frac := fixed[strings.IndexByte(fixed, '.'):]
	value := humanize.Comma(rounded.IntPart()) + frac

	if currency = strings.TrimSpace(currency); currency != "" {
		value = currency + " " + value
	}

	switch directionOf(t) {
	case Credit:
		return "+" + value
	case Debit:
		return "-" + value
	default:
		return value
	}
}

// RelativeTime labels t relative to now, falling back to a calendar date after a week.
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	age := now.Sub(t)
	if age < 0 {
		age = 0
	}
	switch {
	case age < time.Minute:
		return "Just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	case age < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	default:
		return t.In(now.Location()).Format("Jan 2, 2006")
	}
}

func directionOf(t activity.Type) Direction {
	switch {
	case t.Credit():
		return Credit
	case t.Debit():
		return Debit
	default:
		return Neutral
	}
}

func buildErrorRow(err error, retryPage int) *ErrorRow {
	if retryPage < 1 {
		retryPage = 1
	}
	row := &ErrorRow{
		Detail:    err.Error(),
		RetryPage: retryPage,
		Retryable: true,
	}
	switch {
	case fetch.IsTransportError(err):
		row.Message = "Network error. Check your connection and try again."
	case fetch.IsHTTPStatusError(err):
		row.Message = fmt.Sprintf("The server could not load recent activity (HTTP %d).", fetch.StatusCode(err))
	case fetch.IsInvalidResponse(err):
		row.Message = "Received an unexpected response while loading recent activity."
	default:
		row.Message = "Could not load recent activity."
	}
	return row
}
