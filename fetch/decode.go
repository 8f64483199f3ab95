package fetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"activityfeed/pkg/activity"
)

// Layouts accepted for record timestamps. Python's isoformat() omits the zone; those are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

type wireRecord struct {
	ID        json.RawMessage `json:"id"`
	Timestamp *string         `json:"timestamp"`
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Currency  string          `json:"currency"`
}

// decodePage validates the response shape and converts it to a feed page.
func decodePage(pageURL string, body []byte) (*activity.Page, error) {
	if !gjson.ValidBytes(body) {
		return nil, &InvalidResponseError{URL: pageURL, Reason: "body is not valid JSON"}
	}

	list := gjson.GetBytes(body, "activities")
	if !list.IsArray() {
		return nil, &InvalidResponseError{URL: pageURL, Reason: "missing activities array"}
	}

	hasNext := false
	if flag := gjson.GetBytes(body, "pagination.has_next"); flag.Exists() {
		switch flag.Type {
		case gjson.True:
			hasNext = true
		case gjson.False, gjson.Null:
		default:
			return nil, &InvalidResponseError{URL: pageURL, Reason: fmt.Sprintf("pagination.has_next is %s, want bool", flag.Type)}
		}
	}

	var wire []wireRecord
	if err := json.Unmarshal([]byte(list.Raw), &wire); err != nil {
		return nil, &InvalidResponseError{URL: pageURL, Reason: "decode activities", Err: err}
	}

	page := &activity.Page{
		Activities: make([]activity.Record, 0, len(wire)),
		HasNext:    hasNext,
	}
	for i, w := range wire {
		rec, err := w.record()
		if err != nil {
			return nil, &InvalidResponseError{URL: pageURL, Reason: fmt.Sprintf("activity %d", i), Err: err}
		}
		page.Activities = append(page.Activities, rec)
	}
	return page, nil
}

func (w wireRecord) record() (activity.Record, error) {
	rec := activity.Record{
		Type:     activity.Type(strings.ToLower(strings.TrimSpace(w.Type))),
		Title:    strings.TrimSpace(w.Title),
		Amount:   w.Amount.Abs(),
		Currency: strings.ToUpper(strings.TrimSpace(w.Currency)),
	}

	if w.Timestamp != nil && strings.TrimSpace(*w.Timestamp) != "" {
		ts, err := parseTimestamp(*w.Timestamp)
		if err != nil {
			return activity.Record{}, err
		}
		rec.Timestamp = ts
	}

	id, err := parseID(w.ID)
	if err != nil {
		return activity.Record{}, err
	}
	if id == "" {
		id = activity.DeriveID(rec)
	}
	rec.ID = id
	return rec, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// parseID accepts string or numeric ids; null or absent yields "".
func parseID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode id: %w", err)
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or number: %w", err)
	}
	return n.String(), nil
}
