package render

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// FeedSelector locates the list element that Patch rewrites.
const FeedSelector = "#activity-feed"

// ErrNoFeedElement is returned when the document lacks the feed list.
var ErrNoFeedElement = errors.New("document has no " + FeedSelector + " element")

// Patch rewrites the feed list of doc to show d. Only the list children, the
// load-more control and the status line are touched.
func Patch(doc *goquery.Document, d Display) error {
	list := doc.Find(FeedSelector).First()
	if list.Length() == 0 {
		return ErrNoFeedElement
	}

	var b strings.Builder
	if d.Error != nil {
		writeErrorRow(&b, d.Error)
	}
	if d.Empty != nil {
		fmt.Fprintf(&b, `<li class="activity-empty">%s</li>`, html.EscapeString(d.Empty.Message))
	}
	for _, row := range d.Rows {
		writeRow(&b, row)
	}
	list.Empty()
	list.AppendHtml(b.String())

	more := doc.Find("#load-more")
	if d.HasMore && !d.Loading {
		more.RemoveAttr("hidden")
	} else {
		more.SetAttr("hidden", "hidden")
	}

	status := doc.Find("#feed-status")
	switch {
	case d.Loading:
		status.SetText("Loading…")
	case d.Error != nil:
		status.SetText("Update failed")
	default:
		status.SetText(fmt.Sprintf("%d activities", len(d.Rows)))
	}
	return nil
}

func writeRow(b *strings.Builder, row Row) {
	fmt.Fprintf(b, `<li class="activity-item activity-%s" data-id="%s" data-type="%s">`,
		row.Direction, html.EscapeString(row.ID), html.EscapeString(string(row.Type)))
	fmt.Fprintf(b, `<span class="activity-title">%s</span>`, html.EscapeString(row.Title))
	fmt.Fprintf(b, `<span class="activity-amount">%s</span>`, html.EscapeString(row.Amount))
	if row.Timestamp.IsZero() {
		fmt.Fprintf(b, `<time class="activity-time">%s</time>`, html.EscapeString(row.When))
	} else {
		fmt.Fprintf(b, `<time class="activity-time" datetime="%s">%s</time>`,
			row.Timestamp.UTC().Format(time.RFC3339), html.EscapeString(row.When))
	}
	b.WriteString(`</li>`)
}

func writeErrorRow(b *strings.Builder, e *ErrorRow) {
	fmt.Fprintf(b, `<li class="activity-error" role="alert" title="%s">`, html.EscapeString(e.Detail))
	fmt.Fprintf(b, `<span class="activity-error-message">%s</span>`, html.EscapeString(e.Message))
	if e.Retryable {
		fmt.Fprintf(b, `<form method="post" action="/retry"><input type="hidden" name="page" value="%d"><button type="submit" class="activity-retry">Retry</button></form>`, e.RetryPage)
	}
	b.WriteString(`<form method="post" action="/dismiss"><button type="submit" class="activity-dismiss">Dismiss</button></form>`)
	b.WriteString(`</li>`)
}
