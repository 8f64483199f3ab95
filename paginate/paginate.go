// Package paginate merges feed pages into the loaded activity list.
package paginate

import "activityfeed/pkg/activity"

// Merge combines the loaded list with an incoming page.
// Page 1 replaces the list; later pages are appended in server order.
// Records whose ID is already present are dropped, so the first occurrence keeps its position.
func Merge(existing []activity.Record, incoming activity.Page, page int) []activity.Record {
	base := existing
	if page <= 1 {
		base = nil
	}

	out := make([]activity.Record, 0, len(base)+len(incoming.Activities))
	seen := make(map[string]struct{}, cap(out))
	for _, rec := range base {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	for _, rec := range incoming.Activities {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// Result describes what an Apply call changed.
type Result struct {
	Added      int // Records from the page that were kept
	Duplicates int // Records from the page dropped as already loaded
	Replaced   bool
}

// Controller tracks the current page, the loaded list and whether more pages exist.
// It is not safe for concurrent use; the synchronizer owns it.
type Controller struct {
	activities []activity.Record
	page       int
	hasMore    bool
}

// NewController returns a controller positioned before page 1.
func NewController() *Controller {
	return &Controller{page: 1, hasMore: true}
}

// Apply merges page number n into the list and takes HasMore from the page.
func (c *Controller) Apply(p activity.Page, n int) Result {
	if n < 1 {
		n = 1
	}
	before := len(c.activities)
	if n == 1 {
		before = 0
	}

	c.activities = Merge(c.activities, p, n)
	c.page = n
	c.hasMore = p.HasNext

	added := len(c.activities) - before
	return Result{
		Added:      added,
		Duplicates: len(p.Activities) - added,
		Replaced:   n == 1,
	}
}

// Activities returns a copy of the loaded list in display order.
func (c *Controller) Activities() []activity.Record {
	out := make([]activity.Record, len(c.activities))
	copy(out, c.activities)
	return out
}

// Len returns the number of loaded records.
func (c *Controller) Len() int { return len(c.activities) }

// Page returns the last page applied.
func (c *Controller) Page() int { return c.page }

// Next returns the page that follows the last one applied.
func (c *Controller) Next() int { return c.page + 1 }

// HasMore reports the server's has_next flag from the last page applied.
func (c *Controller) HasMore() bool { return c.hasMore }

// Reset clears the list and returns to page 1.
func (c *Controller) Reset() {
	c.activities = nil
	c.page = 1
	c.hasMore = true
}
