package server

import (
	"sync"

	"activityfeed/render"
)

// View keeps the most recently presented feed display for the page handler.
// It is the synchronizer's presenter.
type View struct {
	display render.Display
	version uint64
	mu      sync.RWMutex
}

// NewView returns a view showing the empty state.
func NewView() *View {
	return &View{display: render.Display{Empty: &render.EmptyState{Message: "No recent activity yet."}}}
}

// Present stores d as the current display.
func (v *View) Present(d render.Display) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.display = d
	v.version++
}

// Current returns the latest display and how many times the view was updated.
func (v *View) Current() (render.Display, uint64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.display, v.version
}
