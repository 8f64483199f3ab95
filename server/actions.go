package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"activityfeed/feed"
	"activityfeed/trigger"
)

const (
	actionRate  = 5 // Sustained actions per second per client
	actionBurst = 10
	limiterIdle = time.Hour
)

// ipLimiter rate limits actions per client IP.
type ipLimiter struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
}

type clientLimiter struct {
	lastSeen time.Time
	limiter  *rate.Limiter
}

func newIPLimiter() *ipLimiter {
	return &ipLimiter{clients: make(map[string]*clientLimiter)}
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Clean idle clients
	for k, c := range l.clients {
		if now.Sub(c.lastSeen) > limiterIdle {
			delete(l.clients, k)
		}
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(actionRate, actionBurst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.allow(ip, s.now()) {
			s.logger.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
			http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port; RealIP has already applied X-Forwarded-For.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// loadContext detaches a load from the request so a client disconnect does not cancel it.
func loadContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) handleMore(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	// A scroll position routes through the scroll trigger; a bare post is the load-more button.
	if r.Form.Has("content") && s.scroller != nil {
		pos, err := parsePosition(r)
		if err != nil {
			http.Error(w, "Invalid scroll position", http.StatusBadRequest)
			return
		}
		triggered, err := s.scroller.OnScroll(loadContext(r), pos)
		s.logAction("scroll", err, "triggered", triggered)
	} else {
		s.logAction("load_more", s.feed.LoadMore(loadContext(r)))
	}
	s.done(w, r)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.logAction("refresh", s.feed.Refresh(loadContext(r)))
	s.done(w, r)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	if raw := r.FormValue("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err != nil || n < 1 {
			http.Error(w, "Invalid page", http.StatusBadRequest)
			return
		}
	}
	s.logAction("retry", s.feed.Retry(loadContext(r)), "requested_page", r.FormValue("page"))
	s.done(w, r)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.feed.DismissError()
	s.logger.Info("Error dismissed")
	s.done(w, r)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	if s.visibility == nil {
		http.Error(w, "Visibility tracking not enabled", http.StatusNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	visible, err := strconv.ParseBool(r.FormValue("visible"))
	if err != nil {
		http.Error(w, "visible must be true or false", http.StatusBadRequest)
		return
	}

	refreshed, err := s.visibility.VisibilityChanged(loadContext(r), visible)
	s.logAction("visibility", err, "visible", visible, "refreshed", refreshed)
	s.done(w, r)
}

// done redirects form posts back to the feed; other clients get 204.
func (s *Server) done(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// logAction logs the outcome of an action. Load failures are shown in the feed's
// error row, so they are not turned into HTTP errors.
func (s *Server) logAction(action string, err error, attrs ...any) {
	attrs = append([]any{"action", action}, attrs...)
	switch {
	case err == nil:
		s.logger.Info("Action completed", attrs...)
	case errors.Is(err, feed.ErrLoadInProgress), errors.Is(err, feed.ErrNoMorePages):
		s.logger.Info("Action skipped", append(attrs, "reason", err)...)
	default:
		s.logger.Warn("Action failed", append(attrs, "error", err)...)
	}
}

func parsePosition(r *http.Request) (trigger.Position, error) {
	var pos trigger.Position
	var err error
	if pos.Offset, err = strconv.ParseFloat(r.FormValue("offset"), 64); err != nil {
		return pos, err
	}
	if pos.Viewport, err = strconv.ParseFloat(r.FormValue("viewport"), 64); err != nil {
		return pos, err
	}
	if pos.Content, err = strconv.ParseFloat(r.FormValue("content"), 64); err != nil {
		return pos, err
	}
	return pos, nil
}
