// Package server hosts the rendered activity feed and the actions that drive it.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"activityfeed/metrics"
	"activityfeed/pkg/activity"
	"activityfeed/render"
	"activityfeed/summary"
	"activityfeed/trigger"
)

//go:embed tmpl/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "tmpl/*.tmpl"))

// Feed is the synchronizer surface the actions use.
type Feed interface {
	LoadMore(ctx context.Context) error
	Refresh(ctx context.Context) error
	Retry(ctx context.Context) error
	DismissError()
}

// Summary provides the weekly totals.
type Summary interface {
	Snapshot() summary.Snapshot
}

// Scroller turns scroll positions into page loads.
type Scroller interface {
	OnScroll(ctx context.Context, pos trigger.Position) (bool, error)
}

// Visibility receives page visibility changes.
type Visibility interface {
	VisibilityChanged(ctx context.Context, visible bool) (bool, error)
}

// Server handles HTTP requests.
type Server struct {
	feed       Feed
	summary    Summary
	scroller   Scroller
	visibility Visibility
	view       *View
	limiter    *ipLimiter
	logger     *slog.Logger
	now        func() time.Time
}

// Config holds server configuration.
type Config struct {
	Feed       Feed
	Summary    Summary
	Scroller   Scroller
	Visibility Visibility
	View       *View
	Logger     *slog.Logger
	Now        func() time.Time
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	view := cfg.View
	if view == nil {
		view = NewView()
	}
	return &Server{
		feed:       cfg.Feed,
		summary:    cfg.Summary,
		scroller:   cfg.Scroller,
		visibility: cfg.Visibility,
		view:       view,
		limiter:    newIPLimiter(),
		logger:     cfg.Logger,
		now:        now,
	}
}

// Routes returns the router serving the feed page and its actions.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/summary", s.handleSummary)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/more", s.handleMore)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/retry", s.handleRetry)
		r.Post("/dismiss", s.handleDismiss)
		r.Post("/visibility", s.handleVisibility)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	// Configure server with timeouts to prevent resource exhaustion
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Routes(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type totalsView struct {
	Currency string
	Credits  string
	Debits   string
	Net      string
}

type pageData struct {
	Updated string
	Summary struct {
		Totals []totalsView
		Count  int
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	display, version := s.view.Current()

	page, err := s.renderPage(display)
	if err != nil {
		s.logger.Error("Failed to render feed page", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
	w.Header().Set("X-Feed-Version", fmt.Sprint(version))
	if _, err := w.Write(page); err != nil {
		s.logger.Warn("Failed to write feed page", "error", err)
	}
}

// renderPage executes the shell template and patches the feed list into it.
func (s *Server) renderPage(display render.Display) ([]byte, error) {
	data := pageData{Updated: s.now().UTC().Format(time.RFC1123)}
	if s.summary != nil {
		snap := s.summary.Snapshot()
		data.Summary.Count = snap.Count
		for _, t := range snap.Totals {
			data.Summary.Totals = append(data.Summary.Totals, totalsView{
				Currency: t.Currency,
				Credits:  render.FormatAmount(activity.TypeDeposit, t.Credits, ""),
				Debits:   render.FormatAmount(activity.TypeWithdraw, t.Debits, ""),
				Net:      formatNet(t),
			})
		}
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "feed.tmpl", data); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return nil, fmt.Errorf("parse shell: %w", err)
	}
	if err := render.Patch(doc, display); err != nil {
		return nil, fmt.Errorf("patch feed: %w", err)
	}

	out, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("serialize page: %w", err)
	}
	return []byte(out), nil
}

func formatNet(t summary.Totals) string {
	if t.Net.IsNegative() {
		return render.FormatAmount(activity.TypeWithdraw, t.Net, "")
	}
	return render.FormatAmount(activity.TypeDeposit, t.Net, "")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	if s.summary == nil {
		http.Error(w, "Summary not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.summary.Snapshot()); err != nil {
		s.logger.Warn("Failed to write summary response", "error", err)
	}
}
