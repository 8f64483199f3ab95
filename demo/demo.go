// Package demo serves an in-memory recent-activity backend for local development and tests.
package demo

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"activityfeed/pkg/activity"
)

// Path is the route of the general activity feed.
const Path = "/api/recent_activity"

const (
	defaultPageSize = 20
	maxPageSize     = 100
	isoLayout       = "2006-01-02T15:04:05"
)

// Source transaction kinds and how they appear in the feed.
const (
	KindDeposit    = "deposit"
	KindWithdrawal = "withdrawal"
	KindBonus      = "bonus"
	KindReferral   = "referral"
	KindPackage    = "package"
)

var kindTypes = map[string]activity.Type{
	KindDeposit:    activity.TypeDeposit,
	KindWithdrawal: activity.TypeWithdraw,
	KindBonus:      activity.TypeBonus,
	KindReferral:   activity.TypeBonus,
	KindPackage:    activity.TypeDeposit,
}

var kindTitles = map[string]string{
	KindDeposit:    "Funds Deposit",
	KindWithdrawal: "Withdrawal",
	KindBonus:      "Bonus Credit",
	KindReferral:   "Referral Bonus",
	KindPackage:    "Package Investment",
}

// Transaction is a stored money movement.
type Transaction struct {
	CreatedAt time.Time // Zero for legacy rows without a timestamp
	Amount    decimal.Decimal
	Kind      string
	Currency  string
	UserID    int
}

// wireActivity is the JSON shape of one feed record. It carries no id.
type wireActivity struct {
	Timestamp *string `json:"timestamp"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Currency  string  `json:"currency"`
	Amount    float64 `json:"amount"`
}

type pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalItems int  `json:"total_items"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

type pageResponse struct {
	Activities []wireActivity `json:"activities"`
	Pagination pagination     `json:"pagination"`
}

// ToActivity maps a transaction to its feed record. Unknown kinds show as deposits
// titled "Transaction"; a missing currency defaults to UGX.
func ToActivity(tx Transaction) activity.Record {
	typ, ok := kindTypes[tx.Kind]
	if !ok {
		typ = activity.TypeDeposit
	}
	title, ok := kindTitles[tx.Kind]
	if !ok {
		title = "Transaction"
	}
	currency := tx.Currency
	if currency == "" {
		currency = "UGX"
	}
	return activity.Record{
		Type:      typ,
		Title:     title,
		Amount:    tx.Amount,
		Currency:  currency,
		Timestamp: tx.CreatedAt,
	}
}

// Backend holds the transactions and answers feed requests.
type Backend struct {
	logger       *slog.Logger
	transactions []Transaction // Most recent first
	requests     int
	failNext     int
	failStatus   int
	mu           sync.Mutex
}

// New creates a backend over txs.
func New(txs []Transaction, logger *slog.Logger) *Backend {
	b := &Backend{logger: logger}
	b.Replace(txs)
	return b
}

// Replace swaps the stored transactions.
func (b *Backend) Replace(txs []Transaction) {
	sorted := make([]Transaction, len(txs))
	copy(sorted, txs)
	// Most recent first; rows without a timestamp sort last.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	b.transactions = sorted
}

// Prepend adds a transaction as the most recent one.
func (b *Backend) Prepend(tx Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transactions = append([]Transaction{tx}, b.transactions...)
}

// FailNext makes the next n feed requests answer with status.
func (b *Backend) FailNext(n, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = n
	b.failStatus = status
}

// Requests returns the number of feed requests served, failed ones included.
func (b *Backend) Requests() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests
}

// Routes returns the backend's HTTP handler.
func (b *Backend) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get(Path, b.handleRecent)
	r.Get(Path+"/{userID}", b.handleRecent)
	return r
}

func (b *Backend) handleRecent(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.requests++
	if b.failNext > 0 {
		b.failNext--
		status := b.failStatus
		b.mu.Unlock()
		b.logger.Info("Injected failure", "status", status)
		writeJSON(w, status, map[string]string{"error": "Internal server error"}, b.logger)
		return
	}
	txs := b.transactions
	b.mu.Unlock()

	// Invalid integers fall back to the defaults.
	page := intParam(r, "page", 1)
	pageSize := intParam(r, "page_size", defaultPageSize)
	if page < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Page must be greater than 0"}, b.logger)
		return
	}
	if pageSize < 1 || pageSize > maxPageSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("Page size must be between 1 and %d", maxPageSize),
		}, b.logger)
		return
	}

	if raw := chi.URLParam(r, "userID"); raw != "" {
		userID, err := strconv.Atoi(raw)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		txs = forUser(txs, userID)
	}

	writeJSON(w, http.StatusOK, buildPage(txs, page, pageSize), b.logger)
}

func buildPage(txs []Transaction, page, pageSize int) pageResponse {
	total := len(txs)
	totalPages := (total + pageSize - 1) / pageSize

	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)

	out := pageResponse{
		Activities: make([]wireActivity, 0, end-start),
		Pagination: pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
	}
	for _, tx := range txs[start:end] {
		out.Activities = append(out.Activities, toWire(ToActivity(tx)))
	}
	return out
}

func toWire(rec activity.Record) wireActivity {
	w := wireActivity{
		Type:     string(rec.Type),
		Title:    rec.Title,
		Currency: rec.Currency,
		Amount:   rec.Amount.InexactFloat64(),
	}
	if !rec.Timestamp.IsZero() {
		ts := isoFormat(rec.Timestamp)
		w.Timestamp = &ts
	}
	return w
}

// isoFormat writes a zone-less timestamp with microseconds only when present.
func isoFormat(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 == 0 {
		return t.Format(isoLayout)
	}
	return t.Format(isoLayout + ".000000")
}

func forUser(txs []Transaction, userID int) []Transaction {
	var out []Transaction
	for _, tx := range txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out
}

func intParam(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}

// Generate returns n sample transactions spread over the weeks before now.
// The same seed yields the same transactions.
func Generate(n int, now time.Time, seed uint64) []Transaction {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	kinds := []string{KindDeposit, KindWithdrawal, KindBonus, KindReferral, KindPackage}

	txs := make([]Transaction, 0, n)
	at := now
	for i := range n {
		at = at.Add(-time.Duration(5+rng.IntN(12*60)) * time.Minute)
		txs = append(txs, Transaction{
			Kind:      kinds[rng.IntN(len(kinds))],
			Amount:    decimal.New(int64(1000+rng.IntN(500_000)), -2).Mul(decimal.NewFromInt(10)),
			CreatedAt: at.Truncate(time.Second),
			UserID:    1 + i%3,
		})
	}
	return txs
}
