// Package activity contains the core domain types for the activity feed.
package activity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is the kind of transaction an activity record describes.
type Type string

// Known activity types.
const (
	TypeBonus    Type = "bonus"
	TypeDeposit  Type = "deposit"
	TypeWithdraw Type = "withdraw"
)

// Valid reports whether t is one of the known activity types.
func (t Type) Valid() bool {
	switch t {
	case TypeBonus, TypeDeposit, TypeWithdraw:
		return true
	default:
		return false
	}
}

// Credit reports whether t adds funds to the account.
func (t Type) Credit() bool {
	return t == TypeBonus || t == TypeDeposit
}

// Debit reports whether t removes funds from the account.
func (t Type) Debit() bool {
	return t == TypeWithdraw
}

// Record is a single entry of the activity feed as computed by the backend.
type Record struct {
	Timestamp time.Time       // Zero when the backend sent no timestamp
	Amount    decimal.Decimal // Always non-negative; the sign comes from Type
	ID        string          // Unique per record
	Type      Type
	Title     string
	Currency  string // ISO-like code, e.g. UGX
}

// Page is one page of the feed in server order (most recent first).
type Page struct {
	Activities []Record
	HasNext    bool
}

// recordNamespace scopes derived record IDs.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("activityfeed/record"))

// DeriveID builds a stable identifier for a record the backend sent without one.
// Two fetches of the same record produce the same ID.
func DeriveID(r Record) string {
	parts := []string{
		string(r.Type),
		r.Title,
		r.Amount.String(),
		r.Currency,
	}
	if !r.Timestamp.IsZero() {
		parts = append(parts, r.Timestamp.UTC().Format(time.RFC3339Nano))
	}
	return uuid.NewSHA1(recordNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}
