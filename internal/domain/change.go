package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChangeType classifies a position change between two consecutive polls.
type ChangeType string

const (
	// ChangeOpened marks a transition from no position to a nonzero size.
	ChangeOpened ChangeType = "Opened"
	// ChangeClosed marks a transition to zero size.
	ChangeClosed ChangeType = "Closed"
	// ChangeUpdated marks a size change that stayed nonzero.
	ChangeUpdated ChangeType = "Updated"
)

// ChangeEvent is an immutable record of one position change. Events are
// append-only; once written to the change log they are never mutated.
type ChangeEvent struct {
	ID           string          `json:"id"`
	Wallet       string          `json:"wallet"`
	Market       string          `json:"market"`
	Type         ChangeType      `json:"type"`
	PreviousSize decimal.Decimal `json:"previous_size"`
	NewSize      decimal.Decimal `json:"new_size"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	Direction    string          `json:"direction"`
	Timestamp    time.Time       `json:"timestamp"`
}
