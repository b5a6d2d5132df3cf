// internal/voucher/domain.go
package voucher

import (
	"time"

	"printshop/internal/store"
)

const (
	// MaxBatch caps the number of codes produced by one Generate call.
	MaxBatch = 100

	// Alphabet omits the look-alike characters I, O, 0 and 1.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	codePrefix = "PS"
)

// AllowedAmounts are the face values a code may carry.
var AllowedAmounts = []int64{500, 1000, 2000}

func validAmount(amount int64) bool {
	for _, a := range AllowedAmounts {
		if a == amount {
			return true
		}
	}
	return false
}

// Sale is returned to the staff member at the point of sale.
type Sale struct {
	CodeID int64     `json:"code_id"`
	Code   string    `json:"code"`
	Amount int64     `json:"amount"`
	SoldAt time.Time `json:"sold_at"`
}

// Redemption is the outcome of a successful redeem.
type Redemption struct {
	Amount     int64 `json:"amount"`
	NewBalance int64 `json:"new_balance"`
}

// StaffStats aggregates the codes assigned to one staff member.
type StaffStats struct {
	StaffID       int64  `json:"staff_id"`
	Username      string `json:"username"`
	Branch        string `json:"branch"`
	UnsoldCount   int    `json:"unsold_count"`
	UnsoldSum     int64  `json:"unsold_sum"`
	SoldCount     int    `json:"sold_count"`
	SoldSum       int64  `json:"sold_sum"`
	ConsumedCount int    `json:"consumed_count"`
	ConsumedSum   int64  `json:"consumed_sum"`
}

// Stats is the owner's overview of the ledger.
type Stats struct {
	Staff         []StaffStats `json:"staff"`
	UnsoldCount   int          `json:"unsold_count"`
	UnsoldSum     int64        `json:"unsold_sum"`
	SoldCount     int          `json:"sold_count"`
	SoldSum       int64        `json:"sold_sum"`
	ConsumedCount int          `json:"consumed_count"`
	ConsumedSum   int64        `json:"consumed_sum"`
}

// CodesGeneratedEvent is published after a batch was created.
type CodesGeneratedEvent struct {
	StaffID int64     `json:"staff_id"`
	Branch  string    `json:"branch"`
	Amount  int64     `json:"amount"`
	Count   int       `json:"count"`
	At      time.Time `json:"at"`
}

// CodeSoldEvent is published when staff reveals a code to a buyer. The
// plaintext code is deliberately absent.
type CodeSoldEvent struct {
	CodeID  int64     `json:"code_id"`
	StaffID int64     `json:"staff_id"`
	Branch  string    `json:"branch"`
	Amount  int64     `json:"amount"`
	At      time.Time `json:"at"`
}

// CodeRedeemedEvent is published when a customer consumes a code.
type CodeRedeemedEvent struct {
	CodeID int64     `json:"code_id"`
	UserID int64     `json:"user_id"`
	Branch string    `json:"branch"`
	Amount int64     `json:"amount"`
	At     time.Time `json:"at"`
}

// RedeemFailedEvent is published for every counted failed attempt.
type RedeemFailedEvent struct {
	UserID   int64     `json:"user_id"`
	Branch   string    `json:"branch"`
	Attempts int       `json:"attempts"`
	Blocked  bool      `json:"blocked"`
	At       time.Time `json:"at"`
}

// statusRank orders listings FRESH, SOLD, CONSUMED.
func statusRank(s store.CodeStatus) int {
	switch s {
	case store.CodeFresh:
		return 0
	case store.CodeSold:
		return 1
	default:
		return 2
	}
}
