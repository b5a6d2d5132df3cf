package lockout

import "time"

const (
	// Threshold is the number of consecutive failed redemptions that block an account.
	Threshold = 3

	ReasonThreeWrongCodes = "THREE_WRONG_CODE_ATTEMPTS"
)

// Result describes the effect of one failed redemption.
type Result struct {
	Attempts int
	Blocked  bool
}

// UserBlockedEvent is published when an account reaches the threshold.
type UserBlockedEvent struct {
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Branch   string    `json:"branch"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// UserUnblockedEvent is published when staff lifts a block.
type UserUnblockedEvent struct {
	UserID   int64     `json:"user_id"`
	ByUserID int64     `json:"by_user_id"`
	Branch   string    `json:"branch"`
	At       time.Time `json:"at"`
}
