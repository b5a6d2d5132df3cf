package lockout

import (
	"time"

	"printshop/internal/store"
)

// RecordFailedRedeem counts a failed redemption for u. On reaching Threshold
// the account is blocked and a BlockEvent is appended to snap. The counter is
// left at its blocking value until a privileged unblock resets it.
func RecordFailedRedeem(snap *store.Snapshot, u *store.User, now time.Time) Result {
	if u.Blocked {
		return Result{Attempts: u.FailedRedeemCount, Blocked: true}
	}

	u.FailedRedeemCount++
	if u.FailedRedeemCount < Threshold {
		return Result{Attempts: u.FailedRedeemCount}
	}

	at := now.UTC()
	u.Blocked = true
	u.BlockedCount++
	u.LastBlockedAt = &at
	snap.BlockEvents = append(snap.BlockEvents, &store.BlockEvent{
		ID:       snap.NextID(store.KindBlockEvents),
		UserID:   u.ID,
		Username: u.Username,
		Branch:   u.Branch,
		Reason:   ReasonThreeWrongCodes,
		At:       at,
	})
	return Result{Attempts: u.FailedRedeemCount, Blocked: true}
}

// RecordSuccessfulRedeem clears the failure counter. It never unblocks.
func RecordSuccessfulRedeem(u *store.User) {
	u.FailedRedeemCount = 0
}
