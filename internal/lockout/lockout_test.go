package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printshop/internal/apperror"
	"printshop/internal/events"
	"printshop/internal/profile"
	"printshop/internal/store"
	"printshop/internal/store/storetest"
)

func TestRecordFailedRedeemBlocksOnThirdAttempt(t *testing.T) {
	snap := store.NewSnapshot()
	u := &store.User{ID: 1, Username: "amina", Branch: "north", Role: profile.RoleCustomer}
	snap.Users = append(snap.Users, u)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, Result{Attempts: 1}, RecordFailedRedeem(snap, u, now))
	assert.Equal(t, Result{Attempts: 2}, RecordFailedRedeem(snap, u, now))
	assert.Empty(t, snap.BlockEvents)

	res := RecordFailedRedeem(snap, u, now)
	assert.True(t, res.Blocked)
	assert.Equal(t, Threshold, res.Attempts)
	assert.True(t, u.Blocked)
	assert.Equal(t, Threshold, u.FailedRedeemCount)
	assert.Equal(t, 1, u.BlockedCount)
	require.NotNil(t, u.LastBlockedAt)

	require.Len(t, snap.BlockEvents, 1)
	e := snap.BlockEvents[0]
	assert.Equal(t, ReasonThreeWrongCodes, e.Reason)
	assert.Equal(t, u.ID, e.UserID)
	assert.Equal(t, "north", e.Branch)
	assert.Equal(t, now, e.At)

	// further failures on a blocked account record nothing
	RecordFailedRedeem(snap, u, now)
	assert.Len(t, snap.BlockEvents, 1)
	assert.Equal(t, Threshold, u.FailedRedeemCount)
}

func TestRecordSuccessfulRedeemKeepsBlock(t *testing.T) {
	u := &store.User{FailedRedeemCount: 2, Blocked: true}
	RecordSuccessfulRedeem(u)
	assert.Zero(t, u.FailedRedeemCount)
	assert.True(t, u.Blocked)
}

func blockedCustomer(u *store.User) {
	u.Blocked = true
	u.FailedRedeemCount = Threshold
}

func TestUnblockScope(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)
	svc := NewService(st, events.Discard{}, nil)

	owner := storetest.AddUser(t, st, "boss", profile.RoleOwner, "")
	northStaff := storetest.AddUser(t, st, "desk-north", profile.RoleBranchStaff, "north")
	southStaff := storetest.AddUser(t, st, "desk-south", profile.RoleBranchStaff, "south")
	other := storetest.AddUser(t, st, "omar", profile.RoleCustomer, "north", blockedCustomer)
	victim := storetest.AddUser(t, st, "amina", profile.RoleCustomer, "north", blockedCustomer)

	_, err := svc.Unblock(ctx, southStaff, victim.ID)
	require.ErrorIs(t, err, apperror.ErrForbidden)
	assert.True(t, storetest.User(t, st, victim.ID).Blocked)

	_, err = svc.Unblock(ctx, other, victim.ID)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	got, err := svc.Unblock(ctx, northStaff, victim.ID)
	require.NoError(t, err)
	assert.False(t, got.Blocked)
	assert.Zero(t, got.FailedRedeemCount)

	got, err = svc.Unblock(ctx, owner, other.ID)
	require.NoError(t, err)
	assert.False(t, got.Blocked)

	_, err = svc.Unblock(ctx, owner, 999)
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestEventsScopedToBranch(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)
	svc := NewService(st, events.Discard{}, nil)

	owner := storetest.AddUser(t, st, "boss", profile.RoleOwner, "")
	northStaff := storetest.AddUser(t, st, "desk-north", profile.RoleBranchStaff, "north")
	customer := storetest.AddUser(t, st, "amina", profile.RoleCustomer, "north")

	require.NoError(t, st.Update(ctx, func(snap *store.Snapshot) error {
		snap.BlockEvents = append(snap.BlockEvents,
			&store.BlockEvent{ID: snap.NextID(store.KindBlockEvents), Branch: "north", Reason: ReasonThreeWrongCodes},
			&store.BlockEvent{ID: snap.NextID(store.KindBlockEvents), Branch: "south", Reason: ReasonThreeWrongCodes},
		)
		return nil
	}))

	all, err := svc.Events(ctx, owner)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(2), all[0].ID)

	north, err := svc.Events(ctx, northStaff)
	require.NoError(t, err)
	require.Len(t, north, 1)
	assert.Equal(t, "north", north[0].Branch)

	_, err = svc.Events(ctx, customer)
	require.ErrorIs(t, err, apperror.ErrForbidden)
}
