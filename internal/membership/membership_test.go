package membership

import (
	"context"
	"fmt"
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

func newTestService(t *testing.T, opts Options) (*store.Store, Service) {
	t.Helper()
	st := storetest.New(t)
	return st, NewService(st, events.Discard{}, nil, opts)
}

func generous() Options {
	return Options{LoginRatePerMinute: 6000, LoginBurst: 100}
}

func TestPasswordHashing(t *testing.T) {
	hash, salt, err := hashPassword("correct horse")
	require.NoError(t, err)

	ok, err := verifyPassword("correct horse", salt, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifyPassword("battery staple", salt, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = verifyPassword("x", "%%%", hash)
	require.Error(t, err)

	hash2, salt2, err := hashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, salt, salt2)
	assert.NotEqual(t, hash, hash2)
}

func TestRegisterLoginResolve(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestService(t, generous())

	u, err := svc.Register(ctx, RegisterInput{
		Username: "Amina",
		Password: "s3cret-pass",
		Branch:   "north",
		Profile:  profile.Profile{FacultyID: storetest.ID(7)},
	})
	require.NoError(t, err)
	assert.Equal(t, "amina", u.Username)
	assert.Equal(t, profile.RoleCustomer, u.Role)
	assert.Zero(t, u.CreditBalance)

	_, err = svc.Register(ctx, RegisterInput{Username: "amina", Password: "another-pass", Branch: "north"})
	require.ErrorIs(t, err, apperror.ErrUsernameTaken)

	_, err = svc.Login(ctx, "amina", "wrong-password")
	require.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "s3cret-pass")
	require.ErrorIs(t, err, apperror.ErrInvalidCredentials)

	res, err := svc.Login(ctx, " AMINA ", "s3cret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	assert.Equal(t, u.ID, res.User.ID)

	resolved, err := svc.Resolve(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, resolved.ID)
	require.NotNil(t, resolved.Profile.FacultyID)
	assert.Equal(t, int64(7), *resolved.Profile.FacultyID)

	require.NoError(t, svc.Logout(ctx, res.Token))
	_, err = svc.Resolve(ctx, res.Token)
	require.ErrorIs(t, err, apperror.ErrUnauthenticated)
	require.ErrorIs(t, svc.Logout(ctx, res.Token), apperror.ErrUnauthenticated)

	_, err = svc.Resolve(ctx, "")
	require.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestRegisterValidation(t *testing.T) {
	_, svc := newTestService(t, generous())

	_, err := svc.Register(context.Background(), RegisterInput{Username: "amina", Password: "short", Branch: "north"})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = svc.Register(context.Background(), RegisterInput{Username: "amina", Password: "long-enough"})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestLoginRateLimitedPerUsername(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestService(t, Options{LoginRatePerMinute: 1, LoginBurst: 2})

	for i := 0; i < 2; i++ {
		_, err := svc.Login(ctx, "amina", "whatever")
		require.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	}
	_, err := svc.Login(ctx, "amina", "whatever")
	require.ErrorIs(t, err, apperror.ErrRateLimited)

	_, err = svc.Login(ctx, "omar", "whatever")
	require.ErrorIs(t, err, apperror.ErrInvalidCredentials)
}

func TestEnsureOwner(t *testing.T) {
	ctx := context.Background()
	st, svc := newTestService(t, generous())

	first, err := svc.EnsureOwner(ctx, "boss", "owner-pass")
	require.NoError(t, err)
	assert.Equal(t, profile.RoleOwner, first.Role)

	again, err := svc.EnsureOwner(ctx, "boss", "ignored")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, storetest.Snapshot(t, st).Users, 1)

	_, err = svc.Login(ctx, "boss", "owner-pass")
	require.NoError(t, err)

	storetest.AddUser(t, st, "taken", profile.RoleCustomer, "north")
	_, err = svc.EnsureOwner(ctx, "taken", "owner-pass")
	require.Error(t, err)

	_, err = svc.EnsureOwner(ctx, "", "")
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestCreateStaffAndListUsers(t *testing.T) {
	ctx := context.Background()
	st, svc := newTestService(t, generous())

	owner := storetest.AddUser(t, st, "boss", profile.RoleOwner, "")
	customer := storetest.AddUser(t, st, "amina", profile.RoleCustomer, "north")
	storetest.AddUser(t, st, "sara", profile.RoleCustomer, "south")

	_, err := svc.CreateStaff(ctx, customer, StaffInput{Username: "desk", Password: "staff-pass", Branch: "north"})
	require.ErrorIs(t, err, apperror.ErrForbidden)

	created, err := svc.CreateStaff(ctx, owner, StaffInput{Username: "desk", Password: "staff-pass", Branch: "north"})
	require.NoError(t, err)
	assert.Equal(t, profile.RoleBranchStaff, created.Role)

	staff := storetest.User(t, st, created.ID)

	north, err := svc.ListUsers(ctx, staff)
	require.NoError(t, err)
	names := make([]string, 0, len(north))
	for _, u := range north {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"amina", "desk"}, names)

	all, err := svc.ListUsers(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = svc.ListUsers(ctx, customer)
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	st, svc := newTestService(t, generous())

	customer := storetest.AddUser(t, st, "amina", profile.RoleCustomer, "north")
	staff := storetest.AddUser(t, st, "desk", profile.RoleBranchStaff, "north")

	u, err := svc.UpdateProfile(ctx, customer, profile.Profile{YearID: storetest.ID(2), GroupID: storetest.ID(5)})
	require.NoError(t, err)
	require.NotNil(t, u.Profile.YearID)
	assert.Equal(t, int64(2), *u.Profile.YearID)
	assert.Nil(t, u.Profile.FacultyID)

	_, err = svc.UpdateProfile(ctx, staff, profile.Profile{})
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestLimiterSet(t *testing.T) {
	l := newLimiterSet(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("k"))
	}

	l = newLimiterSet(1, 1)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestLimiterSetStaysBounded(t *testing.T) {
	clock := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := newLimiterSet(1, 1)
	l.maxKeys = 3
	l.now = func() time.Time { return clock }

	for _, k := range []string{"a", "b", "c"} {
		assert.True(t, l.Allow(k))
	}
	// full and nothing idle: unseen keys share the overflow bucket
	assert.True(t, l.Allow("d"))
	assert.False(t, l.Allow("e"))
	assert.Equal(t, 3, l.size())
	assert.False(t, l.Allow("a"))

	clock = clock.Add(2 * time.Minute)
	assert.True(t, l.Allow("f"))
	assert.Equal(t, 1, l.size())
}

func TestLoginWithRandomUsernamesIsBounded(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestService(t, generous())
	impl := svc.(*service)
	impl.limiter.maxKeys = 50

	for i := 0; i < 200; i++ {
		_, err := svc.Login(ctx, fmt.Sprintf("ghost-%d", i), "whatever")
		require.Error(t, err)
	}
	assert.LessOrEqual(t, impl.limiter.size(), 50)
}
