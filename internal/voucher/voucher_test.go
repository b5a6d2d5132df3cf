package voucher

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"printshop/internal/apperror"
	"printshop/internal/events"
	"printshop/internal/lockout"
	"printshop/internal/profile"
	"printshop/internal/store"
	"printshop/internal/store/storetest"
)

var codePattern = regexp.MustCompile(`^PS-[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{2}$`)

type recorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *recorder) Publish(_ context.Context, topic string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recorder) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.topics {
		if t == topic {
			n++
		}
	}
	return n
}

type fixture struct {
	st       *store.Store
	svc      *service
	pub      *recorder
	owner    store.User
	staffA   store.User
	staffB   store.User
	south    store.User
	customer store.User
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	st := storetest.New(t)
	pub := &recorder{}
	f := &fixture{
		st:       st,
		svc:      NewService(st, pub, nil).(*service),
		pub:      pub,
		owner:    storetest.AddUser(t, st, "boss", profile.RoleOwner, ""),
		staffA:   storetest.AddUser(t, st, "desk-a", profile.RoleBranchStaff, "north"),
		staffB:   storetest.AddUser(t, st, "desk-b", profile.RoleBranchStaff, "north"),
		south:    storetest.AddUser(t, st, "desk-south", profile.RoleBranchStaff, "south"),
		customer: storetest.AddUser(t, st, "amina", profile.RoleCustomer, "north"),
	}
	return f
}

func (f *fixture) generate(t testing.TB, amount int64, staff store.User) store.VoucherCode {
	t.Helper()
	codes, err := f.svc.Generate(context.Background(), f.owner, amount, staff.ID, 1)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	return codes[0]
}

func (f *fixture) sold(t testing.TB, amount int64) Sale {
	t.Helper()
	code := f.generate(t, amount, f.staffA)
	sale, err := f.svc.MarkSold(context.Background(), f.staffA, code.ID)
	require.NoError(t, err)
	return sale
}

func codeByID(t testing.TB, st *store.Store, id int64) store.VoucherCode {
	t.Helper()
	snap := storetest.Snapshot(t, st)
	c := snap.CodeByID(id)
	require.NotNil(t, c)
	return *c
}

func TestNewCodeFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := newCode(defaultRandom)
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)
	}
}

func TestUniqueCodeRegeneratesOnCollision(t *testing.T) {
	src := bytes.NewReader(append(make([]byte, 10), bytes.Repeat([]byte{1}, 10)...))
	taken := map[string]struct{}{"PS-AAAA-AAAA-AA": {}}

	code, err := uniqueCode(src, taken)
	require.NoError(t, err)
	assert.Equal(t, "PS-BBBB-BBBB-BB", code)
	assert.Contains(t, taken, code)
}

func TestUniqueCodeGivesUp(t *testing.T) {
	src := bytes.NewReader(make([]byte, 10*maxCollisionRetries))
	taken := map[string]struct{}{"PS-AAAA-AAAA-AA": {}}

	_, err := uniqueCode(src, taken)
	require.ErrorIs(t, err, errCodeSpaceExhausted)
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Generate(ctx, f.staffA, 500, f.staffA.ID, 5)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.Generate(ctx, f.owner, 750, f.staffA.ID, 5)
	require.ErrorIs(t, err, apperror.ErrInvalidAmount)

	_, err = f.svc.Generate(ctx, f.owner, 500, f.customer.ID, 5)
	require.ErrorIs(t, err, apperror.ErrStaffNotFound)

	codes, err := f.svc.Generate(ctx, f.owner, 1000, f.staffA.ID, 25)
	require.NoError(t, err)
	require.Len(t, codes, 25)

	seen := make(map[string]bool)
	for _, c := range codes {
		assert.Regexp(t, codePattern, c.Code)
		assert.False(t, seen[c.Code], "duplicate code %s", c.Code)
		seen[c.Code] = true
		assert.Equal(t, store.CodeFresh, c.Status)
		assert.Equal(t, int64(1000), c.Amount)
		assert.Equal(t, "north", c.Branch)
		require.NotNil(t, c.VisibleToStaffID)
		assert.Equal(t, f.staffA.ID, *c.VisibleToStaffID)
		require.NotNil(t, c.AssignedStaffID)
		assert.Equal(t, f.staffA.ID, *c.AssignedStaffID)
	}
	assert.Equal(t, 1, f.pub.count(events.TopicCodesGenerated))
}

func TestGenerateClampsCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	codes, err := f.svc.Generate(ctx, f.owner, 500, f.staffA.ID, 0)
	require.NoError(t, err)
	assert.Len(t, codes, 1)

	codes, err = f.svc.Generate(ctx, f.owner, 500, f.staffA.ID, 1000)
	require.NoError(t, err)
	assert.Len(t, codes, MaxBatch)
}

func TestSetVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.generate(t, 500, f.staffA)

	_, err := f.svc.SetVisibility(ctx, f.staffA, code.ID, &f.staffB.ID)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.SetVisibility(ctx, f.owner, code.ID, &f.south.ID)
	require.ErrorIs(t, err, apperror.ErrStaffNotFound)

	got, err := f.svc.SetVisibility(ctx, f.owner, code.ID, &f.staffB.ID)
	require.NoError(t, err)
	assert.True(t, got.VisibleTo(f.staffB.ID))
	assert.False(t, got.VisibleTo(f.staffA.ID))

	_, err = f.svc.MarkSold(ctx, f.staffA, code.ID)
	require.ErrorIs(t, err, apperror.ErrNotAssigned)

	got, err = f.svc.Hide(ctx, f.owner, code.ID)
	require.NoError(t, err)
	assert.Nil(t, got.VisibleToStaffID)

	_, err = f.svc.MarkSold(ctx, f.staffB, code.ID)
	require.ErrorIs(t, err, apperror.ErrNotAssigned)

	_, err = f.svc.SetVisibility(ctx, f.owner, 999, nil)
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSetVisibilityRequiresFresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sale := f.sold(t, 500)

	_, err := f.svc.SetVisibility(ctx, f.owner, sale.CodeID, &f.staffB.ID)
	require.ErrorIs(t, err, apperror.ErrInvalidState)

	_, err = f.svc.Hide(ctx, f.owner, sale.CodeID)
	require.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestMarkSold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.generate(t, 2000, f.staffA)

	_, err := f.svc.MarkSold(ctx, f.staffB, code.ID)
	require.ErrorIs(t, err, apperror.ErrNotAssigned)

	sale, err := f.svc.MarkSold(ctx, f.staffA, code.ID)
	require.NoError(t, err)
	assert.Equal(t, code.Code, sale.Code)
	assert.Equal(t, int64(2000), sale.Amount)

	got := codeByID(t, f.st, code.ID)
	assert.Equal(t, store.CodeSold, got.Status)
	require.NotNil(t, got.SoldByStaffID)
	assert.Equal(t, f.staffA.ID, *got.SoldByStaffID)
	assert.NotNil(t, got.SoldAt)

	_, err = f.svc.MarkSold(ctx, f.staffA, code.ID)
	require.ErrorIs(t, err, apperror.ErrInvalidState)
	assert.Equal(t, 1, f.pub.count(events.TopicCodeSold))
}

func TestRedeemSoldCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sale := f.sold(t, 500)

	res, err := f.svc.Redeem(ctx, f.customer, "  "+sale.Code+"\n")
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Amount)
	assert.Equal(t, int64(500), res.NewBalance)

	got := codeByID(t, f.st, sale.CodeID)
	assert.Equal(t, store.CodeConsumed, got.Status)
	require.NotNil(t, got.ConsumedByUserID)
	assert.Equal(t, f.customer.ID, *got.ConsumedByUserID)

	_, err = f.svc.Redeem(ctx, f.customer, sale.Code)
	require.ErrorIs(t, err, apperror.ErrCodeNotFound)

	u := storetest.User(t, f.st, f.customer.ID)
	assert.Equal(t, int64(500), u.CreditBalance)
	assert.Equal(t, 1, u.FailedRedeemCount)
}

func TestRedeemIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	sale := f.sold(t, 1000)

	lower := []byte(sale.Code)
	for i, b := range lower {
		if b >= 'A' && b <= 'Z' {
			lower[i] = b + ('a' - 'A')
		}
	}
	res, err := f.svc.Redeem(context.Background(), f.customer, string(lower))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Amount)
}

func TestRedeemResetsFailureCounter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sale := f.sold(t, 500)

	_, err := f.svc.Redeem(ctx, f.customer, "PS-NOPE-NOPE-NO")
	require.ErrorIs(t, err, apperror.ErrCodeNotFound)
	_, err = f.svc.Redeem(ctx, f.customer, "PS-NOPE-NOPE-NO")
	require.ErrorIs(t, err, apperror.ErrCodeNotFound)
	assert.Equal(t, 2, storetest.User(t, f.st, f.customer.ID).FailedRedeemCount)

	_, err = f.svc.Redeem(ctx, f.customer, sale.Code)
	require.NoError(t, err)
	assert.Zero(t, storetest.User(t, f.st, f.customer.ID).FailedRedeemCount)
}

func TestRedeemFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	fresh := f.generate(t, 500, f.staffA)
	southCode, err := f.svc.Generate(ctx, f.owner, 500, f.south.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.MarkSold(ctx, f.south, southCode[0].ID)
	require.NoError(t, err)

	inputs := map[string]string{
		"unknown":      "PS-XXXX-XXXX-XX",
		"fresh":        fresh.Code,
		"other branch": southCode[0].Code,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			customer := storetest.AddUser(t, f.st, "c-"+name, profile.RoleCustomer, "north")
			_, err := f.svc.Redeem(ctx, customer, input)
			require.ErrorIs(t, err, apperror.ErrCodeNotFound)
			assert.Equal(t, "this code does not exist", err.(*apperror.Error).Message)
			assert.Equal(t, 1, storetest.User(t, f.st, customer.ID).FailedRedeemCount)
		})
	}

	assert.Equal(t, store.CodeFresh, codeByID(t, f.st, fresh.ID).Status)
	assert.Equal(t, store.CodeSold, codeByID(t, f.st, southCode[0].ID).Status)
}

func TestRedeemEmptyInputIsNotCounted(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Redeem(context.Background(), f.customer, "   ")
	require.ErrorIs(t, err, apperror.ErrCodeRequired)
	assert.Equal(t, apperror.Validation, apperror.KindOf(err))
	assert.Zero(t, storetest.User(t, f.st, f.customer.ID).FailedRedeemCount)
}

func TestRedeemRequiresCustomer(t *testing.T) {
	f := newFixture(t)
	sale := f.sold(t, 500)

	_, err := f.svc.Redeem(context.Background(), f.staffA, sale.Code)
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestThreeFailuresBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	fresh := f.generate(t, 500, f.staffA)

	for i := 0; i < lockout.Threshold; i++ {
		_, err := f.svc.Redeem(ctx, f.customer, fresh.Code)
		require.ErrorIs(t, err, apperror.ErrCodeNotFound)
	}

	u := storetest.User(t, f.st, f.customer.ID)
	assert.True(t, u.Blocked)
	assert.Equal(t, 1, u.BlockedCount)

	snap := storetest.Snapshot(t, f.st)
	require.Len(t, snap.BlockEvents, 1)
	assert.Equal(t, lockout.ReasonThreeWrongCodes, snap.BlockEvents[0].Reason)
	assert.Equal(t, 1, f.pub.count(events.TopicUserBlocked))
	assert.Equal(t, lockout.Threshold, f.pub.count(events.TopicRedeemFailed))

	// a valid code is refused while blocked and stays SOLD
	sale := f.sold(t, 500)
	_, err := f.svc.Redeem(ctx, f.customer, sale.Code)
	require.ErrorIs(t, err, apperror.ErrAccountBlocked)
	assert.Equal(t, store.CodeSold, codeByID(t, f.st, sale.CodeID).Status)
	assert.Zero(t, storetest.User(t, f.st, f.customer.ID).CreditBalance)

	// blocked check precedes input validation
	_, err = f.svc.Redeem(ctx, f.customer, "")
	require.ErrorIs(t, err, apperror.ErrAccountBlocked)

	assert.Len(t, storetest.Snapshot(t, f.st).BlockEvents, 1)
}

func TestConcurrentRedeemCreditsOnce(t *testing.T) {
	f := newFixture(t)
	sale := f.sold(t, 2000)

	const n = 12
	customers := make([]store.User, n)
	for i := range customers {
		customers[i] = storetest.AddUser(t, f.st, fmt.Sprintf("racer-%d", i), profile.RoleCustomer, "north")
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for _, c := range customers {
		wg.Add(1)
		go func(c store.User) {
			defer wg.Done()
			if _, err := f.svc.Redeem(context.Background(), c, sale.Code); err == nil {
				successes.Add(1)
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())

	var total int64
	snap := storetest.Snapshot(t, f.st)
	for _, u := range snap.Users {
		total += u.CreditBalance
	}
	assert.Equal(t, int64(2000), total)
	assert.Equal(t, store.CodeConsumed, snap.CodeByID(sale.CodeID).Status)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.generate(t, 500, f.staffA)
	sale := f.sold(t, 1000)
	f.generate(t, 2000, f.staffB)
	newest := f.generate(t, 500, f.staffA)

	codes, err := f.svc.List(ctx, f.staffA)
	require.NoError(t, err)
	require.Len(t, codes, 3)
	assert.Equal(t, newest.ID, codes[0].ID)
	assert.Equal(t, first.ID, codes[1].ID)
	assert.Equal(t, sale.CodeID, codes[2].ID)

	all, err := f.svc.List(ctx, f.owner)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = f.svc.List(ctx, f.customer)
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestStatsAndExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.generate(t, 500, f.staffA)
	f.generate(t, 2000, f.staffB)
	sale := f.sold(t, 1000)
	f.sold(t, 500)
	_, err := f.svc.Redeem(ctx, f.customer, sale.Code)
	require.NoError(t, err)

	_, err = f.svc.Stats(ctx, f.staffA)
	require.ErrorIs(t, err, apperror.ErrForbidden)

	stats, err := f.svc.Stats(ctx, f.owner)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.UnsoldCount)
	assert.Equal(t, int64(2500), stats.UnsoldSum)
	assert.Equal(t, 1, stats.SoldCount)
	assert.Equal(t, int64(500), stats.SoldSum)
	assert.Equal(t, 1, stats.ConsumedCount)
	assert.Equal(t, int64(1000), stats.ConsumedSum)

	require.Len(t, stats.Staff, 3)
	a := stats.Staff[0]
	assert.Equal(t, "desk-a", a.Username)
	assert.Equal(t, 1, a.UnsoldCount)
	assert.Equal(t, 1, a.SoldCount)
	assert.Equal(t, 1, a.ConsumedCount)
	assert.Equal(t, "desk-b", stats.Staff[1].Username)
	assert.Equal(t, int64(2000), stats.Staff[1].UnsoldSum)
	assert.Equal(t, "desk-south", stats.Staff[2].Username)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportStats(ctx, f.owner, &buf))

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows(statsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Username", rows[0][1])
	assert.Equal(t, "desk-a", rows[1][1])
	assert.Equal(t, "TOTAL", rows[4][1])
	assert.Equal(t, "2500", rows[4][4])

	require.ErrorIs(t, f.svc.ExportStats(ctx, f.staffA, &bytes.Buffer{}), apperror.ErrForbidden)
}
