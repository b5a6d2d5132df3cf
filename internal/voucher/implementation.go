// internal/voucher/implementation.go
package voucher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"printshop/internal/apperror"
	"printshop/internal/events"
	"printshop/internal/lockout"
	"printshop/internal/profile"
	"printshop/internal/store"
)

// service implements the Service interface.
type service struct {
	store     *store.Store
	publisher events.Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
	random    io.Reader
	now       func() time.Time

	generated metric.Int64Counter
	redeems   metric.Int64Counter
}

// NewService creates a new voucher ledger instance.
func NewService(st *store.Store, publisher events.Publisher, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("printshop/voucher")

	generated, err := meter.Int64Counter("voucher.codes.generated",
		metric.WithDescription("Voucher codes created"))
	if err != nil {
		logger.Warn("failed to create counter", "name", "voucher.codes.generated", "error", err)
		generated = noop.Int64Counter{}
	}
	redeems, err := meter.Int64Counter("voucher.redeem.attempts",
		metric.WithDescription("Redeem attempts by outcome"))
	if err != nil {
		logger.Warn("failed to create counter", "name", "voucher.redeem.attempts", "error", err)
		redeems = noop.Int64Counter{}
	}

	return &service{
		store:     st,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("printshop/voucher"),
		random:    defaultRandom,
		now:       time.Now,
		generated: generated,
		redeems:   redeems,
	}
}

func clampCount(count int) int {
	if count < 1 {
		return 1
	}
	if count > MaxBatch {
		return MaxBatch
	}
	return count
}

// Generate creates a batch of FRESH codes assigned to, and visible only to,
// the target staff member.
func (s *service) Generate(ctx context.Context, actor store.User, amount, staffID int64, count int) ([]store.VoucherCode, error) {
	ctx, span := s.tracer.Start(ctx, "voucher.generate", trace.WithAttributes(
		attribute.Int64("voucher.amount", amount),
		attribute.Int64("voucher.staff_id", staffID),
	))
	defer span.End()

	if actor.Role != profile.RoleOwner {
		return nil, apperror.ErrForbidden
	}
	if !validAmount(amount) {
		return nil, apperror.ErrInvalidAmount
	}
	count = clampCount(count)

	var (
		out    []store.VoucherCode
		branch string
	)
	err := s.store.Update(ctx, func(snap *store.Snapshot) error {
		staff := snap.UserByID(staffID)
		if staff == nil || staff.Role != profile.RoleBranchStaff {
			return apperror.ErrStaffNotFound
		}
		branch = staff.Branch

		taken := make(map[string]struct{}, len(snap.Codes)+count)
		for _, c := range snap.Codes {
			taken[c.Code] = struct{}{}
		}

		now := s.now().UTC()
		out = make([]store.VoucherCode, 0, count)
		for i := 0; i < count; i++ {
			code, err := uniqueCode(s.random, taken)
			if err != nil {
				return fmt.Errorf("failed to generate code: %w", err)
			}
			assigned, visible := staff.ID, staff.ID
			c := &store.VoucherCode{
				ID:               snap.NextID(store.KindCodes),
				Code:             code,
				Amount:           amount,
				Status:           store.CodeFresh,
				Branch:           staff.Branch,
				AssignedStaffID:  &assigned,
				VisibleToStaffID: &visible,
				CreatedAt:        now,
			}
			snap.Codes = append(snap.Codes, c)
			out = append(out, *c)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.generated.Add(ctx, int64(len(out)), metric.WithAttributes(
		attribute.String("branch", branch),
		attribute.Int64("amount", amount),
	))
	s.logger.InfoContext(ctx, "codes generated", "staff_id", staffID, "branch", branch, "amount", amount, "count", len(out))
	events.PublishAll(ctx, s.publisher, s.logger, events.Envelope{
		Topic: events.TopicCodesGenerated,
		Payload: CodesGeneratedEvent{
			StaffID: staffID,
			Branch:  branch,
			Amount:  amount,
			Count:   len(out),
			At:      s.now().UTC(),
		},
	})
	return out, nil
}

// SetVisibility hands a FRESH code to a staff member of its branch, or hides
// it when staffID is nil.
func (s *service) SetVisibility(ctx context.Context, actor store.User, codeID int64, staffID *int64) (store.VoucherCode, error) {
	if actor.Role != profile.RoleOwner {
		return store.VoucherCode{}, apperror.ErrForbidden
	}

	var out store.VoucherCode
	err := s.store.Update(ctx, func(snap *store.Snapshot) error {
		c := snap.CodeByID(codeID)
		if c == nil {
			return apperror.ErrNotFound.WithMessage("code not found")
		}
		if c.Status != store.CodeFresh {
			return apperror.ErrInvalidState.WithMessage("visibility can only change while the code is FRESH")
		}
		if staffID == nil {
			c.VisibleToStaffID = nil
			out = *c
			return nil
		}

		staff := snap.UserByID(*staffID)
		if staff == nil || staff.Role != profile.RoleBranchStaff || staff.Branch != c.Branch {
			return apperror.ErrStaffNotFound.WithMessage("staff member not found in the code's branch")
		}
		visible := staff.ID
		c.VisibleToStaffID = &visible
		out = *c
		return nil
	})
	if err != nil {
		return store.VoucherCode{}, err
	}

	s.logger.InfoContext(ctx, "code visibility changed", "code_id", codeID, "hidden", out.VisibleToStaffID == nil)
	return out, nil
}

// Hide takes a FRESH code away from every staff member.
func (s *service) Hide(ctx context.Context, actor store.User, codeID int64) (store.VoucherCode, error) {
	return s.SetVisibility(ctx, actor, codeID, nil)
}

// MarkSold reveals a FRESH code to the staff member it is visible to.
func (s *service) MarkSold(ctx context.Context, actor store.User, codeID int64) (Sale, error) {
	ctx, span := s.tracer.Start(ctx, "voucher.mark_sold", trace.WithAttributes(
		attribute.Int64("voucher.code_id", codeID),
	))
	defer span.End()

	var (
		sale   Sale
		branch string
	)
	err := s.store.Update(ctx, func(snap *store.Snapshot) error {
		c := snap.CodeByID(codeID)
		if c == nil {
			return apperror.ErrNotFound.WithMessage("code not found")
		}
		if !c.VisibleTo(actor.ID) {
			return apperror.ErrNotAssigned
		}
		if c.Status != store.CodeFresh {
			return apperror.ErrInvalidState.WithMessage("code was already sold")
		}

		now := s.now().UTC()
		seller := actor.ID
		c.Status = store.CodeSold
		c.SoldAt = &now
		c.SoldByStaffID = &seller

		branch = c.Branch
		sale = Sale{CodeID: c.ID, Code: c.Code, Amount: c.Amount, SoldAt: now}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Sale{}, err
	}

	s.logger.InfoContext(ctx, "code sold", "code_id", codeID, "staff_id", actor.ID, "amount", sale.Amount)
	events.PublishAll(ctx, s.publisher, s.logger, events.Envelope{
		Topic: events.TopicCodeSold,
		Payload: CodeSoldEvent{
			CodeID:  sale.CodeID,
			StaffID: actor.ID,
			Branch:  branch,
			Amount:  sale.Amount,
			At:      sale.SoldAt,
		},
	})
	return sale, nil
}

// Redeem consumes a SOLD code of the customer's branch and credits its
// amount. Every other lookup outcome is reported as ErrCodeNotFound and
// counted as a failed attempt, which is committed even though the call fails.
func (s *service) Redeem(ctx context.Context, actor store.User, input string) (Redemption, error) {
	ctx, span := s.tracer.Start(ctx, "voucher.redeem", trace.WithAttributes(
		attribute.Int64("user.id", actor.ID),
	))
	defer span.End()

	if actor.Role != profile.RoleCustomer {
		return Redemption{}, apperror.ErrForbidden
	}
	code := Normalize(input)

	var (
		res      Redemption
		failed   *lockout.Result
		codeID   int64
		user     store.User
		rejected error
	)
	now := s.now().UTC()
	err := s.store.Update(ctx, func(snap *store.Snapshot) error {
		u := snap.UserByID(actor.ID)
		if u == nil {
			return apperror.ErrUnauthenticated
		}
		if u.Blocked {
			return apperror.ErrAccountBlocked
		}
		if code == "" {
			return apperror.ErrCodeRequired
		}

		c := snap.CodeByValue(code)
		if c == nil || c.Status != store.CodeSold || c.Branch != u.Branch {
			r := lockout.RecordFailedRedeem(snap, u, now)
			failed = &r
			user = *u
			rejected = apperror.ErrCodeNotFound
			return nil
		}

		consumer := u.ID
		c.Status = store.CodeConsumed
		c.ConsumedAt = &now
		c.ConsumedByUserID = &consumer
		u.CreditBalance += c.Amount
		lockout.RecordSuccessfulRedeem(u)

		codeID = c.ID
		user = *u
		res = Redemption{Amount: c.Amount, NewBalance: u.CreditBalance}
		return nil
	})
	if err != nil {
		if apperror.KindOf(err) == apperror.AccountBlocked {
			s.redeems.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "blocked")))
		}
		span.RecordError(err)
		return Redemption{}, err
	}

	if rejected != nil {
		s.redeems.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "rejected")))
		s.logger.WarnContext(ctx, "redeem rejected", "user_id", user.ID, "attempts", failed.Attempts, "blocked", failed.Blocked)

		batch := []events.Envelope{{
			Topic: events.TopicRedeemFailed,
			Payload: RedeemFailedEvent{
				UserID:   user.ID,
				Branch:   user.Branch,
				Attempts: failed.Attempts,
				Blocked:  failed.Blocked,
				At:       now,
			},
		}}
		if failed.Blocked {
			s.logger.WarnContext(ctx, "user blocked", "user_id", user.ID, "branch", user.Branch, "reason", lockout.ReasonThreeWrongCodes)
			batch = append(batch, events.Envelope{
				Topic: events.TopicUserBlocked,
				Payload: lockout.UserBlockedEvent{
					UserID:   user.ID,
					Username: user.Username,
					Branch:   user.Branch,
					Reason:   lockout.ReasonThreeWrongCodes,
					At:       now,
				},
			})
		}
		events.PublishAll(ctx, s.publisher, s.logger, batch...)
		return Redemption{}, rejected
	}

	s.redeems.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	s.logger.InfoContext(ctx, "code redeemed", "user_id", user.ID, "code_id", codeID, "amount", res.Amount)
	events.PublishAll(ctx, s.publisher, s.logger, events.Envelope{
		Topic: events.TopicCodeRedeemed,
		Payload: CodeRedeemedEvent{
			CodeID: codeID,
			UserID: user.ID,
			Branch: user.Branch,
			Amount: res.Amount,
			At:     now,
		},
	})
	return res, nil
}

// List returns every code for the owner and the codes visible to a staff
// member otherwise, FRESH first, newest first within a status.
func (s *service) List(ctx context.Context, actor store.User) ([]store.VoucherCode, error) {
	if !actor.Role.IsStaff() {
		return nil, apperror.ErrForbidden
	}

	var out []store.VoucherCode
	err := s.store.View(ctx, func(snap *store.Snapshot) error {
		for _, c := range snap.Codes {
			if actor.Role == profile.RoleBranchStaff && !c.VisibleTo(actor.ID) {
				continue
			}
			out = append(out, *c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := statusRank(out[i].Status), statusRank(out[j].Status)
		if ri != rj {
			return ri < rj
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Stats aggregates the ledger per staff member. Unsold codes count for the
// staff member they are visible to, sold and consumed codes for the seller.
func (s *service) Stats(ctx context.Context, actor store.User) (Stats, error) {
	if actor.Role != profile.RoleOwner {
		return Stats{}, apperror.ErrForbidden
	}

	var out Stats
	err := s.store.View(ctx, func(snap *store.Snapshot) error {
		byStaff := make(map[int64]*StaffStats)
		for _, u := range snap.Users {
			if u.Role == profile.RoleBranchStaff {
				byStaff[u.ID] = &StaffStats{StaffID: u.ID, Username: u.Username, Branch: u.Branch}
			}
		}
		lookup := func(id *int64) *StaffStats {
			if id == nil {
				return nil
			}
			return byStaff[*id]
		}

		for _, c := range snap.Codes {
			switch c.Status {
			case store.CodeFresh:
				out.UnsoldCount++
				out.UnsoldSum += c.Amount
				if st := lookup(c.VisibleToStaffID); st != nil {
					st.UnsoldCount++
					st.UnsoldSum += c.Amount
				}
			case store.CodeSold:
				out.SoldCount++
				out.SoldSum += c.Amount
				if st := lookup(c.SoldByStaffID); st != nil {
					st.SoldCount++
					st.SoldSum += c.Amount
				}
			case store.CodeConsumed:
				out.ConsumedCount++
				out.ConsumedSum += c.Amount
				if st := lookup(c.SoldByStaffID); st != nil {
					st.ConsumedCount++
					st.ConsumedSum += c.Amount
				}
			}
		}

		out.Staff = make([]StaffStats, 0, len(byStaff))
		for _, st := range byStaff {
			out.Staff = append(out.Staff, *st)
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	sort.Slice(out.Staff, func(i, j int) bool {
		if out.Staff[i].Branch != out.Staff[j].Branch {
			return out.Staff[i].Branch < out.Staff[j].Branch
		}
		return out.Staff[i].Username < out.Staff[j].Username
	})
	return out, nil
}
