package lockout

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"printshop/internal/apperror"
	"printshop/internal/events"
	"printshop/internal/profile"
	"printshop/internal/store"
)

// service implements the Service interface.
type service struct {
	store     *store.Store
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new lockout service instance.
func NewService(st *store.Store, publisher events.Publisher, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		store:     st,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Unblock lifts a block. Owners may unblock anyone, staff only users of
// their own branch.
func (s *service) Unblock(ctx context.Context, actor store.User, userID int64) (store.PublicUser, error) {
	if !actor.Role.IsStaff() {
		return store.PublicUser{}, apperror.ErrForbidden
	}

	var out store.PublicUser
	err := s.store.Update(ctx, func(snap *store.Snapshot) error {
		target := snap.UserByID(userID)
		if target == nil {
			return apperror.ErrNotFound.WithMessage("user not found")
		}
		if actor.Role == profile.RoleBranchStaff && target.Branch != actor.Branch {
			return apperror.ErrForbidden
		}
		target.Blocked = false
		target.FailedRedeemCount = 0
		out = target.Public()
		return nil
	})
	if err != nil {
		return store.PublicUser{}, err
	}

	s.logger.InfoContext(ctx, "user unblocked", "user_id", userID, "by", actor.ID)
	events.PublishAll(ctx, s.publisher, s.logger, events.Envelope{
		Topic: events.TopicUserUnblocked,
		Payload: UserUnblockedEvent{
			UserID:   userID,
			ByUserID: actor.ID,
			Branch:   out.Branch,
			At:       s.now().UTC(),
		},
	})
	return out, nil
}

// Events returns the block audit trail, newest first.
func (s *service) Events(ctx context.Context, actor store.User) ([]store.BlockEvent, error) {
	if !actor.Role.IsStaff() {
		return nil, apperror.ErrForbidden
	}

	var out []store.BlockEvent
	err := s.store.View(ctx, func(snap *store.Snapshot) error {
		for _, e := range snap.BlockEvents {
			if actor.Role == profile.RoleBranchStaff && e.Branch != actor.Branch {
				continue
			}
			out = append(out, *e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
