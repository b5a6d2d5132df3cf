// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"printshop/internal/apperror"
	"printshop/internal/events"
	"printshop/internal/profile"
	"printshop/internal/store"
	"printshop/internal/validation"
)

// service implements the Service interface.
type service struct {
	store     *store.Store
	publisher events.Publisher
	logger    *slog.Logger
	limiter   *limiterSet
	now       func() time.Time
}

// NewService creates a new membership service instance.
func NewService(st *store.Store, publisher events.Publisher, logger *slog.Logger, opts Options) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		store:     st,
		publisher: publisher,
		logger:    logger,
		limiter:   newLimiterSet(opts.LoginRatePerMinute, opts.LoginBurst),
		now:       time.Now,
	}
}

// Register creates a customer account.
func (s *service) Register(ctx context.Context, in RegisterInput) (store.PublicUser, error) {
	in.Username = strings.TrimSpace(strings.ToLower(in.Username))
	if err := validation.Struct(in); err != nil {
		return store.PublicUser{}, err
	}
	if !s.limiter.Allow("register:" + in.Branch) {
		return store.PublicUser{}, apperror.ErrRateLimited
	}

	return s.createUser(ctx, in.Username, in.Password, profile.RoleCustomer, in.Branch, in.Profile)
}

// CreateStaff creates a branch staff account. Owner only.
func (s *service) CreateStaff(ctx context.Context, actor store.User, in StaffInput) (store.PublicUser, error) {
	if actor.Role != profile.RoleOwner {
		return store.PublicUser{}, apperror.ErrForbidden
	}
	in.Username = strings.TrimSpace(strings.ToLower(in.Username))
	if err := validation.Struct(in); err != nil {
		return store.PublicUser{}, err
	}

	return s.createUser(ctx, in.Username, in.Password, profile.RoleBranchStaff, in.Branch, profile.Profile{})
}

// EnsureOwner creates the owner account unless it already exists.
func (s *service) EnsureOwner(ctx context.Context, username, password string) (store.PublicUser, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return store.PublicUser{}, apperror.ErrInvalidInput.WithMessage("owner username and password are required")
	}

	var (
		existing store.PublicUser
		found    bool
	)
	err := s.store.View(ctx, func(snap *store.Snapshot) error {
		u := snap.UserByUsername(username)
		if u == nil {
			return nil
		}
		if u.Role != profile.RoleOwner {
			return fmt.Errorf("username %q is taken by a %s account", username, u.Role)
		}
		existing, found = u.Public(), true
		return nil
	})
	if err != nil {
		return store.PublicUser{}, err
	}
	if found {
		return existing, nil
	}

	u, err := s.createUser(ctx, username, password, profile.RoleOwner, "", profile.Profile{})
	if err != nil {
		return store.PublicUser{}, err
	}
	s.logger.InfoContext(ctx, "owner account created", "username", username)
	return u, nil
}

func (s *service) createUser(ctx context.Context, username, password string, role profile.Role, branch string, p profile.Profile) (store.PublicUser, error) {
	hash, salt, err := hashPassword(password)
	if err != nil {
		return store.PublicUser{}, fmt.Errorf("failed to hash password: %w", err)
	}

	var out store.PublicUser
	err = s.store.Update(ctx, func(snap *store.Snapshot) error {
		if snap.UserByUsername(username) != nil {
			return apperror.ErrUsernameTaken
		}
		u := &store.User{
			ID:           snap.NextID(store.KindUsers),
			Username:     username,
			Role:         role,
			Branch:       branch,
			Profile:      p,
			PasswordHash: hash,
			PasswordSalt: salt,
			CreatedAt:    s.now().UTC(),
		}
		snap.Users = append(snap.Users, u)
		out = u.Public()
		return nil
	})
	if err != nil {
		return store.PublicUser{}, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", out.ID, "role", out.Role, "branch", out.Branch)
	events.PublishAll(ctx, s.publisher, s.logger, events.Envelope{
		Topic: events.TopicUserRegistered,
		Payload: UserRegisteredEvent{
			UserID:   out.ID,
			Username: out.Username,
			Role:     out.Role,
			Branch:   out.Branch,
			At:       out.CreatedAt,
		},
	})
	return out, nil
}

// Login verifies the credentials and opens a session.
func (s *service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if !s.limiter.Allow("login:" + username) {
		return LoginResult{}, apperror.ErrRateLimited
	}

	var candidate store.User
	err := s.store.View(ctx, func(snap *store.Snapshot) error {
		u := snap.UserByUsername(username)
		if u == nil {
			return apperror.ErrInvalidCredentials
		}
		candidate = *u
		return nil
	})
	if err != nil {
		return LoginResult{}, err
	}

	ok, err := verifyPassword(password, candidate.PasswordSalt, candidate.PasswordHash)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		s.logger.WarnContext(ctx, "login failed", "username", username)
		return LoginResult{}, apperror.ErrInvalidCredentials
	}

	token := uuid.NewString()
	var out LoginResult
	err = s.store.Update(ctx, func(snap *store.Snapshot) error {
		u := snap.UserByID(candidate.ID)
		if u == nil {
			return apperror.ErrInvalidCredentials
		}
		snap.Sessions[token] = store.Session{UserID: u.ID, CreatedAt: s.now().UTC()}
		out = LoginResult{Token: token, User: u.Public()}
		return nil
	})
	if err != nil {
		return LoginResult{}, err
	}
	return out, nil
}

func (s *service) Logout(ctx context.Context, token string) error {
	return s.store.Update(ctx, func(snap *store.Snapshot) error {
		if _, ok := snap.Sessions[token]; !ok {
			return apperror.ErrUnauthenticated
		}
		delete(snap.Sessions, token)
		return nil
	})
}

// Resolve maps a session token to the current state of its user.
func (s *service) Resolve(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, apperror.ErrUnauthenticated
	}

	var out store.User
	err := s.store.View(ctx, func(snap *store.Snapshot) error {
		sess, ok := snap.Sessions[token]
		if !ok {
			return apperror.ErrUnauthenticated
		}
		u := snap.UserByID(sess.UserID)
		if u == nil {
			return apperror.ErrUnauthenticated
		}
		out = *u
		return nil
	})
	return out, err
}

// UpdateProfile replaces the curriculum selection of a customer.
func (s *service) UpdateProfile(ctx context.Context, actor store.User, p profile.Profile) (store.PublicUser, error) {
	if actor.Role != profile.RoleCustomer {
		return store.PublicUser{}, apperror.ErrForbidden
	}

	var out store.PublicUser
	err := s.store.Update(ctx, func(snap *store.Snapshot) error {
		u := snap.UserByID(actor.ID)
		if u == nil {
			return apperror.ErrNotFound.WithMessage("user not found")
		}
		u.Profile = p
		out = u.Public()
		return nil
	})
	if err != nil {
		return store.PublicUser{}, err
	}
	return out, nil
}

// ListUsers returns every account for the owner and the accounts of their
// own branch for staff.
func (s *service) ListUsers(ctx context.Context, actor store.User) ([]store.PublicUser, error) {
	if !actor.Role.IsStaff() {
		return nil, apperror.ErrForbidden
	}

	var out []store.PublicUser
	err := s.store.View(ctx, func(snap *store.Snapshot) error {
		for _, u := range snap.Users {
			if actor.Role == profile.RoleBranchStaff && u.Branch != actor.Branch {
				continue
			}
			out = append(out, u.Public())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
