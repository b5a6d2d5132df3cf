// internal/membership/service.go
package membership

import (
	"context"

	"printshop/internal/profile"
	"printshop/internal/store"
)

// Service defines the interface for identity and account management.
type Service interface {
	Register(ctx context.Context, in RegisterInput) (store.PublicUser, error)
	CreateStaff(ctx context.Context, actor store.User, in StaffInput) (store.PublicUser, error)
	EnsureOwner(ctx context.Context, username, password string) (store.PublicUser, error)
	Login(ctx context.Context, username, password string) (LoginResult, error)
	Logout(ctx context.Context, token string) error
	Resolve(ctx context.Context, token string) (store.User, error)
	UpdateProfile(ctx context.Context, actor store.User, p profile.Profile) (store.PublicUser, error)
	ListUsers(ctx context.Context, actor store.User) ([]store.PublicUser, error)
}
