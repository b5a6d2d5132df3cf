package lockout

import (
	"context"

	"printshop/internal/store"
)

// Service defines the interface for privileged lockout management.
type Service interface {
	Unblock(ctx context.Context, actor store.User, userID int64) (store.PublicUser, error)
	Events(ctx context.Context, actor store.User) ([]store.BlockEvent, error)
}
