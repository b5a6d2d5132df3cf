// internal/membership/domain.go
package membership

import (
	"time"

	"printshop/internal/profile"
	"printshop/internal/store"
)

// RegisterInput is a customer self-registration.
type RegisterInput struct {
	Username string          `json:"username" validate:"required,username"`
	Password string          `json:"password" validate:"required,min=8,max=128"`
	Branch   string          `json:"branch" validate:"required,branch"`
	Profile  profile.Profile `json:"profile"`
}

// StaffInput creates a branch staff account.
type StaffInput struct {
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Branch   string `json:"branch" validate:"required,branch"`
}

// LoginResult carries the opaque session token.
type LoginResult struct {
	Token string           `json:"token"`
	User  store.PublicUser `json:"user"`
}

// Options tunes the per-key rate limits.
type Options struct {
	LoginRatePerMinute int
	LoginBurst         int
}

// DefaultOptions mirrors the historical 5 attempts per minute.
func DefaultOptions() Options {
	return Options{LoginRatePerMinute: 5, LoginBurst: 5}
}

// UserRegisteredEvent is published when an account is created.
type UserRegisteredEvent struct {
	UserID   int64        `json:"user_id"`
	Username string       `json:"username"`
	Role     profile.Role `json:"role"`
	Branch   string       `json:"branch"`
	At       time.Time    `json:"at"`
}
