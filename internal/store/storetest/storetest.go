// Package storetest builds seeded in-memory stores for package tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"printshop/internal/pricing"
	"printshop/internal/profile"
	"printshop/internal/store"
)

// New opens an empty store on a memory backend.
func New(t testing.TB) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.NewMemoryBackend(), nil)
	require.NoError(t, err)
	return st
}

// AddUser inserts a user and returns a copy of it.
func AddUser(t testing.TB, st *store.Store, username string, role profile.Role, branch string, mutate ...func(*store.User)) store.User {
	t.Helper()
	var out store.User
	err := st.Update(context.Background(), func(snap *store.Snapshot) error {
		u := &store.User{
			ID:        snap.NextID(store.KindUsers),
			Username:  username,
			Role:      role,
			Branch:    branch,
			CreatedAt: time.Now().UTC(),
		}
		for _, m := range mutate {
			m(u)
		}
		snap.Users = append(snap.Users, u)
		out = *u
		return nil
	})
	require.NoError(t, err)
	return out
}

// AddProduct inserts a visible AUTO-priced product and returns a copy of it.
func AddProduct(t testing.TB, st *store.Store, title, branch string, pages int, mutate ...func(*store.Product)) store.Product {
	t.Helper()
	var out store.Product
	err := st.Update(context.Background(), func(snap *store.Snapshot) error {
		p := &store.Product{
			ID:     snap.NextID(store.KindProducts),
			Title:  title,
			Branch: branch,
			Rule: pricing.Rule{
				Pages:        pages,
				Mode:         pricing.ModeAuto,
				DiscountType: pricing.DiscountNone,
			},
			CreatedAt: time.Now().UTC(),
		}
		for _, m := range mutate {
			m(p)
		}
		snap.Products = append(snap.Products, p)
		out = *p
		return nil
	})
	require.NoError(t, err)
	return out
}

// User reads the current state of a user.
func User(t testing.TB, st *store.Store, id int64) store.User {
	t.Helper()
	var out store.User
	require.NoError(t, st.View(context.Background(), func(snap *store.Snapshot) error {
		u := snap.UserByID(id)
		require.NotNil(t, u)
		out = *u
		return nil
	}))
	return out
}

// Snapshot returns a deep copy of the current state.
func Snapshot(t testing.TB, st *store.Store) *store.Snapshot {
	t.Helper()
	var out *store.Snapshot
	require.NoError(t, st.View(context.Background(), func(snap *store.Snapshot) error {
		var err error
		out, err = snap.Clone()
		return err
	}))
	return out
}

// ID returns a pointer to v, for optional hierarchy fields.
func ID(v int64) *int64 { return &v }
