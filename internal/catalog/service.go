// internal/catalog/service.go
package catalog

import (
	"context"

	"printshop/internal/pricing"
	"printshop/internal/store"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddProduct(ctx context.Context, actor store.User, in ProductInput) (store.Product, error)
	UpdateProduct(ctx context.Context, actor store.User, id int64, patch ProductPatch) (store.Product, error)
	RemoveProduct(ctx context.Context, actor store.User, id int64) error
	ListForUser(ctx context.Context, user store.User, q Query) ([]Listing, error)
	AdminList(ctx context.Context, actor store.User, branch string) ([]Listing, error)
	Quote(ctx context.Context, user store.User, id int64) (Listing, error)
	BranchConfig(ctx context.Context, actor store.User, branch string) (pricing.Config, error)
	UpdateBranchConfig(ctx context.Context, actor store.User, branch string, cfg pricing.Config) (pricing.Config, error)
}
