// internal/order/service.go
package order

import (
	"context"

	"printshop/internal/store"
)

// Service defines the interface for order settlement.
type Service interface {
	CreateOrder(ctx context.Context, actor store.User, items []CartItem) (store.Order, error)
	MarkPrinted(ctx context.Context, actor store.User, orderID int64) (store.Order, error)
	List(ctx context.Context, actor store.User) ([]store.Order, error)
}
