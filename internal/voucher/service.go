// internal/voucher/service.go
package voucher

import (
	"context"
	"io"

	"printshop/internal/store"
)

// Service defines the interface for the voucher ledger.
type Service interface {
	Generate(ctx context.Context, actor store.User, amount, staffID int64, count int) ([]store.VoucherCode, error)
	SetVisibility(ctx context.Context, actor store.User, codeID int64, staffID *int64) (store.VoucherCode, error)
	Hide(ctx context.Context, actor store.User, codeID int64) (store.VoucherCode, error)
	MarkSold(ctx context.Context, actor store.User, codeID int64) (Sale, error)
	Redeem(ctx context.Context, actor store.User, input string) (Redemption, error)
	List(ctx context.Context, actor store.User) ([]store.VoucherCode, error)
	Stats(ctx context.Context, actor store.User) (Stats, error)
	ExportStats(ctx context.Context, actor store.User, w io.Writer) error
}
