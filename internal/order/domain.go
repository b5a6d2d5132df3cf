// internal/order/domain.go
package order

import (
	"time"

	"github.com/google/uuid"
)

// MaxQty caps a single cart line.
const MaxQty = 1000

// CartItem is one requested line of a checkout.
type CartItem struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

// OrderPaidEvent is published after the balance was debited.
type OrderPaidEvent struct {
	OrderID   int64     `json:"order_id"`
	Reference uuid.UUID `json:"reference"`
	UserID    int64     `json:"user_id"`
	Branch    string    `json:"branch"`
	Sum       int64     `json:"sum"`
	Lines     int       `json:"lines"`
	Dropped   int       `json:"dropped"`
	At        time.Time `json:"at"`
}

// OrderPrintedEvent is published when staff hands over a print job.
type OrderPrintedEvent struct {
	OrderID  int64     `json:"order_id"`
	Branch   string    `json:"branch"`
	ByUserID int64     `json:"by_user_id"`
	At       time.Time `json:"at"`
}
