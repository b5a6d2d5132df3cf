// internal/order/implementation.go
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"printshop/internal/apperror"
	"printshop/internal/events"
	"printshop/internal/pricing"
	"printshop/internal/profile"
	"printshop/internal/store"
)

var errAlreadyPrinted = errors.New("order: already printed")

// service implements the Service interface.
type service struct {
	store     *store.Store
	publisher events.Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	debited metric.Int64Counter
}

// NewService creates a new order settlement instance.
func NewService(st *store.Store, publisher events.Publisher, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	debited, err := otel.Meter("printshop/order").Int64Counter("order.credit.debited",
		metric.WithDescription("Credit debited by checkouts"))
	if err != nil {
		logger.Warn("failed to create counter", "name", "order.credit.debited", "error", err)
		debited = noop.Int64Counter{}
	}

	return &service{
		store:     st,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("printshop/order"),
		now:       time.Now,
		debited:   debited,
	}
}

// CreateOrder prices the purchasable lines of the cart at this instant and
// debits the customer. Lines for missing, hidden or non-matching products are
// dropped. The debit and the order are committed together or not at all.
func (s *service) CreateOrder(ctx context.Context, actor store.User, items []CartItem) (store.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.create", trace.WithAttributes(
		attribute.Int64("user.id", actor.ID),
		attribute.Int("cart.lines", len(items)),
	))
	defer span.End()

	if actor.Role != profile.RoleCustomer {
		return store.Order{}, apperror.ErrForbidden
	}

	var (
		out     store.Order
		dropped int
	)
	err := s.store.Update(ctx, func(snap *store.Snapshot) error {
		u := snap.UserByID(actor.ID)
		if u == nil {
			return apperror.ErrUnauthenticated
		}
		if u.Blocked {
			return apperror.ErrAccountBlocked
		}
		if len(items) == 0 {
			return apperror.ErrEmptyCart
		}

		subject := u.Subject()
		lines := make([]store.OrderItem, 0, len(items))
		var sum int64
		for _, item := range items {
			p := snap.ProductByID(item.ProductID)
			if p == nil || p.Hidden || !profile.IsVisible(p.Target(), subject) {
				dropped++
				continue
			}
			qty := clampQty(item.Qty)
			quote := pricing.Price(p.Rule, snap.BranchConfig(p.Branch))
			total, ok := pricing.MulInt64(quote.FinalPrice, int64(qty))
			if !ok {
				return apperror.ErrAmountOutOfRange
			}
			if sum, ok = pricing.AddInt64(sum, total); !ok {
				return apperror.ErrAmountOutOfRange
			}
			lines = append(lines, store.OrderItem{
				ProductID: p.ID,
				Title:     p.Title,
				Qty:       qty,
				UnitPrice: quote.FinalPrice,
				LineTotal: total,
			})
		}
		if len(lines) == 0 {
			return apperror.ErrNoValidItems
		}
		if u.CreditBalance < sum {
			return apperror.ErrInsufficientCredit.WithMessage(
				fmt.Sprintf("order costs %d, balance is %d", sum, u.CreditBalance))
		}

		u.CreditBalance -= sum
		o := &store.Order{
			ID:        snap.NextID(store.KindOrders),
			Reference: uuid.New(),
			UserID:    u.ID,
			Username:  u.Username,
			Branch:    u.Branch,
			Items:     lines,
			Sum:       sum,
			Status:    store.OrderPaid,
			CreatedAt: s.now().UTC(),
		}
		snap.Orders = append(snap.Orders, o)
		out = detach(o)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return store.Order{}, err
	}

	s.debited.Add(ctx, out.Sum, metric.WithAttributes(attribute.String("branch", out.Branch)))
	s.logger.InfoContext(ctx, "order paid",
		"order_id", out.ID,
		"reference", out.Reference.String(),
		"user_id", out.UserID,
		"sum", out.Sum,
		"dropped_lines", dropped,
	)
	events.PublishAll(ctx, s.publisher, s.logger, events.Envelope{
		Topic: events.TopicOrderPaid,
		Payload: OrderPaidEvent{
			OrderID:   out.ID,
			Reference: out.Reference,
			UserID:    out.UserID,
			Branch:    out.Branch,
			Sum:       out.Sum,
			Lines:     len(out.Items),
			Dropped:   dropped,
			At:        out.CreatedAt,
		},
	})
	return out, nil
}

func clampQty(qty int) int {
	if qty < 1 {
		return 1
	}
	if qty > MaxQty {
		return MaxQty
	}
	return qty
}

// MarkPrinted flips a PAID order to PRINTED. Marking an order that is already
// PRINTED succeeds without changing it.
func (s *service) MarkPrinted(ctx context.Context, actor store.User, orderID int64) (store.Order, error) {
	if !actor.Role.IsStaff() {
		return store.Order{}, apperror.ErrForbidden
	}

	var out store.Order
	err := s.store.Update(ctx, func(snap *store.Snapshot) error {
		o := snap.OrderByID(orderID)
		if o == nil {
			return apperror.ErrNotFound.WithMessage("order not found")
		}
		if actor.Role == profile.RoleBranchStaff && o.Branch != actor.Branch {
			return apperror.ErrForbidden
		}
		if o.Status == store.OrderPrinted {
			out = detach(o)
			return errAlreadyPrinted
		}

		now := s.now().UTC()
		o.Status = store.OrderPrinted
		o.PrintedAt = &now
		out = detach(o)
		return nil
	})
	if errors.Is(err, errAlreadyPrinted) {
		return out, nil
	}
	if err != nil {
		return store.Order{}, err
	}

	s.logger.InfoContext(ctx, "order printed", "order_id", out.ID, "by", actor.ID)
	events.PublishAll(ctx, s.publisher, s.logger, events.Envelope{
		Topic: events.TopicOrderPrinted,
		Payload: OrderPrintedEvent{
			OrderID:  out.ID,
			Branch:   out.Branch,
			ByUserID: actor.ID,
			At:       *out.PrintedAt,
		},
	})
	return out, nil
}

// List returns the orders the actor may see, newest first.
func (s *service) List(ctx context.Context, actor store.User) ([]store.Order, error) {
	var out []store.Order
	err := s.store.View(ctx, func(snap *store.Snapshot) error {
		for _, o := range snap.Orders {
			switch actor.Role {
			case profile.RoleOwner:
			case profile.RoleBranchStaff:
				if o.Branch != actor.Branch {
					continue
				}
			default:
				if o.UserID != actor.ID {
					continue
				}
			}
			out = append(out, detach(o))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// detach copies an order out of the snapshot.
func detach(o *store.Order) store.Order {
	c := *o
	c.Items = append([]store.OrderItem(nil), o.Items...)
	return c
}
