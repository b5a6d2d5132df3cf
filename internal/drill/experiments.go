// internal/drill/experiments.go
package drill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"printshop/internal/apperror"
	"printshop/internal/catalog"
	"printshop/internal/clients"
	"printshop/internal/membership"
	"printshop/internal/order"
	"printshop/internal/pricing"
)

const drillPassword = "drill-pass-123"

// Env is the server a drill runs against.
type Env struct {
	Anonymous   *clients.Client
	Owner       *clients.Client
	Branch      string
	Concurrency int
}

// RegisterExperiments registers the standard settlement drills.
func (e *Engine) RegisterExperiments(env Env) {
	e.RegisterExperiment(DoubleRedeemExperiment(env))
	e.RegisterExperiment(ConcurrentOverspendExperiment(env))
}

type actors struct {
	staff    *clients.Client
	staffID  int64
	customer *clients.Client
}

// newActors creates a fresh staff member and customer so repeated drills
// never share state.
func newActors(ctx context.Context, env Env) (actors, error) {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]

	staff, err := env.Owner.CreateStaff(ctx, membership.StaffInput{
		Username: "drill-s-" + suffix,
		Password: drillPassword,
		Branch:   env.Branch,
	})
	if err != nil {
		return actors{}, fmt.Errorf("failed to create staff: %w", err)
	}
	customer, err := env.Anonymous.Register(ctx, membership.RegisterInput{
		Username: "drill-c-" + suffix,
		Password: drillPassword,
		Branch:   env.Branch,
	})
	if err != nil {
		return actors{}, fmt.Errorf("failed to register customer: %w", err)
	}

	staffClient, err := env.Anonymous.Login(ctx, staff.Username, drillPassword)
	if err != nil {
		return actors{}, fmt.Errorf("failed to log in staff: %w", err)
	}
	customerClient, err := env.Anonymous.Login(ctx, customer.Username, drillPassword)
	if err != nil {
		return actors{}, fmt.Errorf("failed to log in customer: %w", err)
	}
	return actors{staff: staffClient, staffID: staff.ID, customer: customerClient}, nil
}

// soldCode generates one code for the staff member and sells it.
func soldCode(ctx context.Context, env Env, a actors, amount int64) (string, error) {
	codes, err := env.Owner.GenerateCodes(ctx, amount, a.staffID, 1)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	if len(codes) != 1 {
		return "", fmt.Errorf("expected 1 code, got %d", len(codes))
	}
	sale, err := a.staff.MarkSold(ctx, codes[0].ID)
	if err != nil {
		return "", fmt.Errorf("failed to sell code: %w", err)
	}
	return sale.Code, nil
}

// fanOut calls fn from n goroutines released at the same moment.
func fanOut(n int, fn func()) {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			fn()
		}()
	}
	close(start)
	wg.Wait()
}

// DoubleRedeemExperiment redeems one sold code from many goroutines at once.
func DoubleRedeemExperiment(env Env) Experiment {
	const amount = 1000

	return Experiment{
		Name:       "double-redeem",
		Hypothesis: "A sold code credits its amount exactly once under concurrent redeems",
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "voucher-ledger",
				Execute: func(ctx context.Context, obs *Observations) error {
					a, err := newActors(ctx, env)
					if err != nil {
						return err
					}
					code, err := soldCode(ctx, env, a, amount)
					if err != nil {
						return err
					}

					fanOut(env.Concurrency, func() {
						_, err := a.customer.Redeem(ctx, code)
						switch {
						case err == nil:
							obs.Add("redeem_successes", 1)
						case errors.Is(err, apperror.ErrCodeNotFound), errors.Is(err, apperror.ErrAccountBlocked):
							obs.Add("redeem_rejections", 1)
						default:
							obs.Add("unexpected_errors", 1)
						}
					})

					me, err := a.customer.Me(ctx)
					if err != nil {
						return fmt.Errorf("failed to read balance: %w", err)
					}
					obs.Set("credited_amount", float64(me.CreditBalance))
					obs.Add("unexpected_errors", 0)
					obs.Add("redeem_successes", 0)
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "redeem_successes",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "exactly one redeem must succeed",
			},
			{
				Metric:    "credited_amount",
				Condition: func(v float64) bool { return v == amount },
				Message:   "the balance must grow by the code amount once",
			},
			{
				Metric:    "unexpected_errors",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "losing redeems must fail with a domain error",
			},
		},
	}
}

// ConcurrentOverspendExperiment fires more simultaneous checkouts than the
// balance can pay for.
func ConcurrentOverspendExperiment(env Env) Experiment {
	const (
		topUp = 1000
		price = 300
	)

	return Experiment{
		Name:       "concurrent-overspend",
		Hypothesis: "Concurrent checkouts never drive a balance below zero",
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "order-settlement",
				Execute: func(ctx context.Context, obs *Observations) error {
					a, err := newActors(ctx, env)
					if err != nil {
						return err
					}
					code, err := soldCode(ctx, env, a, topUp)
					if err != nil {
						return err
					}
					if _, err := a.customer.Redeem(ctx, code); err != nil {
						return fmt.Errorf("failed to top up: %w", err)
					}
					product, err := a.staff.AddProduct(ctx, catalog.ProductInput{
						Title:      "Drill handout",
						Pages:      1,
						Mode:       pricing.ModeFixed,
						FixedPrice: price,
					})
					if err != nil {
						return fmt.Errorf("failed to add product: %w", err)
					}

					fanOut(env.Concurrency, func() {
						_, err := a.customer.CreateOrder(ctx, []order.CartItem{{ProductID: product.ID, Qty: 1}})
						switch {
						case err == nil:
							obs.Add("order_successes", 1)
						case errors.Is(err, apperror.ErrInsufficientCredit):
							obs.Add("order_rejections", 1)
						default:
							obs.Add("unexpected_errors", 1)
						}
					})

					me, err := a.customer.Me(ctx)
					if err != nil {
						return fmt.Errorf("failed to read balance: %w", err)
					}
					successes, _ := obs.Get("order_successes")
					obs.Set("final_balance", float64(me.CreditBalance))
					consistent := 0.0
					if float64(me.CreditBalance) == topUp-price*successes {
						consistent = 1
					}
					obs.Set("balance_consistent", consistent)
					obs.Add("unexpected_errors", 0)
					obs.Add("order_successes", 0)
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "final_balance",
				Condition: func(v float64) bool { return v >= 0 },
				Message:   "the balance must never go negative",
			},
			{
				Metric:    "order_successes",
				Condition: func(v float64) bool { return v <= topUp/price },
				Message:   "no more orders may be paid than the balance covers",
			},
			{
				Metric:    "balance_consistent",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "the balance must equal the top-up minus paid orders",
			},
			{
				Metric:    "unexpected_errors",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "rejected checkouts must fail with INSUFFICIENT_CREDIT",
			},
		},
	}
}
