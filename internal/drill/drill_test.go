package drill

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printshop/internal/catalog"
	"printshop/internal/clients"
	"printshop/internal/events"
	"printshop/internal/httpapi"
	"printshop/internal/lockout"
	"printshop/internal/membership"
	"printshop/internal/order"
	"printshop/internal/store/storetest"
	"printshop/internal/voucher"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) Env {
	t.Helper()
	ctx := context.Background()
	st := storetest.New(t)
	logger := quietLogger()
	members := membership.NewService(st, events.Discard{}, logger, membership.Options{LoginRatePerMinute: 6000, LoginBurst: 100})
	_, err := members.EnsureOwner(ctx, "boss", "owner-pass")
	require.NoError(t, err)

	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Services{
		Store:      st,
		Membership: members,
		Voucher:    voucher.NewService(st, events.Discard{}, logger),
		Lockout:    lockout.NewService(st, events.Discard{}, logger),
		Order:      order.NewService(st, events.Discard{}, logger),
		Catalog:    catalog.NewService(st, nil, logger),
	}, logger))
	t.Cleanup(srv.Close)

	anon := clients.NewClient(srv.URL, srv.Client())
	owner, err := anon.Login(ctx, "boss", "owner-pass")
	require.NoError(t, err)
	return Env{Anonymous: anon, Owner: owner, Branch: "drill", Concurrency: 8}
}

func TestDrillExperimentsHold(t *testing.T) {
	env := newEnv(t)
	engine := NewEngine(quietLogger())
	engine.RegisterExperiments(env)
	require.Len(t, engine.Experiments(), 2)

	require.NoError(t, engine.Execute(context.Background(), "test drill"))

	results := engine.Results()
	require.Len(t, results, 2)

	redeem := results[0]
	assert.True(t, redeem.HypothesisHeld, "%+v", redeem)
	assert.Equal(t, 1.0, redeem.Observations["redeem_successes"])
	assert.Equal(t, 1000.0, redeem.Observations["credited_amount"])

	spend := results[1]
	assert.True(t, spend.HypothesisHeld, "%+v", spend)
	assert.Equal(t, 3.0, spend.Observations["order_successes"])
	assert.Equal(t, 100.0, spend.Observations["final_balance"])
}

func TestRunExperimentReportsViolations(t *testing.T) {
	engine := NewEngine(quietLogger())

	res := engine.RunExperiment(context.Background(), Experiment{
		Name: "broken",
		Method: []Action{{
			Target: "fake",
			Execute: func(_ context.Context, obs *Observations) error {
				obs.Set("value", 5)
				return nil
			},
		}},
		Validation: []Assertion{
			{Metric: "value", Condition: func(v float64) bool { return v < 3 }, Message: "too high"},
			{Metric: "missing", Condition: func(float64) bool { return true }, Message: "absent"},
		},
	})
	assert.False(t, res.HypothesisHeld)
	require.Len(t, res.Violations, 2)
	assert.Equal(t, 5.0, res.Violations[0].Actual)
	assert.Equal(t, "missing", res.Violations[1].Metric)

	res = engine.RunExperiment(context.Background(), Experiment{
		Name: "failing action",
		Method: []Action{{
			Target:  "fake",
			Execute: func(context.Context, *Observations) error { return errors.New("down") },
		}},
	})
	assert.False(t, res.HypothesisHeld)
	require.Len(t, res.ErrorEvents, 1)
	assert.Equal(t, "fake", res.ErrorEvents[0].Component)

	engine.RegisterExperiment(Experiment{Name: "noop"})
	engine.RegisterExperiment(Experiment{
		Name:   "fails",
		Method: []Action{{Execute: func(context.Context, *Observations) error { return errors.New("x") }}},
	})
	require.Error(t, engine.Execute(context.Background(), "mixed"))
}
