// internal/drill/drill.go
package drill

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Experiment is one abuse scenario run against a live server.
type Experiment struct {
	Name       string
	Hypothesis string
	Method     []Action
	Validation []Assertion
}

// Action drives the server and records what it saw into the result.
type Action struct {
	Type    string
	Target  string
	Execute func(ctx context.Context, obs *Observations) error
}

// Assertion checks one observed value after the method ran.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

// Observations collects named values from concurrently running actions.
type Observations struct {
	mu     sync.Mutex
	values map[string]float64
}

func newObservations() *Observations {
	return &Observations{values: make(map[string]float64)}
}

func (o *Observations) Set(name string, v float64) {
	o.mu.Lock()
	o.values[name] = v
	o.mu.Unlock()
}

func (o *Observations) Add(name string, delta float64) {
	o.mu.Lock()
	o.values[name] += delta
	o.mu.Unlock()
}

func (o *Observations) Get(name string) (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.values[name]
	return v, ok
}

func (o *Observations) snapshot() map[string]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]float64, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}

// Result captures one experiment execution.
type Result struct {
	ExperimentName string             `json:"experiment_name"`
	StartTime      time.Time          `json:"start_time"`
	EndTime        time.Time          `json:"end_time"`
	Duration       time.Duration      `json:"duration"`
	HypothesisHeld bool               `json:"hypothesis_held"`
	Observations   map[string]float64 `json:"observations"`
	Violations     []Violation        `json:"violations"`
	ErrorEvents    []ErrorEvent       `json:"error_events"`
}

type Violation struct {
	Metric  string  `json:"metric"`
	Actual  float64 `json:"actual"`
	Message string  `json:"message"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// Engine runs registered experiments one after another.
type Engine struct {
	tracer      trace.Tracer
	logger      *slog.Logger
	experiments []Experiment
	results     []Result
	mu          sync.Mutex
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		tracer: otel.Tracer("printshop/drill"),
		logger: logger,
	}
}

func (e *Engine) RegisterExperiment(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// RunExperiment executes the method and then validates every assertion. A
// failing action is recorded and the remaining actions are skipped.
func (e *Engine) RunExperiment(ctx context.Context, exp Experiment) Result {
	ctx, span := e.tracer.Start(ctx, "drill.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := Result{ExperimentName: exp.Name, StartTime: time.Now()}
	obs := newObservations()

	span.AddEvent("executing_method")
	methodFailed := false
	for _, action := range exp.Method {
		if err := action.Execute(ctx, obs); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
				Timestamp: time.Now(),
				Error:     err.Error(),
				Component: action.Target,
			})
			span.RecordError(err)
			methodFailed = true
			break
		}
	}

	span.AddEvent("validating_assertions")
	result.Observations = obs.snapshot()
	for _, a := range exp.Validation {
		v, ok := result.Observations[a.Metric]
		if !ok || !a.Condition(v) {
			result.Violations = append(result.Violations, Violation{Metric: a.Metric, Actual: v, Message: a.Message})
		}
	}
	result.HypothesisHeld = !methodFailed && len(result.Violations) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result
}

// Execute runs every registered experiment and fails if any hypothesis did
// not hold.
func (e *Engine) Execute(ctx context.Context, name string) error {
	ctx, span := e.tracer.Start(ctx, "drill.execute",
		trace.WithAttributes(attribute.String("drill.name", name)),
	)
	defer span.End()

	e.logger.InfoContext(ctx, "starting drill", "name", name)
	experiments := e.Experiments()
	failed := 0
	for i, exp := range experiments {
		e.logger.InfoContext(ctx, "experiment",
			"index", i+1,
			"of", len(experiments),
			"name", exp.Name,
			"hypothesis", exp.Hypothesis,
		)
		res := e.RunExperiment(ctx, exp)
		e.logResult(ctx, res)
		if !res.HypothesisHeld {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d experiments violated their hypothesis", failed, len(experiments))
	}
	return nil
}

func (e *Engine) logResult(ctx context.Context, res Result) {
	if res.HypothesisHeld {
		e.logger.InfoContext(ctx, "hypothesis held",
			"experiment", res.ExperimentName,
			"duration", res.Duration,
			"observations", res.Observations,
		)
		return
	}
	e.logger.ErrorContext(ctx, "hypothesis violated",
		"experiment", res.ExperimentName,
		"violations", res.Violations,
		"errors", res.ErrorEvents,
		"observations", res.Observations,
	)
}
