package engine

import (
	"context"
	"time"

	"github.com/skillflow/skillflow/pkg/telemetry"
)

// StateWriter persists run status transitions. Satisfied by
// runstate.Store.
type StateWriter interface {
	SetStatus(ctx context.Context, runID string, status RunStatus, detail map[string]any) error
}

// Runner executes a single run to completion. Both execution strategies
// satisfy it.
type Runner interface {
	Run(ctx context.Context, runID string, steps []string, initial Context) error
}

// Orchestrator is the lightweight in-process execution strategy: it walks
// the skill chain sequentially, threading the evolving context through each
// skill, and records status transitions in the run state store. A skill
// failure halts the run and is captured into the terminal failed detail; it
// is never re-raised to the caller and no compensation is attempted. For
// the compensating strategy see DurableOrchestrator.
//
// The outcome of a run is observable only through the run state store; Run
// returns an error only when a status write fails.
type Orchestrator struct {
	registry *Registry
	state    StateWriter
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
}

// NewOrchestrator creates an orchestrator. The tracer may be nil.
func NewOrchestrator(registry *Registry, state StateWriter, logger *telemetry.Logger, metrics *telemetry.Metrics, tracer *telemetry.Tracer) *Orchestrator {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	return &Orchestrator{
		registry: registry,
		state:    state,
		logger:   logger.Component("orchestrator"),
		metrics:  metrics,
		tracer:   tracer,
	}
}

// Run executes the skill chain for one run.
func (o *Orchestrator) Run(ctx context.Context, runID string, steps []string, initial Context) error {
	start := time.Now()

	executed, final, err := o.executeSteps(ctx, runID, steps, initial)
	if err != nil {
		o.metrics.RecordRunCompleted(string(StatusFailed), time.Since(start))
		return o.finishFailed(ctx, runID, executed, err, nil)
	}

	o.metrics.RecordRunCompleted(string(StatusSucceeded), time.Since(start))
	return o.finishSucceeded(ctx, runID, executed, final)
}

// executeSteps transitions the run to running and walks the chain. It
// returns the executed skill names, the context at exit, and the first
// error encountered (a *StepFailure for skill errors, a *NotFoundError for
// unresolvable skills). Terminal transitions are the caller's concern.
func (o *Orchestrator) executeSteps(ctx context.Context, runID string, steps []string, initial Context) ([]string, Context, error) {
	if initial == nil {
		initial = Context{}
	}

	if err := o.state.SetStatus(ctx, runID, StatusRunning, map[string]any{"steps": steps}); err != nil {
		return nil, initial, err
	}

	log := o.logger.WithRunID(runID)
	executed := make([]string, 0, len(steps))
	cur := initial

	for _, name := range steps {
		skill, err := o.registry.ResolveSkill(name)
		if err != nil {
			return executed, cur, err
		}

		out, err := o.invokeSkill(ctx, runID, name, skill, cur)
		if err != nil {
			log.WithSkill(name).WithError(err).Warn("skill failed")
			return executed, cur, &StepFailure{Skill: name, Err: err}
		}

		// Merging the return value over the accumulated context keeps
		// keys the skill did not return, so no skill can destroy state
		// it does not own.
		cur = cur.Merge(out)
		executed = append(executed, name)
	}

	return executed, cur, nil
}

func (o *Orchestrator) invokeSkill(ctx context.Context, runID, name string, skill Skill, cur Context) (Context, error) {
	start := time.Now()
	var out Context
	var err error

	if o.tracer != nil {
		spanCtx, span := o.tracer.StartSkillSpan(ctx, runID, name)
		out, err = skill(spanCtx, cur)
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	} else {
		out, err = skill(ctx, cur)
	}

	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	o.metrics.RecordSkillExecution(name, status, time.Since(start))

	return out, err
}

func (o *Orchestrator) finishSucceeded(ctx context.Context, runID string, executed []string, final Context) error {
	o.logger.WithRunID(runID).Info("run succeeded")
	return o.state.SetStatus(ctx, runID, StatusSucceeded, map[string]any{
		"executed": executed,
		"result":   map[string]any(final),
	})
}

func (o *Orchestrator) finishFailed(ctx context.Context, runID string, executed []string, cause error, compensated []string) error {
	detail := map[string]any{
		"executed": executed,
		"error":    cause.Error(),
	}
	if compensated != nil {
		detail["compensated"] = compensated
	}
	o.logger.WithRunID(runID).WithError(cause).Warn("run failed")
	return o.state.SetStatus(ctx, runID, StatusFailed, detail)
}

// DurableOrchestrator is the queue-backed execution strategy. The whole
// step loop is wrapped by the self-healing retry wrapper, so a transient
// failure re-invokes the chain from the top (skills are idempotent by
// convention). On terminal failure the executed skills are rolled back in
// reverse order through their registered compensators, saga-style: a
// compensator receives the context snapshot at failure time, and its own
// failure is logged and counted, never retried.
type DurableOrchestrator struct {
	orch    *Orchestrator
	retrier *Retrier
}

// TaskRunExecute is the task name under which runs are dispatched on the
// queue and labeled in retry metrics.
const TaskRunExecute = "run.execute"

// NewDurableOrchestrator creates the durable strategy over the same
// dependencies as the lightweight one.
func NewDurableOrchestrator(orch *Orchestrator, retrier *Retrier) *DurableOrchestrator {
	return &DurableOrchestrator{orch: orch, retrier: retrier}
}

// Run executes the skill chain with whole-run retries and compensation.
func (d *DurableOrchestrator) Run(ctx context.Context, runID string, steps []string, initial Context) error {
	start := time.Now()

	var executed []string
	var final Context

	err := d.retrier.Do(ctx, TaskRunExecute, func(ctx context.Context) error {
		var stepErr error
		executed, final, stepErr = d.orch.executeSteps(ctx, runID, steps, initial.Clone())
		return stepErr
	})

	if err == nil {
		d.orch.metrics.RecordRunCompleted(string(StatusSucceeded), time.Since(start))
		return d.orch.finishSucceeded(ctx, runID, executed, final)
	}

	if setErr := d.orch.state.SetStatus(ctx, runID, StatusCompensating, map[string]any{
		"executed": executed,
		"error":    err.Error(),
	}); setErr != nil {
		return setErr
	}

	compensated := d.compensate(ctx, runID, executed, final)

	d.orch.metrics.RecordRunCompleted(string(StatusFailed), time.Since(start))
	return d.orch.finishFailed(ctx, runID, executed, err, compensated)
}

// compensate walks executed in reverse, invoking each registered
// compensator with the failure-time context snapshot. Returns the names of
// skills whose compensators ran successfully.
func (d *DurableOrchestrator) compensate(ctx context.Context, runID string, executed []string, snapshot Context) []string {
	log := d.orch.logger.WithRunID(runID)
	compensated := []string{}

	for i := len(executed) - 1; i >= 0; i-- {
		name := executed[i]
		fn, ok := d.orch.registry.ResolveCompensation(name)
		if !ok {
			continue
		}

		if err := fn(ctx, snapshot.Clone()); err != nil {
			log.WithSkill(name).WithError(err).Error("compensation failed")
			d.orch.metrics.RecordCompensation(name, "failed")
			continue
		}

		log.WithSkill(name).Info("compensated")
		d.orch.metrics.RecordCompensation(name, "succeeded")
		compensated = append(compensated, name)
	}

	return compensated
}
