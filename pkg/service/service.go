// Package service is the submission façade: it wires the admission gate,
// the run state store, the queue, and an execution strategy into the
// Submit / Status / Recent surface.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillflow/skillflow/pkg/admission"
	"github.com/skillflow/skillflow/pkg/engine"
	"github.com/skillflow/skillflow/pkg/queue"
	"github.com/skillflow/skillflow/pkg/runstate"
	"github.com/skillflow/skillflow/pkg/telemetry"
)

// DefaultResultTTL bounds how long admission claims and replayable results
// are retained. Matches the run status retention window.
const DefaultResultTTL = 24 * time.Hour

// SubmitRequest describes one intent submission.
type SubmitRequest struct {
	// Intent names a registered skill chain.
	Intent string `json:"intent"`
	// Payload is the initial run context.
	Payload map[string]any `json:"payload"`
	// IdempotencyKey overrides the payload fingerprint when set.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// SubmitResponse is the submission outcome. Replayed is true when the
// response was served from a previous admission of the same request.
type SubmitResponse struct {
	RunID    string           `json:"run_id"`
	Status   engine.RunStatus `json:"status"`
	Replayed bool             `json:"replayed,omitempty"`
}

// runTask is the queue payload for one admitted run.
type runTask struct {
	RunID   string         `json:"run_id"`
	Key     string         `json:"key"`
	Steps   []string       `json:"steps"`
	Initial engine.Context `json:"initial"`
}

// Service accepts intent submissions and exposes run status. When
// constructed with a queue, admitted runs go through the durable path;
// without one they execute on an inline goroutine.
type Service struct {
	gate     *admission.Gate
	runs     *runstate.Store
	registry *engine.Registry
	runner   engine.Runner
	queue    *queue.Queue
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	ttl      time.Duration
}

// New creates the service. queue may be nil for inline execution. The
// run.execute handler is registered on the queue when one is supplied.
func New(gate *admission.Gate, runs *runstate.Store, registry *engine.Registry, runner engine.Runner, q *queue.Queue, logger *telemetry.Logger, metrics *telemetry.Metrics) *Service {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}

	s := &Service{
		gate:     gate,
		runs:     runs,
		registry: registry,
		runner:   runner,
		queue:    q,
		logger:   logger.Component("service"),
		metrics:  metrics,
		ttl:      DefaultResultTTL,
	}

	if q != nil {
		q.Register(engine.TaskRunExecute, s.handleRunTask)
	}

	return s
}

// SetResultTTL overrides the retention window for admission claims and
// replayable results. Values of zero or below keep the current window.
func (s *Service) SetResultTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// Submit admits the request through the idempotency gate and dispatches an
// admitted run for execution. Duplicates of a completed submission replay
// its recorded outcome; duplicates of an in-flight submission fail with
// engine.ErrDuplicateRequest.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	steps, err := s.registry.ResolveChain(req.Intent)
	if err != nil {
		return SubmitResponse{}, err
	}

	key, cached, admitted, err := s.gate.ClaimOrGet(ctx, req.Intent, req.Payload, req.IdempotencyKey, s.ttl)
	if err != nil {
		return SubmitResponse{}, err
	}

	if !admitted {
		if cached == nil {
			s.metrics.RecordAdmission("duplicate")
			return SubmitResponse{}, fmt.Errorf("intent %s: %w", req.Intent, engine.ErrDuplicateRequest)
		}
		var resp SubmitResponse
		if err := json.Unmarshal(cached, &resp); err != nil {
			return SubmitResponse{}, fmt.Errorf("failed to decode cached response for key %s: %w", key, err)
		}
		s.metrics.RecordAdmission("replayed")
		resp.Replayed = true
		return resp, nil
	}

	runID := uuid.New().String()
	s.metrics.RecordAdmission("admitted")
	s.metrics.RecordRunStarted(req.Intent)

	s.runs.RecordMeta(ctx, runID, req.Intent, req.Payload)
	if err := s.runs.SetStatus(ctx, runID, engine.StatusQueued, map[string]any{"intent": req.Intent}); err != nil {
		s.releaseClaim(ctx, key)
		return SubmitResponse{}, err
	}

	task := runTask{RunID: runID, Key: key, Steps: steps, Initial: engine.Context(req.Payload)}
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, engine.TaskRunExecute, task, runID); err != nil {
			s.releaseClaim(ctx, key)
			return SubmitResponse{}, fmt.Errorf("failed to enqueue run %s: %w", runID, err)
		}
	} else {
		go func() {
			if err := s.execute(context.Background(), task); err != nil {
				s.logger.WithRunID(task.RunID).WithError(err).Error("inline run aborted")
			}
		}()
	}

	s.logger.WithRunID(runID).WithIntent(req.Intent).Info("run admitted")
	return SubmitResponse{RunID: runID, Status: engine.StatusQueued}, nil
}

// releaseClaim frees an admission slot whose run never dispatched. Best
// effort: if the release itself fails, the duplicate window runs to its TTL.
func (s *Service) releaseClaim(ctx context.Context, key string) {
	if err := s.gate.Release(ctx, key); err != nil {
		s.logger.WithField("key", key).WithError(err).Warn("claim release dropped")
	}
}

func (s *Service) handleRunTask(ctx context.Context, args json.RawMessage) error {
	var task runTask
	if err := json.Unmarshal(args, &task); err != nil {
		return fmt.Errorf("failed to decode run task: %w", err)
	}
	return s.execute(ctx, task)
}

// execute drives one admitted run to a terminal state, then records the
// outcome under the admission key so duplicate submissions replay the same
// run ID and status. The writeback is best-effort: a duplicate arriving
// between the terminal status write and the result write sees
// ErrDuplicateRequest rather than the replayed outcome.
func (s *Service) execute(ctx context.Context, task runTask) error {
	if err := s.runner.Run(ctx, task.RunID, task.Steps, task.Initial); err != nil {
		return err
	}

	status, _, err := s.runs.GetStatus(ctx, task.RunID)
	if err != nil {
		return err
	}

	result := SubmitResponse{RunID: task.RunID, Status: status}
	if err := s.gate.StoreResult(ctx, task.Key, result, s.ttl); err != nil {
		s.logger.WithRunID(task.RunID).WithError(err).Warn("result writeback dropped")
	}
	return nil
}

// Status reports the current state of a run. Unknown run IDs report queued
// with empty detail.
func (s *Service) Status(ctx context.Context, runID string) (engine.RunStatus, map[string]any, error) {
	return s.runs.GetStatus(ctx, runID)
}

// Recent lists the most recently updated runs, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]runstate.Record, error) {
	return s.runs.ListRecent(ctx, limit)
}

// WaitTerminal polls until the run reaches a terminal status or the
// context expires. Intended for CLI and test use.
func (s *Service) WaitTerminal(ctx context.Context, runID string, interval time.Duration) (engine.RunStatus, map[string]any, error) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, detail, err := s.runs.GetStatus(ctx, runID)
		if err != nil && !errors.Is(err, engine.ErrStoreUnavailable) {
			return status, detail, err
		}
		if err == nil && status.IsTerminal() {
			return status, detail, nil
		}

		select {
		case <-ctx.Done():
			return status, detail, ctx.Err()
		case <-ticker.C:
		}
	}
}
