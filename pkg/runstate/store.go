// Package runstate persists run status and submission metadata for external
// observers, and maintains a recency index answering "list the N most
// recently updated runs" without scanning all run keys.
package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/skillflow/skillflow/pkg/engine"
	"github.com/skillflow/skillflow/pkg/stores"
	"github.com/skillflow/skillflow/pkg/telemetry"
)

const (
	statusPrefix = "run:status:"
	metaPrefix   = "run:meta:"
	recencySet   = "runs:recent"

	// DefaultTTL bounds how long run records are retained.
	DefaultTTL = 24 * time.Hour
)

// Meta is the submission metadata recorded at admission time.
type Meta struct {
	Intent      string         `json:"intent"`
	Payload     map[string]any `json:"payload,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// Record is one run's observable state: its status, the orchestrator's
// detail payload, and the submission metadata if recorded.
type Record struct {
	RunID     string           `json:"run_id"`
	Status    engine.RunStatus `json:"status"`
	Detail    map[string]any   `json:"detail"`
	Meta      *Meta            `json:"meta,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type statusRecord struct {
	Status    engine.RunStatus `json:"status"`
	Detail    map[string]any   `json:"detail"`
	UpdatedAt time.Time        `json:"ts"`
}

// Store persists run state in the durable KV store. Status reads and writes
// surface store failures to the caller, since API consumers poll status;
// metadata and recency writes are observability aids and degrade silently.
type Store struct {
	kv     stores.KV
	logger *telemetry.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewStore creates a run state store with the given record TTL. A ttl of
// zero uses DefaultTTL.
func NewStore(kv stores.KV, logger *telemetry.Logger, ttl time.Duration) *Store {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		kv:     kv,
		logger: logger.Component("runstate"),
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetStatus writes the run's status and detail and bumps its recency score.
// The status write is correctness-critical and surfaces store failures; the
// recency upsert is best-effort.
func (s *Store) SetStatus(ctx context.Context, runID string, status engine.RunStatus, detail map[string]any) error {
	if err := status.Validate(); err != nil {
		return err
	}
	if detail == nil {
		detail = map[string]any{}
	}

	now := s.now().UTC()
	encoded, err := json.Marshal(statusRecord{Status: status, Detail: detail, UpdatedAt: now})
	if err != nil {
		return fmt.Errorf("failed to encode status record: %w", err)
	}

	if err := s.kv.Set(ctx, statusPrefix+runID, encoded, s.ttl); err != nil {
		return fmt.Errorf("%w: set status for run %s: %v", engine.ErrStoreUnavailable, runID, err)
	}

	if err := s.kv.UpsertRecency(ctx, recencySet, runID, now); err != nil {
		s.logger.WithRunID(runID).WithError(err).Warn("recency update dropped")
	}

	return nil
}

// GetStatus reads the run's status and detail. Unknown runs report as
// freshly queued with an empty detail rather than erroring; store failures
// surface.
func (s *Store) GetStatus(ctx context.Context, runID string) (engine.RunStatus, map[string]any, error) {
	value, err := s.kv.Get(ctx, statusPrefix+runID)
	if err != nil {
		if errors.Is(err, stores.ErrKeyNotFound) {
			return engine.StatusQueued, map[string]any{}, nil
		}
		return "", nil, fmt.Errorf("%w: get status for run %s: %v", engine.ErrStoreUnavailable, runID, err)
	}

	var rec statusRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return "", nil, fmt.Errorf("corrupt status record for run %s: %w", runID, err)
	}
	if rec.Detail == nil {
		rec.Detail = map[string]any{}
	}
	return rec.Status, rec.Detail, nil
}

// RecordMeta writes the submission metadata for a run. Best-effort: all
// store failures are logged and swallowed.
func (s *Store) RecordMeta(ctx context.Context, runID, intent string, payload map[string]any) {
	now := s.now().UTC()
	encoded, err := json.Marshal(Meta{Intent: intent, Payload: payload, SubmittedAt: now})
	if err != nil {
		s.logger.WithRunID(runID).WithError(err).Warn("meta encode dropped")
		return
	}

	if err := s.kv.Set(ctx, metaPrefix+runID, encoded, s.ttl); err != nil {
		s.logger.WithRunID(runID).WithError(err).Warn("meta write dropped")
	}
	if err := s.kv.UpsertRecency(ctx, recencySet, runID, now); err != nil {
		s.logger.WithRunID(runID).WithError(err).Warn("recency update dropped")
	}
}

// ListRecent returns up to limit runs ordered by most recent update first,
// each joined with its status and metadata records.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	runIDs, err := s.kv.RecentMembers(ctx, recencySet, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list recent runs: %v", engine.ErrStoreUnavailable, err)
	}

	records := make([]Record, 0, len(runIDs))
	for _, runID := range runIDs {
		rec := Record{RunID: runID, Status: engine.StatusQueued, Detail: map[string]any{}}

		if value, err := s.kv.Get(ctx, statusPrefix+runID); err == nil {
			var sr statusRecord
			if err := json.Unmarshal(value, &sr); err == nil {
				rec.Status = sr.Status
				rec.UpdatedAt = sr.UpdatedAt
				if sr.Detail != nil {
					rec.Detail = sr.Detail
				}
			}
		}

		if value, err := s.kv.Get(ctx, metaPrefix+runID); err == nil {
			var meta Meta
			if err := json.Unmarshal(value, &meta); err == nil {
				rec.Meta = &meta
			}
		}

		records = append(records, rec)
	}

	return records, nil
}
