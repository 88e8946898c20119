package engine

import (
	"context"
	"sync"

	"github.com/skillflow/skillflow/pkg/telemetry"
)

// WorkItem is one run submitted to a parallel batch. Items in a batch must
// be independent: they share no context and no ordering guarantees.
type WorkItem struct {
	RunID   string
	Steps   []string
	Initial Context
}

// BatchResult pairs a run with the error returned by its execution
// strategy. A nil Err means the status writes succeeded, not that the run
// itself succeeded; consult the run state store for the outcome.
type BatchResult struct {
	RunID string
	Err   error
}

// ParallelRunner executes independent runs concurrently through a shared
// execution strategy, bounded by a worker pool. Ordering within a single
// run is preserved by the strategy; ordering across runs is unspecified.
type ParallelRunner struct {
	runner      Runner
	maxInFlight int
	logger      *telemetry.Logger
}

// NewParallelRunner creates a parallel runner with the given concurrency
// bound. A bound below 1 is treated as 1.
func NewParallelRunner(runner Runner, maxInFlight int, logger *telemetry.Logger) *ParallelRunner {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &ParallelRunner{
		runner:      runner,
		maxInFlight: maxInFlight,
		logger:      logger.Component("parallel"),
	}
}

// RunAll executes all items and blocks until every run has finished or the
// context is canceled. Results are returned in item order.
func (p *ParallelRunner) RunAll(ctx context.Context, items []WorkItem) []BatchResult {
	results := make([]BatchResult, len(items))
	sem := make(chan struct{}, p.maxInFlight)
	var wg sync.WaitGroup

	for i, item := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = BatchResult{RunID: item.RunID, Err: ctx.Err()}
			continue
		}

		wg.Add(1)
		go func(i int, item WorkItem) {
			defer wg.Done()
			defer func() { <-sem }()

			err := p.runner.Run(ctx, item.RunID, item.Steps, item.Initial)
			if err != nil {
				p.logger.WithRunID(item.RunID).WithError(err).Error("run aborted")
			}
			results[i] = BatchResult{RunID: item.RunID, Err: err}
		}(i, item)
	}

	wg.Wait()
	return results
}
