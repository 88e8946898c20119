package engine_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skillflow/skillflow/pkg/engine"
	"github.com/skillflow/skillflow/pkg/runstate"
	"github.com/skillflow/skillflow/pkg/stores"
)

// Example_runWorkflow demonstrates how the core types compose: a registry
// of skills, an intent chain, and an orchestrator executing the chain over
// a shared context.
func Example_runWorkflow() {
	// 1. Register skills and an intent chain
	registry := engine.NewRegistry()
	registry.RegisterSkill("lead.normalize", func(_ context.Context, c engine.Context) (engine.Context, error) {
		return c.With("normalized", true), nil
	})
	registry.RegisterSkill("lead.score", func(_ context.Context, c engine.Context) (engine.Context, error) {
		return c.With("score", 90), nil
	})
	registry.RegisterChain("lead.intake", []string{"lead.normalize", "lead.score"})

	// 2. Wire the orchestrator to a run state store
	runs := runstate.NewStore(stores.NewMemoryStore(), nil, time.Hour)
	orch := engine.NewOrchestrator(registry, runs, nil, nil, nil)

	// 3. Execute; the outcome is observable only through the store
	steps, _ := registry.ResolveChain("lead.intake")
	if err := orch.Run(context.Background(), "run-001", steps, engine.Context{"email": "a@b.com"}); err != nil {
		panic(err)
	}

	status, detail, _ := runs.GetStatus(context.Background(), "run-001")
	fmt.Println(status)
	fmt.Println(detail["executed"])
	// Output:
	// succeeded
	// [lead.normalize lead.score]
}

// Example_failureClassification demonstrates the typed error hierarchy and
// the heuristic fallback for opaque errors.
func Example_failureClassification() {
	// Typed errors classify by construction
	typed := engine.NewDependencyError("upstream unreachable", nil)
	fmt.Println(engine.Classify(typed))

	// Opaque errors fall back to message heuristics
	opaque := errors.New("provider returned 429 Too Many Requests")
	fmt.Println(engine.Classify(opaque))

	// Output:
	// dependency
	// rate_limit
}
