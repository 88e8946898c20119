package commands

import (
	"context"
	"fmt"

	"github.com/skillflow/skillflow/pkg/admission"
	"github.com/skillflow/skillflow/pkg/config"
	"github.com/skillflow/skillflow/pkg/engine"
	"github.com/skillflow/skillflow/pkg/queue"
	"github.com/skillflow/skillflow/pkg/runstate"
	"github.com/skillflow/skillflow/pkg/service"
	"github.com/skillflow/skillflow/pkg/stores"
	"github.com/skillflow/skillflow/pkg/telemetry"
)

// runtime holds the wired components behind a command invocation.
type runtime struct {
	cfg      *config.Config
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	registry *engine.Registry
	service  *service.Service
	queue    *queue.Queue
	store    stores.KV
}

type runtimeOptions struct {
	// withQueue selects the durable queue-backed path; otherwise runs
	// execute inline.
	withQueue bool
}

// newRuntime loads config and wires stores, gate, registry, orchestrator,
// and service. Callers must invoke close when done.
func newRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := telemetry.NewLogger(cfg.Telemetry.Logging)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewMetrics(cfg.Telemetry.Metrics)
	if err != nil {
		return nil, err
	}

	kv, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	gate := admission.NewGate(kv, logger)
	runs := runstate.NewStore(kv, logger, cfg.Service.ResultTTL)

	registry := engine.NewRegistry()
	registerBuiltins(registry, logger)

	orch := engine.NewOrchestrator(registry, runs, logger, metrics, nil)
	retrier := engine.NewRetrier(cfg.Retry.Policy(), logger, metrics)
	runner := engine.NewDurableOrchestrator(orch, retrier)

	var q *queue.Queue
	if opts.withQueue {
		q = queue.New(ctx, cfg.Queue, logger)
	}

	svc := service.New(gate, runs, registry, runner, q, logger, metrics)
	svc.SetResultTTL(cfg.Service.ResultTTL)

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		registry: registry,
		service:  svc,
		queue:    q,
		store:    kv,
	}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (stores.KV, error) {
	switch cfg.Driver {
	case "memory":
		return stores.NewMemoryStore(), nil
	case "sqlite":
		store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Path})
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

func (r *runtime) close() {
	if r.queue != nil {
		r.queue.Close()
	}
	if err := r.store.Close(); err != nil {
		r.logger.WithError(err).Warn("store close failed")
	}
}
