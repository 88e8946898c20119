package engine

import (
	"context"
	"math"
	"time"

	"github.com/skillflow/skillflow/pkg/telemetry"
)

// RetryPolicy configures the self-healing retry wrapper.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay is the flat delay for validation and runtime failures.
	BaseDelay time.Duration

	// RateLimitBase seeds the attempt-scaled rate-limit backoff.
	RateLimitBase time.Duration

	// DependencyBase seeds the exponential dependency backoff.
	DependencyBase time.Duration

	// DependencyCap bounds the dependency backoff.
	DependencyCap time.Duration
}

// DefaultRetryPolicy returns the production retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		BaseDelay:      1 * time.Second,
		RateLimitBase:  5 * time.Second,
		DependencyBase: 2 * time.Second,
		DependencyCap:  30 * time.Second,
	}
}

// Retrier is the self-healing wrapper applied to task invocations. It
// classifies each failure, waits with a class-specific backoff, and retries
// the entire wrapped call. It is orthogonal to per-skill compensation: the
// unit of retry is the whole task, never an individual skill.
type Retrier struct {
	policy  RetryPolicy
	logger  *telemetry.Logger
	metrics *telemetry.Metrics

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retry wrapper with the given policy.
func NewRetrier(policy RetryPolicy, logger *telemetry.Logger, metrics *telemetry.Metrics) *Retrier {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	return &Retrier{
		policy:  policy,
		logger:  logger.Component("retry"),
		metrics: metrics,
		sleep:   sleepContext,
	}
}

// Do invokes fn, retrying on failure up to the policy's maximum. Each
// failure is classified and counted; each retry waits the class-specific
// backoff. After exhausting retries the final error is returned unchanged so
// the task queue's own retry or dead-letter policy can take over.
func (r *Retrier) Do(ctx context.Context, taskName string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		class := Classify(lastErr)
		r.metrics.RecordTaskFailure(taskName, string(class))

		if attempt >= r.policy.MaxRetries {
			r.logger.WithField("task", taskName).
				WithField("class", string(class)).
				WithError(lastErr).
				Error("retries exhausted")
			return lastErr
		}

		wait := r.backoff(class, attempt)
		r.metrics.RecordRetryAttempt(taskName, string(class), wait)
		r.logger.WithField("task", taskName).
			WithField("class", string(class)).
			WithField("attempt", attempt+1).
			WithField("wait", wait.String()).
			WithError(lastErr).
			Warn("retrying after failure")

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// backoff computes the class-specific delay before the next attempt.
// Rate-limit failures back off aggressively, scaling with the attempt count
// without a cap; dependency failures back off exponentially up to the cap;
// validation and runtime failures wait a flat base delay.
func (r *Retrier) backoff(class FailureClass, attempt int) time.Duration {
	switch class {
	case FailureRateLimit:
		return r.policy.RateLimitBase * time.Duration(attempt+1)
	case FailureDependency:
		delay := time.Duration(float64(r.policy.DependencyBase) * math.Pow(2, float64(attempt)))
		if delay > r.policy.DependencyCap {
			delay = r.policy.DependencyCap
		}
		return delay
	default:
		return r.policy.BaseDelay
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
