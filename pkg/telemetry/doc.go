// Package telemetry provides the observability stack for the skillflow
// engine: structured logging backed by zerolog, Prometheus metrics for runs,
// skills, admissions, and the retry wrapper, and OpenTelemetry tracing for
// run and skill execution.
//
// All three concerns are configured through a single Config and degrade to
// no-ops when disabled, so library consumers can wire as much or as little
// observability as their deployment needs.
package telemetry
