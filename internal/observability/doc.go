// Package observability groups the worker's structured logging, Prometheus
// metrics and OpenTelemetry tracing.
//
// Subpackages:
//   - logging: slog loggers with job/run-id context propagation
//   - metrics: Prometheus metrics registry and recorders
//   - tracing: OpenTelemetry span helpers
package observability
