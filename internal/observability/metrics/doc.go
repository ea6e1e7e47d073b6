// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes the worker's business metrics:
//   - Feed ingest (duration, inserted/duplicate entries, errors, fallbacks, cache hits)
//   - Labeling and summarization outcomes
//   - Content enhancement
//   - Database connection pool
//
// All metrics are registered with the Prometheus default registry and exposed
// via the worker's /metrics endpoint.
package metrics
