// Package tracing provides OpenTelemetry span helpers for the ingest,
// labeling and summarization units of work. Without an installed
// TracerProvider the spans are no-ops.
//
//	ctx, span := tracing.StartSpan(ctx, "summary.article", attribute.String("article.id", id))
//	defer func() { tracing.End(span, err) }()
package tracing
