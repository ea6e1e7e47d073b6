// Package summary generates markdown summaries for labeled articles and
// drives the summary status state machine.
package summary

import (
	"errors"

	"ai-feed-reader/internal/domain/entity"
)

var (
	// ErrInvalidSummary means the provider answer failed the format checks.
	ErrInvalidSummary = errors.New("invalid summary format")

	// ErrQueueClosed is returned by Enqueue after the queue was closed.
	ErrQueueClosed = errors.New("summary queue closed")
)

const (
	ignoredReason       = entity.IgnoredSummaryReason
	invalidFormatReason = "Invalid summary format returned by API"
	unknownSource       = "未知"
	headerMarker        = "##"
)
