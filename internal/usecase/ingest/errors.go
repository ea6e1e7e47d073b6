// Package ingest turns a source's feed into new article rows.
package ingest

import "errors"

var (
	// ErrFeedFetchFailed indicates that the feed could not be downloaded
	// with either the hinted or the bare URL.
	ErrFeedFetchFailed = errors.New("failed to fetch feed from source")

	// ErrInvalidFeedFormat indicates that the feed content could not be parsed.
	ErrInvalidFeedFormat = errors.New("invalid feed format")
)
