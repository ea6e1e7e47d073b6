// Package source provides use cases for managing subscribed feeds: feed
// validation, subscription with an immediate first ingest, listing and
// deletion.
package source

import "errors"

// Sentinel errors for source use case operations.
var (
	// ErrSourceNotFound indicates that the requested source was not found.
	ErrSourceNotFound = errors.New("source not found")

	// ErrInvalidFeed indicates that the URL did not yield a parsable feed.
	ErrInvalidFeed = errors.New("invalid feed")

	// ErrDuplicateSource indicates that the user already subscribes to the feed URL.
	ErrDuplicateSource = errors.New("source with this feed URL already exists")
)
