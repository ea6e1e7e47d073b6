// Package article provides the user-facing status operations on articles:
// read, favorite, trash and restore, plus the per-user counters. Every
// mutation is checked against the owner of the article's source.
package article

import "errors"

// Sentinel errors for article use case operations.
var (
	// ErrArticleNotFound indicates that the requested article was not found.
	ErrArticleNotFound = errors.New("article not found")

	// ErrNotInTrash indicates a restore of an article that is not trashed.
	ErrNotInTrash = errors.New("article is not in trash")
)
