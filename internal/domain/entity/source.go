package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultIcon is used when no favicon could be resolved for a feed.
	DefaultIcon = "📰"
	// DefaultCategory is assigned to sources created without a category.
	DefaultCategory = "未分类"
)

// DefaultUserID is the single fixed principal that owns every source.
var DefaultUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Source represents a subscribed feed.
// UnreadCount is derived and recomputed on every ingest.
type Source struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	URL         string
	Title       string
	Description string
	Icon        string
	Category    string
	UnreadCount int
	CreatedAt   time.Time
	LastFetched *time.Time
}

// Validate checks the user-provided fields and fills defaults.
func (s *Source) Validate() error {
	if err := ValidateURL(s.URL); err != nil {
		return err
	}
	s.Title = strings.TrimSpace(s.Title)
	if s.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if s.Category == "" {
		s.Category = DefaultCategory
	}
	if s.Icon == "" {
		s.Icon = DefaultIcon
	}
	if s.UserID == uuid.Nil {
		s.UserID = DefaultUserID
	}
	return nil
}

// OwnedBy reports whether the source belongs to userID.
func (s *Source) OwnedBy(userID uuid.UUID) bool {
	return s.UserID == userID
}
