// Package entity defines the core domain entities and validation logic for the application.
// It contains the fundamental business objects such as Article and Source, the
// enrichment state machines that drive labeling and summarization, and domain errors.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Article represents one feed entry stored in the system.
// GUID is the natural key: it is stable across refetches of the same feed.
type Article struct {
	ID          uuid.UUID
	SourceID    uuid.UUID
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	CoverImage  string
	PubDate     *time.Time
	CreatedAt   time.Time

	IsRead     bool
	IsFavorite bool
	IsTrashed  bool
	TrashedAt  *time.Time

	AILabels      *Labels
	AILabelStatus LabelStatus
	AILabelError  string

	AISummary            string
	AISummaryStatus      SummaryStatus
	AISummaryError       string
	AISummaryGeneratedAt *time.Time
}

// ArticleWithSource pairs an article with the title of the source that owns it.
type ArticleWithSource struct {
	Article     *Article
	SourceTitle string
}

// NewArticle builds a fresh article for a feed entry with every status field defaulted.
func NewArticle(sourceID uuid.UUID, entry FeedEntry, now time.Time) *Article {
	return &Article{
		ID:              uuid.New(),
		SourceID:        sourceID,
		GUID:            entry.GUID,
		Title:           entry.Title,
		Link:            entry.Link,
		Description:     entry.Description,
		Content:         entry.Content,
		CoverImage:      entry.CoverImage,
		PubDate:         entry.PubDate,
		CreatedAt:       now,
		AILabelStatus:   LabelPending,
		AISummaryStatus: SummaryPending,
	}
}

// BodyText returns the content, falling back to the description.
func (a *Article) BodyText() string {
	if a.Content != "" {
		return a.Content
	}
	return a.Description
}

// IsDisregarded reports whether the article's labels carry the given disregard marker.
func (a *Article) IsDisregarded(marker string) bool {
	if a.AILabels == nil {
		return false
	}
	return a.AILabels.HasIdentity(marker)
}
