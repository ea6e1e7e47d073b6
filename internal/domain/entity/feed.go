package entity

import "time"

// FeedInfo is the channel-level metadata of a parsed feed.
type FeedInfo struct {
	Title       string
	Description string
	Link        string
}

// FeedEntry is one parsed entry of a feed, before it becomes an Article.
type FeedEntry struct {
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	CoverImage  string
	PubDate     *time.Time
}

// Feed is the result of fetching and parsing a feed URL.
// FetchedURL is the URL variant that actually produced the payload.
type Feed struct {
	Info       FeedInfo
	Entries    []FeedEntry
	FaviconURL string
	FetchedURL string
}
