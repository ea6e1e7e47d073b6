package scraper

import (
	"strings"
	"unicode/utf8"

	"ai-feed-reader/internal/domain/entity"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

const (
	defaultFeedTitle    = "Untitled Feed"
	defaultEntryTitle   = "Untitled"
	maxDescriptionRunes = 500
)

// htmlPolicy strips scripts, event handlers and other active markup from
// entry bodies before they are stored. Policies are safe for concurrent use.
var htmlPolicy = newHTMLPolicy()

func newHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

func sanitize(html string) string {
	if html == "" {
		return ""
	}
	return strings.TrimSpace(htmlPolicy.Sanitize(html))
}

func convertFeed(f *gofeed.Feed) *entity.Feed {
	info := entity.FeedInfo{
		Title:       strings.TrimSpace(f.Title),
		Description: f.Description,
		Link:        f.Link,
	}
	if info.Title == "" {
		info.Title = defaultFeedTitle
	}

	entries := make([]entity.FeedEntry, 0, len(f.Items))
	for _, it := range f.Items {
		if e, ok := convertItem(it); ok {
			entries = append(entries, e)
		}
	}
	return &entity.Feed{Info: info, Entries: entries}
}

// convertItem maps a gofeed item. Items without any identifier are dropped.
func convertItem(it *gofeed.Item) (entity.FeedEntry, bool) {
	guid := strings.TrimSpace(it.GUID)
	if guid == "" {
		guid = strings.TrimSpace(it.Link)
	}
	if guid == "" {
		return entity.FeedEntry{}, false
	}

	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = defaultEntryTitle
	}

	// Content優先、なければDescriptionを使用
	description := sanitize(it.Description)
	content := sanitize(it.Content)
	if content == "" {
		content = description
	}

	pub := it.PublishedParsed
	if pub == nil {
		pub = it.UpdatedParsed
	}

	return entity.FeedEntry{
		GUID:        guid,
		Title:       title,
		Link:        it.Link,
		Description: truncateRunes(description, maxDescriptionRunes),
		Content:     content,
		CoverImage:  coverImage(it),
		PubDate:     pub,
	}, true
}

// coverImage looks at media:content, media:thumbnail, the item image and
// image enclosures, in that order.
func coverImage(it *gofeed.Item) string {
	if media, ok := it.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, ext := range media[name] {
				if u := ext.Attrs["url"]; u != "" {
					return u
				}
			}
		}
	}
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
