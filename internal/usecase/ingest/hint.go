package ingest

import (
	"net/url"
	"strconv"
)

const (
	limitHintParam = "limit"
	limitHintValue = 100
)

// WithLimitHint appends a limit query parameter asking the feed host for as
// many items as it is willing to return. URLs that already carry one, or that
// cannot be parsed, are returned unchanged.
func WithLimitHint(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return feedURL
	}
	q := u.Query()
	if q.Has(limitHintParam) {
		return feedURL
	}
	q.Set(limitHintParam, strconv.Itoa(limitHintValue))
	u.RawQuery = q.Encode()
	return u.String()
}
