package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FaviconFinder resolves the icon URL of the site hosting a feed.
type FaviconFinder struct {
	client *http.Client
}

func NewFaviconFinder(client *http.Client) *FaviconFinder {
	return &FaviconFinder{client: client}
}

var iconRels = []string{"icon", "shortcut icon", "apple-touch-icon"}

// Find returns the first <link rel=icon> found on the site root, else the
// conventional /favicon.ico. It returns "" only when feedURL has no host.
func (f *FaviconFinder) Find(ctx context.Context, feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return ""
	}
	base := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	fallback := base.ResolveReference(&url.URL{Path: "/favicon.ico"}).String()

	href, err := f.fromHTML(ctx, base.String())
	if err != nil {
		slog.Debug("favicon lookup from HTML failed",
			slog.String("url", base.String()),
			slog.Any("error", err))
		return fallback
	}
	if href == "" {
		return fallback
	}
	ref, err := url.Parse(href)
	if err != nil {
		return fallback
	}
	return base.ResolveReference(ref).String()
}

func (f *FaviconFinder) fromHTML(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", err
	}

	found := map[string]string{}
	doc.Find("link[rel][href]").Each(func(_ int, s *goquery.Selection) {
		rel := strings.ToLower(strings.TrimSpace(s.AttrOr("rel", "")))
		if _, seen := found[rel]; !seen {
			found[rel] = strings.TrimSpace(s.AttrOr("href", ""))
		}
	})
	for _, rel := range iconRels {
		if href := found[rel]; href != "" {
			return href, nil
		}
	}
	return "", nil
}
