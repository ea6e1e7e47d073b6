package scraper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"ai-feed-reader/internal/infra/scraper"
)

func TestFaviconFinder_Find(t *testing.T) {
	tests := []struct {
		name   string
		status int
		html   string
		want   string // relative to server root
	}{
		{
			name:   "rel icon",
			status: http.StatusOK,
			html:   `<html><head><link rel="stylesheet" href="/a.css"><link rel="icon" href="/static/icon.png"></head></html>`,
			want:   "/static/icon.png",
		},
		{
			name:   "shortcut icon preferred over apple-touch-icon",
			status: http.StatusOK,
			html:   `<html><head><link rel="apple-touch-icon" href="/apple.png"><link rel="Shortcut Icon" href="short.ico"></head></html>`,
			want:   "/short.ico",
		},
		{
			name:   "no link falls back to favicon.ico",
			status: http.StatusOK,
			html:   `<html><head><title>x</title></head></html>`,
			want:   "/favicon.ico",
		},
		{
			name:   "error page falls back to favicon.ico",
			status: http.StatusNotFound,
			html:   ``,
			want:   "/favicon.ico",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/" {
					http.NotFound(w, r)
					return
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.html))
			}))
			defer srv.Close()

			got := scraper.NewFaviconFinder(srv.Client()).Find(context.Background(), srv.URL+"/feeds/rss.xml")
			assert.Equal(t, srv.URL+tt.want, got)
		})
	}
}

func TestFaviconFinder_Find_NoHost(t *testing.T) {
	assert.Equal(t, "", scraper.NewFaviconFinder(http.DefaultClient).Find(context.Background(), "not a url"))
}
