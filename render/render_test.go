// ABOUTME: Tests for the markdown renderer and its content-hash cache.
// ABOUTME: Covers basic conversion, HTML escaping, caching, and TTL expiry.
package render

import (
	"strings"
	"testing"
	"time"
)

func TestMarkdownBasics(t *testing.T) {
	r := NewRenderer(time.Minute)
	html := string(r.Markdown("# Title\n\nSome *emphasis*."))
	if !strings.Contains(html, "<h1>") || !strings.Contains(html, "<em>emphasis</em>") {
		t.Errorf("html = %q", html)
	}
}

func TestRawHTMLEscaped(t *testing.T) {
	r := NewRenderer(time.Minute)
	html := string(r.Markdown(`<script>alert("x")</script>`))
	if strings.Contains(html, "<script>") {
		t.Errorf("raw html leaked: %q", html)
	}
}

func TestCacheHit(t *testing.T) {
	r := NewRenderer(time.Minute)
	first := r.Markdown("cached content")
	second := r.Markdown("cached content")
	if first != second {
		t.Error("cache returned different output")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 cache entry, got %d", r.Len())
	}
}

func TestCacheExpiry(t *testing.T) {
	r := NewRenderer(time.Millisecond)
	r.Markdown("expiring")
	time.Sleep(5 * time.Millisecond)
	// Expired entries are re-rendered, not served stale.
	r.Markdown("expiring")
	if r.Len() != 1 {
		t.Errorf("expected entry to be refreshed in place, got %d", r.Len())
	}
}

func TestClear(t *testing.T) {
	r := NewRenderer(time.Minute)
	r.Markdown("a")
	r.Markdown("b")
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("expected empty cache, got %d", r.Len())
	}
}
