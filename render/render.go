// ABOUTME: Markdown-to-HTML rendering for assistant message display, with a
// ABOUTME: sha256-keyed TTL cache so repeated renders of the same content are free.
package render

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/yuin/goldmark"
)

// cacheEntry holds a single cached render with its creation timestamp.
type cacheEntry struct {
	html      template.HTML
	createdAt time.Time
}

// Renderer converts assistant message markdown to HTML. Results are cached
// by content hash with TTL-based expiry; errors are never cached.
type Renderer struct {
	md      goldmark.Markdown
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

// NewRenderer creates a Renderer whose cache entries expire after ttl.
func NewRenderer(ttl time.Duration) *Renderer {
	return &Renderer{
		md:      goldmark.New(),
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
	}
}

// Markdown renders markdown to HTML. Raw HTML in the input is escaped by
// goldmark's default renderer, so message content cannot inject markup.
func (r *Renderer) Markdown(input string) template.HTML {
	key := cacheKey(input)

	r.mu.RLock()
	if entry, ok := r.entries[key]; ok && time.Since(entry.createdAt) < r.ttl {
		r.mu.RUnlock()
		return entry.html
	}
	r.mu.RUnlock()

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(input), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(input))
	}
	html := template.HTML(buf.String())

	r.mu.Lock()
	r.entries[key] = &cacheEntry{html: html, createdAt: time.Now()}
	r.mu.Unlock()
	return html
}

// Clear empties the cache.
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*cacheEntry)
}

// Len returns the number of cached renders.
func (r *Renderer) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func cacheKey(input string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(input)))
}
