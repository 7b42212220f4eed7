package render

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/debemdeboas/folio/internal/cache"
	"github.com/debemdeboas/folio/internal/config"
)

func setupTest() {
	cache.ClearRenderedMarkdownCache()
}

func cacheKey(contentHash, syntaxTheme string) cache.RenderKey {
	return cache.RenderKey{ContentHash: contentHash, SyntaxTheme: syntaxTheme, Engine: config.AppConfig.Render.Engine}
}

func assertCacheEntry(t *testing.T, contentHash, syntaxTheme string, expectedHTML []byte, expectedMeta *Meta) {
	t.Helper()
	cached, found := cache.GetRenderedMarkdown(cacheKey(contentHash, syntaxTheme))
	if !found {
		t.Errorf("Expected content to be cached for hash:%s theme:%s", contentHash, syntaxTheme)
		return
	}
	if !bytes.Equal(cached.HTML, expectedHTML) {
		t.Errorf("Cached HTML mismatch. Expected %q, got %q", string(expectedHTML), string(cached.HTML))
	}
	if cached.Extra != any(expectedMeta) {
		t.Errorf("Cached meta mismatch. Expected %p, got %v", expectedMeta, cached.Extra)
	}
}

func TestRenderMarkdownCached(t *testing.T) {
	tests := []struct {
		name        string
		markdown    []byte
		contentHash string
		syntaxTheme string
	}{
		{"basic markdown", []byte("# Test Header\n\nSome content with `code`"), "hash-1", "github"},
		{"empty content", []byte(""), "hash-empty", "github"},
		{"code block", []byte("```go\nfunc main() {\n    fmt.Println(\"Hello\")\n}\n```"), "hash-code", "monokai"},
		{"math content", []byte("Math formula: $E = mc^2$"), "hash-math", "github"},
		{"directive", []byte(":::note\nbody\n:::\n"), "hash-directive", "github"},
	}

	setupTest()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html1, meta1 := RenderMarkdownCached(tt.markdown, tt.contentHash, tt.syntaxTheme)
			if !bytes.HasPrefix(html1, []byte(`<article class="prose reveal-stagger">`)) {
				t.Errorf("Expected article wrapper, got %q", html1)
			}
			if meta1 == nil {
				t.Fatal("Expected meta")
			}
			assertCacheEntry(t, tt.contentHash, tt.syntaxTheme, html1, meta1)

			html2, meta2 := RenderMarkdownCached(tt.markdown, tt.contentHash, tt.syntaxTheme)
			if !bytes.Equal(html1, html2) {
				t.Error("Cache hit should return identical HTML")
			}
			if meta1 != meta2 {
				t.Error("Cache hit should return the same meta")
			}
		})
	}
}

func TestCacheKeyUniqueness(t *testing.T) {
	setupTest()

	md := []byte("```go\nx := 1\n```")
	a, _ := RenderMarkdownCached(md, "same-hash", "github")
	b, _ := RenderMarkdownCached(md, "same-hash", "monokai")
	c, _ := RenderMarkdownCached([]byte("# Other"), "other-hash", "github")

	if _, ok := cache.GetRenderedMarkdown(cacheKey("same-hash", "github")); !ok {
		t.Error("github entry missing")
	}
	if _, ok := cache.GetRenderedMarkdown(cacheKey("same-hash", "monokai")); !ok {
		t.Error("monokai entry missing")
	}
	if bytes.Equal(a, c) || len(b) == 0 {
		t.Error("Expected distinct renders per key")
	}
}

func TestCacheConcurrency(t *testing.T) {
	setupTest()

	const numGoroutines = 50
	markdown := []byte("# Concurrent Test\n\nContent with `code`")

	var wg sync.WaitGroup
	results := make(chan []byte, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			html, _ := RenderMarkdownCached(markdown, "concurrent-hash", "github")
			results <- html
		}()
	}
	wg.Wait()
	close(results)

	var first []byte
	for r := range results {
		if first == nil {
			first = r
			continue
		}
		if !bytes.Equal(r, first) {
			t.Fatal("Concurrent renders returned different HTML")
		}
	}
}

func TestEmptyHashSkipsCache(t *testing.T) {
	setupTest()
	html, meta := RenderMarkdownCached([]byte("# Hi"), "", "github")
	if len(html) == 0 || meta == nil {
		t.Fatal("Expected a render without caching")
	}
	if _, ok := cache.GetRenderedMarkdown(cacheKey("", "github")); ok {
		t.Error("Empty hash must not be cached")
	}
}

func TestFrontMatterMeta(t *testing.T) {
	for _, engine := range []string{config.RendererMmark, config.RendererGoldmark} {
		t.Run(engine, func(t *testing.T) {
			md := []byte("%%%\ntitle = \"Hello\"\nslug = \"hello\"\n%%%\n\n# Body\n")
			out, meta := RenderWith(md, Options{Engine: engine, SyntaxTheme: "github"})
			if meta.Title != "Hello" || meta.Info == nil || meta.Info.Slug != "hello" {
				t.Errorf("unexpected meta %+v", meta)
			}
			if strings.Contains(string(out), "title =") {
				t.Errorf("front matter leaked into output: %s", out)
			}
		})
	}
}

func TestWarmCache(t *testing.T) {
	setupTest()
	md := []byte("# Warm")
	WarmCache(md, "warm-hash", "github")
	// The synchronous render waits on the same lock and then hits the cache
	html, _ := RenderMarkdownCached(md, "warm-hash", "github")
	if len(html) == 0 {
		t.Fatal("Expected HTML")
	}
}

func BenchmarkRenderMarkdownCached(b *testing.B) {
	md := []byte("# Bench\n\n:::tip{title=\"T\"}\n```go\nfunc main() {}\n```\n:::\n")
	RenderMarkdownCached(md, "bench", "github")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RenderMarkdownCached(md, "bench", "github")
	}
}

func BenchmarkRenderMarkdownUncached(b *testing.B) {
	md := []byte("# Bench\n\n:::tip{title=\"T\"}\n```go\nfunc main() {}\n```\n:::\n")
	for i := 0; i < b.N; i++ {
		RenderMarkdown(md, "github")
	}
}
