package answer

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/news-rag/internal/core/article"
	"github.com/jinford/news-rag/internal/core/search"
)

type stubSearcher struct {
	results []*search.ChunkResult
	err     error
}

func (s *stubSearcher) ChunkHybridSearch(ctx context.Context, query string, topChunks, topArticles int) ([]*search.ChunkResult, error) {
	return s.results, s.err
}

type stubCompleter struct {
	answer string
	err    error
	calls  int
	prompt string
}

func (c *stubCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	c.calls++
	c.prompt = user
	return c.answer, c.err
}

type memoryCache struct {
	values map[string][]byte
	ttls   map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.values[key] = value
	c.ttls[key] = ttl
}

func chunkResult(id int64, title, snippet string, score float64) *search.ChunkResult {
	return &search.ChunkResult{
		Article: &article.Article{ID: id, Title: title, URL: "https://example.com"},
		Score:   score,
		Snippet: snippet,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAsk_GeneratesAnswerWithSources(t *testing.T) {
	searcher := &stubSearcher{results: []*search.ChunkResult{
		chunkResult(1, "Go 1.24", "generics update", 9),
		chunkResult(2, "AI", "model release", 7),
	}}
	completer := &stubCompleter{answer: "Go 1.24 では [S1] ..."}
	svc := NewService(searcher, completer, WithLogger(testLogger()))

	result, err := svc.Ask(context.Background(), "Go の新機能は？", 15, 5)

	require.NoError(t, err)
	assert.Equal(t, "Go 1.24 では [S1] ...", result.Answer)
	assert.False(t, result.Cached)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, int64(1), result.Sources[0].ArticleID)
	// プロンプトに [S#] ラベルとスニペットが含まれる
	assert.Contains(t, completer.prompt, "[S1] Go 1.24")
	assert.Contains(t, completer.prompt, "generics update")
	assert.Contains(t, completer.prompt, "Go の新機能は？")
}

func TestAsk_EmptyQueryIsError(t *testing.T) {
	svc := NewService(&stubSearcher{}, &stubCompleter{}, WithLogger(testLogger()))

	_, err := svc.Ask(context.Background(), "", 15, 5)

	assert.Error(t, err)
}

func TestAsk_SecondCallServedFromCache(t *testing.T) {
	searcher := &stubSearcher{results: []*search.ChunkResult{
		chunkResult(1, "t", "snippet", 9),
	}}
	completer := &stubCompleter{answer: "answer"}
	cache := newMemoryCache()
	svc := NewService(searcher, completer, WithCache(cache), WithLogger(testLogger()))

	first, err := svc.Ask(context.Background(), "query", 15, 5)
	require.NoError(t, err)
	second, err := svc.Ask(context.Background(), "query", 15, 5)
	require.NoError(t, err)

	assert.Equal(t, 1, completer.calls)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Answer, second.Answer)
	// キャッシュ済みでも根拠は再計算されて返る
	assert.Len(t, second.Sources, 1)
	for _, ttl := range cache.ttls {
		assert.Equal(t, DefaultCacheTTL, ttl)
	}
}

func TestAsk_CacheMissWhenSourcesChange(t *testing.T) {
	searcher := &stubSearcher{results: []*search.ChunkResult{
		chunkResult(1, "t", "snippet", 9),
	}}
	completer := &stubCompleter{answer: "answer"}
	cache := newMemoryCache()
	svc := NewService(searcher, completer, WithCache(cache), WithLogger(testLogger()))

	_, err := svc.Ask(context.Background(), "query", 15, 5)
	require.NoError(t, err)

	searcher.results = append(searcher.results, chunkResult(2, "t2", "other", 5))
	_, err = svc.Ask(context.Background(), "query", 15, 5)
	require.NoError(t, err)

	assert.Equal(t, 2, completer.calls)
}

func TestAsk_TruncatesLongSnippetsInPrompt(t *testing.T) {
	long := strings.Repeat("あ", 1000)
	searcher := &stubSearcher{results: []*search.ChunkResult{
		chunkResult(1, "t", long, 9),
	}}
	completer := &stubCompleter{answer: "answer"}
	svc := NewService(searcher, completer, WithLogger(testLogger()))

	_, err := svc.Ask(context.Background(), "query", 15, 5)

	require.NoError(t, err)
	assert.Contains(t, completer.prompt, strings.Repeat("あ", maxSnippetChars)+"...")
	assert.NotContains(t, completer.prompt, strings.Repeat("あ", maxSnippetChars+1))
}

func TestCacheKey_IgnoresIDOrderAndQueryVariants(t *testing.T) {
	a := CacheKey("  What Happened?  ", []int64{3, 1, 2})
	b := CacheKey("what happened?", []int64{1, 2, 3})
	c := CacheKey("what happened?", []int64{1, 2})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "ans:"))
}
