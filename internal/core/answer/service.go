package answer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/news-rag/internal/core/search"
)

// Searcher はチャンクハイブリッド検索インターフェース
type Searcher interface {
	ChunkHybridSearch(ctx context.Context, query string, topChunks, topArticles int) ([]*search.ChunkResult, error)
}

// Service は RAG 回答生成のビジネスロジックを提供する
type Service struct {
	searcher Searcher
	llm      Completer
	cache    Cache
	ttl      time.Duration
	logger   *slog.Logger
}

type ServiceOption func(*Service)

// WithCache は回答キャッシュを設定する
func WithCache(cache Cache) ServiceOption {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithCacheTTL は回答キャッシュの TTL を設定する
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService は新しい Service を作成する
func NewService(searcher Searcher, llm Completer, opts ...ServiceOption) *Service {
	svc := &Service{
		searcher: searcher,
		llm:      llm,
		ttl:      DefaultCacheTTL,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// Ask は質問に対してチャンク検索で根拠を集め、RAG ベースで回答を生成する。
// 同じ質問と同じ根拠集合に対する回答はキャッシュから返す
func (s *Service) Ask(ctx context.Context, query string, topChunks, topArticles int) (*Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if topChunks <= 0 {
		topChunks = 15
	}
	if topArticles <= 0 {
		topArticles = 5
	}

	results, err := s.searcher.ChunkHybridSearch(ctx, query, topChunks, topArticles)
	if err != nil {
		return nil, fmt.Errorf("chunk hybrid search failed: %w", err)
	}

	sources := make([]Source, 0, len(results))
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			ArticleID: r.Article.ID,
			Title:     r.Article.Title,
			URL:       r.Article.URL,
			Snippet:   r.Snippet,
			Score:     r.Score,
		})
		ids = append(ids, r.Article.ID)
	}

	key := CacheKey(query, ids)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.logger.Info("回答キャッシュにヒットしました", "query", query, "sources", len(sources))
			return &Result{Answer: string(cached), Sources: sources, Cached: true}, nil
		}
	}

	prompt := BuildAnswerPrompt(query, sources)
	answer, err := s.llm.Complete(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, []byte(answer), s.ttl)
	}

	s.logger.Info("回答を生成しました",
		"query", query,
		"answerLength", len(answer),
		"sources", len(sources),
	)

	return &Result{Answer: answer, Sources: sources}, nil
}
