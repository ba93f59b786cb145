package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/news-rag/internal/core/article"
)

// NewsProvider は外部ニュース API へのアクセスインターフェース
type NewsProvider interface {
	// TopHeadlines はトップニュースを 1 ページ分取得し、
	// 記事と全体件数を返す。page は 1 始まり
	TopHeadlines(ctx context.Context, page, pageSize int) ([]*article.Article, int, error)
}

const (
	// DefaultPageSize は 1 リクエストで取得する記事数
	DefaultPageSize = 100

	// DefaultMaxPages は 1 回の取得で辿るページ数の上限。
	// プロバイダ側の総件数が壊れていても無限に叩き続けない
	DefaultMaxPages = 10
)

// FetcherConfig は Fetcher の設定
type FetcherConfig struct {
	PageSize int
	MaxPages int
}

// Fetcher はニュース API から記事を取得して記事ストアへ保存する
type Fetcher struct {
	provider NewsProvider
	articles article.Repository
	quota    Limiter
	cfg      FetcherConfig
	logger   *slog.Logger
}

// NewFetcher は新しい Fetcher を作成する。
// quota は API リクエスト数の上限（日次クォータなど）を課す
func NewFetcher(provider NewsProvider, articles article.Repository, quota Limiter, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{provider: provider, articles: articles, quota: quota, cfg: cfg, logger: logger}
}

// FetchLatest はトップニュースをページングしながら取得して保存し、
// 新規に保存された記事数を返す。既知の URL を持つ記事はスキップされる
func (f *Fetcher) FetchLatest(ctx context.Context) (int, error) {
	inserted := 0
	fetched := 0

	for page := 1; page <= f.cfg.MaxPages; page++ {
		if err := f.quota.Wait(ctx, 1); err != nil {
			return inserted, fmt.Errorf("news api quota wait failed: %w", err)
		}

		articles, total, err := f.provider.TopHeadlines(ctx, page, f.cfg.PageSize)
		if err != nil {
			return inserted, fmt.Errorf("failed to fetch top headlines (page %d): %w", page, err)
		}
		if len(articles) == 0 {
			break
		}

		n, err := f.articles.Upsert(ctx, articles)
		if err != nil {
			return inserted, fmt.Errorf("failed to store fetched articles: %w", err)
		}
		inserted += n
		fetched += len(articles)

		f.logger.Info("ニュースを取得しました",
			"page", page,
			"fetched", len(articles),
			"inserted", n,
			"total", total,
		)

		if len(articles) < f.cfg.PageSize || fetched >= total {
			break
		}
	}

	return inserted, nil
}
