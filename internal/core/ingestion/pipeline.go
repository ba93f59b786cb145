package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinford/news-rag/internal/core/article"
	"github.com/jinford/news-rag/internal/core/index"
)

// Embedder はテキストの埋め込み生成インターフェース。
// 失敗時は長さ 0 のベクトルを返す契約
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Limiter は埋め込み呼び出しのレート制限インターフェース。
// Wait はこれから行う n 回分の呼び出し枠を確保するまでブロックする
type Limiter interface {
	Wait(ctx context.Context, n int) error
}

// PipelineConfig は Pipeline の設定
type PipelineConfig struct {
	ArticleIndex string
	ChunkIndex   string
	ChunkSize    int
	ChunkOverlap int
}

// Pipeline は記事のインデックス投入処理を提供する
type Pipeline struct {
	store    index.Store
	embedder Embedder
	limiter  Limiter
	cfg      PipelineConfig
	logger   *slog.Logger
}

// NewPipeline は新しい Pipeline を作成する
func NewPipeline(store index.Store, embedder Embedder, limiter Limiter, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, embedder: embedder, limiter: limiter, cfg: cfg, logger: logger}
}

// UpsertArticles は記事全体を embedding 付きで記事インデックスへ投入する。
// 埋め込み枠はバッチ全体分を先に確保する
func (p *Pipeline) UpsertArticles(ctx context.Context, articles []*article.Article) error {
	if len(articles) == 0 {
		return nil
	}

	if err := p.limiter.Wait(ctx, len(articles)); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	docs := make([]index.Document, 0, len(articles))
	for _, a := range articles {
		vector := p.embedder.Embed(ctx, articleEmbeddingText(a))
		docs = append(docs, index.ArticleDocument(a, vector))
	}

	if err := p.store.Upsert(ctx, p.cfg.ArticleIndex, docs); err != nil {
		return fmt.Errorf("failed to upsert articles: %w", err)
	}

	p.logger.Info("記事インデックスへ投入しました", "articles", len(docs))
	return nil
}

// UpsertArticleChunks は記事本文をチャンク化してチャンクインデックスへ
// 投入し、チャンク数を返す。埋め込み枠はチャンク数分を先に確保する
func (p *Pipeline) UpsertArticleChunks(ctx context.Context, a *article.Article) (int, error) {
	var chunks []string
	for _, chunk := range Chunks(a.Content, p.cfg.ChunkSize, p.cfg.ChunkOverlap) {
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	if err := p.limiter.Wait(ctx, len(chunks)); err != nil {
		return 0, fmt.Errorf("rate limit wait failed: %w", err)
	}

	docs := make([]index.Document, 0, len(chunks))
	for order, chunk := range chunks {
		vector := p.embedder.Embed(ctx, chunk)
		docs = append(docs, index.ChunkDocument(a, order, chunk, vector))
	}

	if err := p.store.Upsert(ctx, p.cfg.ChunkIndex, docs); err != nil {
		return 0, fmt.Errorf("failed to upsert article chunks: %w", err)
	}

	p.logger.Info("チャンクインデックスへ投入しました", "articleID", a.ID, "chunks", len(docs))
	return len(docs), nil
}

// articleEmbeddingText は記事全体の embedding 入力テキストを組み立てる
func articleEmbeddingText(a *article.Article) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{a.Title, a.Description, a.Content} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
