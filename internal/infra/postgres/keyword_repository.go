package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/news-rag/internal/core/keyword"
)

// KeywordRepository は keyword.Repository インターフェースを実装する PostgreSQL リポジトリ
type KeywordRepository struct {
	pool *pgxpool.Pool
}

// NewKeywordRepository は新しい KeywordRepository を作成する
func NewKeywordRepository(pool *pgxpool.Pool) *KeywordRepository {
	return &KeywordRepository{pool: pool}
}

// コンパイル時の型チェック
var _ keyword.Repository = (*KeywordRepository)(nil)

// InsertKeywords はキーワードを一括保存する。
// 同じ記事に同じ語が既にある場合はスキップする
func (r *KeywordRepository) InsertKeywords(ctx context.Context, keywords []*keyword.Keyword) error {
	if len(keywords) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO article_keywords (id, article_id, word, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (article_id, word) DO NOTHING
	`

	for _, kw := range keywords {
		if _, err := tx.Exec(ctx, query, kw.ID, kw.ArticleID, kw.Word, kw.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert keyword %q: %w", kw.Word, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit keywords: %w", err)
	}
	return nil
}
