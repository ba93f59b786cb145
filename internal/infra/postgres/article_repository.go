// Package postgres は PostgreSQL を使ったリポジトリ実装を提供する。
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/jinford/news-rag/internal/core/article"
)

// ArticleRepository は article.Repository インターフェースを実装する PostgreSQL リポジトリ
type ArticleRepository struct {
	pool *pgxpool.Pool
}

// NewArticleRepository は新しい ArticleRepository を作成する
func NewArticleRepository(pool *pgxpool.Pool) *ArticleRepository {
	return &ArticleRepository{pool: pool}
}

// コンパイル時の型チェック
var _ article.Repository = (*ArticleRepository)(nil)

const articleColumns = `id, source_id, source_name, author, title, description, url, url_to_image, published_at, content`

// ListPublishedAfter は publishedAt が after より新しい記事を昇順で返す
func (r *ArticleRepository) ListPublishedAfter(ctx context.Context, after time.Time, limit int) ([]*article.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles
		WHERE published_at > $1
		ORDER BY published_at ASC, id ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []*article.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}
	return articles, nil
}

// GetByID は ID が一致する記事を返す
func (r *ArticleRepository) GetByID(ctx context.Context, id int64) (mo.Option[*article.Article], error) {
	query := `
		SELECT ` + articleColumns + `
		FROM articles
		WHERE id = $1
	`

	row := r.pool.QueryRow(ctx, query, id)
	a, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*article.Article](), nil
		}
		return mo.None[*article.Article](), err
	}
	return mo.Some(a), nil
}

// Upsert は記事を保存し、新規に保存された件数を返す。
// 同じ URL の記事が既にある場合は何も変更しない
func (r *ArticleRepository) Upsert(ctx context.Context, articles []*article.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO articles (source_id, source_name, author, title, description, url, url_to_image, published_at, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (url) DO NOTHING
	`

	inserted := 0
	for _, a := range articles {
		if a.URL == "" {
			continue
		}
		tag, err := tx.Exec(ctx, query,
			a.SourceID, a.SourceName, a.Author, a.Title, a.Description,
			a.URL, a.URLToImage, a.PublishedAt, a.Content,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert article %q: %w", a.URL, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit articles: %w", err)
	}
	return inserted, nil
}

func scanArticle(row pgx.Row) (*article.Article, error) {
	var a article.Article
	err := row.Scan(
		&a.ID, &a.SourceID, &a.SourceName, &a.Author, &a.Title,
		&a.Description, &a.URL, &a.URLToImage, &a.PublishedAt, &a.Content,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}
	return &a, nil
}
