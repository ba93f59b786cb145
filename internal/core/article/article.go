package article

import (
	"context"
	"time"

	"github.com/samber/mo"
)

// Article はニュース記事を表す。
// URL はグローバルに一意であり、同一 URL の記事は二重登録されない。
type Article struct {
	ID          int64
	SourceID    string
	SourceName  string
	Author      string
	Title       string
	Description string
	URL         string
	URLToImage  string
	PublishedAt *time.Time
	Content     string
}

// Repository は記事ストアへのアクセスインターフェース
type Repository interface {
	// ListPublishedAfter は publishedAt が after より新しい記事を
	// publishedAt 昇順で最大 limit 件返す
	ListPublishedAfter(ctx context.Context, after time.Time, limit int) ([]*Article, error)

	// GetByID は ID が一致する記事を返す
	GetByID(ctx context.Context, id int64) (mo.Option[*Article], error)

	// Upsert は記事を保存する。URL が既存の記事はスキップされ、
	// 新規に保存された件数を返す
	Upsert(ctx context.Context, articles []*Article) (int, error)
}
