// Package keyword は記事からの検索キーワード抽出を提供する。
package keyword

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Keyword は記事から抽出された検索キーワードを表す
type Keyword struct {
	ID        uuid.UUID
	ArticleID int64
	Word      string
	CreatedAt time.Time
}

// Repository はキーワードストアへのアクセスインターフェース
type Repository interface {
	// InsertKeywords はキーワードを一括保存する
	InsertKeywords(ctx context.Context, keywords []*Keyword) error
}

// Completer はLLM補完インターフェース
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
