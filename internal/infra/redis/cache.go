// Package redis は Redis を使ったキャッシュとチェックポイントの永続化を提供する。
package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jinford/news-rag/internal/core/answer"
	"github.com/jinford/news-rag/internal/core/embedding"
)

// Cache は Redis ベースの advisory キャッシュ実装。
// Redis 障害はミスとして扱い、呼び出し元の処理を止めない
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache は新しい Cache を作成する
func NewCache(client *redis.Client, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, logger: logger}
}

// Get はキーに対応する値を返す。キーが無い場合と Redis 障害はともにミス
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("キャッシュの読み取りに失敗しました", "key", key, "error", err)
		}
		return nil, false
	}
	return value, true
}

// Set は値を TTL 付きで保存する。失敗はログのみで握りつぶす
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("キャッシュの書き込みに失敗しました", "key", key, "error", err)
	}
}

// NewClient は Redis URL からクライアントを作成する
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// インターフェース実装の確認
var (
	_ embedding.Cache = (*Cache)(nil)
	_ answer.Cache    = (*Cache)(nil)
)
