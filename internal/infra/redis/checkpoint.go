package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/mo"

	"github.com/jinford/news-rag/internal/core/ingestion"
)

// CheckpointKey は取り込みチェックポイントの保存キー
const CheckpointKey = "ingest:lastPublishedAt"

// CheckpointStore は Redis ベースの ingestion.CheckpointStore 実装。
// キャッシュと違い、チェックポイントの読み書き失敗はエラーとして返す。
// 失敗を黙殺すると同じ記事を二重に取り込むため
type CheckpointStore struct {
	client *redis.Client
}

// NewCheckpointStore は新しい CheckpointStore を作成する
func NewCheckpointStore(client *redis.Client) *CheckpointStore {
	return &CheckpointStore{client: client}
}

// Load は保存済みのチェックポイントを返す
func (s *CheckpointStore) Load(ctx context.Context) (mo.Option[time.Time], error) {
	value, err := s.client.Get(ctx, CheckpointKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return mo.None[time.Time](), nil
		}
		return mo.None[time.Time](), fmt.Errorf("failed to load checkpoint: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return mo.None[time.Time](), fmt.Errorf("invalid checkpoint value %q: %w", value, err)
	}
	return mo.Some(t), nil
}

// Save はチェックポイントを RFC3339Nano 形式で保存する
func (s *CheckpointStore) Save(ctx context.Context, t time.Time) error {
	value := t.UTC().Format(time.RFC3339Nano)
	if err := s.client.Set(ctx, CheckpointKey, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Reset はチェックポイントを削除する
func (s *CheckpointStore) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, CheckpointKey).Err(); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	return nil
}

// インターフェース実装の確認
var _ ingestion.CheckpointStore = (*CheckpointStore)(nil)
