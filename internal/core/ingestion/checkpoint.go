package ingestion

import (
	"context"
	"time"

	"github.com/samber/mo"
)

// CheckpointStore は取り込み済み位置（最後に処理した publishedAt）の
// 永続化インターフェース。チェックポイントはインデックスへの書き込みが
// すべて成功した後にのみ前進させる
type CheckpointStore interface {
	// Load は保存済みのチェックポイントを返す
	Load(ctx context.Context) (mo.Option[time.Time], error)

	// Save はチェックポイントを保存する
	Save(ctx context.Context, t time.Time) error

	// Reset はチェックポイントを削除する。次回の取り込みは最初からやり直す
	Reset(ctx context.Context) error
}
