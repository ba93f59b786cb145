package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// IndexEnsureAction はインデックススキーマの整合性を確認するコマンドのアクション
func IndexEnsureAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.Indexes.EnsureAll(ctx); err != nil {
		return fmt.Errorf("インデックスの確認に失敗: %w", err)
	}

	fmt.Println("インデックスは整合しています")
	return nil
}

// CheckpointResetAction は取り込みチェックポイントを初期化するコマンドのアクション
func CheckpointResetAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.Checkpoints.Reset(ctx); err != nil {
		return fmt.Errorf("チェックポイントの初期化に失敗: %w", err)
	}

	fmt.Println("チェックポイントを初期化しました")
	return nil
}
