package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// IngestRunAction は取り込みサイクルを 1 回だけ実行するコマンドのアクション
func IngestRunAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.Scheduler.RunOnce(ctx); err != nil {
		return fmt.Errorf("取り込みの実行に失敗: %w", err)
	}

	appCtx.Container.Logger.Info("取り込みサイクルが完了しました")
	return nil
}

// IngestFetchAction はニュース API から最新記事を取得するコマンドのアクション
func IngestFetchAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	inserted, err := appCtx.Container.Fetcher.FetchLatest(ctx)
	if err != nil {
		return fmt.Errorf("記事の取得に失敗: %w", err)
	}

	fmt.Printf("新規記事: %d 件\n", inserted)
	return nil
}
