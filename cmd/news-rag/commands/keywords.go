package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

// KeywordsGenerateAction は記事からキーワードを抽出するコマンドのアクション
func KeywordsGenerateAction(ctx context.Context, cmd *cli.Command) error {
	sinceRaw := cmd.String("since")
	limit := cmd.Int("limit")
	envFile := cmd.String("env")

	since := time.Time{}
	if sinceRaw != "" {
		parsed, err := time.Parse(time.RFC3339, sinceRaw)
		if err != nil {
			return fmt.Errorf("since は RFC3339 形式で指定してください: %w", err)
		}
		since = parsed
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	n, err := appCtx.Container.Keywords.GenerateSince(ctx, since, limit)
	if err != nil {
		return fmt.Errorf("キーワード抽出に失敗: %w", err)
	}

	fmt.Printf("抽出したキーワード: %d 件\n", n)
	return nil
}
