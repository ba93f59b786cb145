package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// AskAction は RAG 回答を生成するコマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	query := cmd.String("query")
	topChunks := cmd.Int("top-chunks")
	topArticles := cmd.Int("top-articles")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.Answer.Ask(ctx, query, topChunks, topArticles)
	if err != nil {
		return fmt.Errorf("回答の生成に失敗: %w", err)
	}

	fmt.Println(result.Answer)
	if len(result.Sources) > 0 {
		fmt.Println()
		fmt.Println("参照記事:")
		for i, src := range result.Sources {
			fmt.Printf("  [S%d] %s\n", i+1, src.Title)
			if src.URL != "" {
				fmt.Printf("       %s\n", src.URL)
			}
		}
	}
	if result.Cached {
		fmt.Println()
		fmt.Println("(キャッシュされた回答)")
	}
	return nil
}
