package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// SearchHybridAction は記事全体のハイブリッド検索を実行するコマンドのアクション
func SearchHybridAction(ctx context.Context, cmd *cli.Command) error {
	query := cmd.String("query")
	top := cmd.Int("top")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	results, err := appCtx.Container.Search.HybridSearch(ctx, query, top)
	if err != nil {
		return fmt.Errorf("検索に失敗: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("該当する記事はありません")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, r.Score, r.Article.Title)
		if r.Article.URL != "" {
			fmt.Printf("   %s\n", r.Article.URL)
		}
	}
	return nil
}

// SearchChunksAction はチャンク単位のハイブリッド検索を実行するコマンドのアクション
func SearchChunksAction(ctx context.Context, cmd *cli.Command) error {
	query := cmd.String("query")
	topChunks := cmd.Int("top-chunks")
	topArticles := cmd.Int("top-articles")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	results, err := appCtx.Container.Search.ChunkHybridSearch(ctx, query, topChunks, topArticles)
	if err != nil {
		return fmt.Errorf("検索に失敗: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("該当する記事はありません")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, r.Score, r.Article.Title)
		if r.Snippet != "" {
			fmt.Printf("   %s\n", r.Snippet)
		}
	}
	return nil
}
