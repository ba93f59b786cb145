package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/news-rag/cmd/news-rag/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "news-rag",
		Usage: "ニュース記事のハイブリッド検索および RAG 回答システム",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "HTTPサーバと取り込みスケジューラを起動",
				Flags: []cli.Flag{
					envFlag,
					&cli.IntFlag{
						Name:  "port",
						Usage: "HTTPポート（省略時は環境変数またはデフォルトの8080）",
					},
					&cli.BoolFlag{
						Name:  "no-ingest",
						Usage: "取り込みスケジューラを起動しない",
					},
				},
				Action: commands.ServeAction,
			},
			{
				Name:  "ingest",
				Usage: "記事取り込みコマンド",
				Commands: []*cli.Command{
					{
						Name:   "run",
						Usage:  "取り込みサイクルを1回実行",
						Flags:  []cli.Flag{envFlag},
						Action: commands.IngestRunAction,
					},
					{
						Name:   "fetch",
						Usage:  "ニュースAPIから最新記事を取得",
						Flags:  []cli.Flag{envFlag},
						Action: commands.IngestFetchAction,
					},
				},
			},
			{
				Name:  "index",
				Usage: "検索インデックス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "ensure",
						Usage:  "インデックススキーマの整合性を確認",
						Flags:  []cli.Flag{envFlag},
						Action: commands.IndexEnsureAction,
					},
					{
						Name:   "reset-checkpoint",
						Usage:  "取り込みチェックポイントを初期化",
						Flags:  []cli.Flag{envFlag},
						Action: commands.CheckpointResetAction,
					},
				},
			},
			{
				Name:  "search",
				Usage: "検索コマンド",
				Commands: []*cli.Command{
					{
						Name:  "hybrid",
						Usage: "記事全体のハイブリッド検索",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "query",
								Usage:    "検索クエリ",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "top",
								Usage: "取得件数",
								Value: 10,
							},
						},
						Action: commands.SearchHybridAction,
					},
					{
						Name:  "chunks",
						Usage: "チャンク単位のハイブリッド検索",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "query",
								Usage:    "検索クエリ",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "top-chunks",
								Usage: "検索するチャンク数",
								Value: 15,
							},
							&cli.IntFlag{
								Name:  "top-articles",
								Usage: "返す記事数",
								Value: 10,
							},
						},
						Action: commands.SearchChunksAction,
					},
				},
			},
			{
				Name:  "ask",
				Usage: "RAG回答を生成",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:     "query",
						Usage:    "質問",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-chunks",
						Usage: "検索するチャンク数",
						Value: 15,
					},
					&cli.IntFlag{
						Name:  "top-articles",
						Usage: "回答に使う記事数",
						Value: 5,
					},
				},
				Action: commands.AskAction,
			},
			{
				Name:  "keywords",
				Usage: "キーワード管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "generate",
						Usage: "記事からキーワードを抽出",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:  "since",
								Usage: "この日時以降の記事が対象 (RFC3339)",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "対象記事の上限",
								Value: 100,
							},
						},
						Action: commands.KeywordsGenerateAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
