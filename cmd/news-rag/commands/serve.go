package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/news-rag/internal/interface/rest"
)

const shutdownTimeout = 10 * time.Second

// ServeAction はHTTPサーバと取り込みスケジューラを起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	c := appCtx.Container
	logger := c.Logger

	port := appCtx.Config.Server.Port
	if cmd.IsSet("port") {
		port = cmd.Int("port")
	}

	handler := rest.NewHandler(
		c.Search,
		c.Answer,
		c.Keywords,
		c.Indexes,
		c.Checkpoints,
		c.Scheduler,
		logger,
	)
	server := rest.NewServer(handler, logger)

	if !cmd.Bool("no-ingest") {
		if err := c.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("スケジューラの起動に失敗: %w", err)
		}
		defer c.Scheduler.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(fmt.Sprintf(":%d", port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("シャットダウンを開始します")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("サーバの停止に失敗: %w", err)
		}
		return nil
	}
}
