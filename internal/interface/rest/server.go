package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server は echo ベースの HTTP サーバ
type Server struct {
	echo   *echo.Echo
	logger *slog.Logger
}

// NewServer はルーティングとミドルウェアを設定したサーバを作成する
func NewServer(handler *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				logger.Error("リクエストエラー",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"error", v.Error,
				)
				return nil
			}
			logger.Info("リクエスト",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	registerRoutes(e, handler)

	return &Server{echo: e, logger: logger}
}

func registerRoutes(e *echo.Echo, h *Handler) {
	v1 := e.Group("/v1")

	v1.GET("/health", h.HandleHealth)
	v1.GET("/search/hybrid", h.HandleHybridSearch)
	v1.GET("/search/chunk-hybrid", h.HandleChunkHybridSearch)
	v1.POST("/ask", h.HandleAsk)
	v1.POST("/keywords/generate", h.HandleGenerateKeywords)
	v1.POST("/admin/ensure-indexes", h.HandleEnsureIndexes)
	v1.POST("/admin/reset-checkpoint", h.HandleResetCheckpoint)
	v1.GET("/ingest/status", h.HandleIngestStatus)
}

// Start は指定アドレスでリクエストの受付を開始する。
// サーバが停止するまでブロックする。
func (s *Server) Start(addr string) error {
	s.logger.Info("HTTP サーバを起動します", "addr", addr)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown はサーバを graceful に停止する
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
