// Package rest はニュース検索・RAG 回答の HTTP API を提供する。
package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jinford/news-rag/internal/core/answer"
	"github.com/jinford/news-rag/internal/core/ingestion"
	"github.com/jinford/news-rag/internal/core/search"
)

// Searcher はハイブリッド検索インターフェース
type Searcher interface {
	HybridSearch(ctx context.Context, query string, top int) ([]*search.Result, error)
	ChunkHybridSearch(ctx context.Context, query string, topChunks, topArticles int) ([]*search.ChunkResult, error)
}

// Answerer は RAG 回答インターフェース
type Answerer interface {
	Ask(ctx context.Context, query string, topChunks, topArticles int) (*answer.Result, error)
}

// KeywordGenerator はキーワード抽出インターフェース
type KeywordGenerator interface {
	GenerateSince(ctx context.Context, after time.Time, limit int) (int, error)
}

// IndexEnsurer はインデックススキーマ確認インターフェース
type IndexEnsurer interface {
	EnsureAll(ctx context.Context) error
}

// CheckpointResetter はチェックポイント初期化インターフェース
type CheckpointResetter interface {
	Reset(ctx context.Context) error
}

// StatusReporter は取り込みスケジューラの状態参照インターフェース
type StatusReporter interface {
	Status() ingestion.Status
}

// Handler は REST API のリクエストハンドラ
type Handler struct {
	searcher    Searcher
	answerer    Answerer
	keywords    KeywordGenerator
	ensurer     IndexEnsurer
	checkpoints CheckpointResetter
	status      StatusReporter
	logger      *slog.Logger
}

// NewHandler は新しい Handler を作成する
func NewHandler(
	searcher Searcher,
	answerer Answerer,
	keywords KeywordGenerator,
	ensurer IndexEnsurer,
	checkpoints CheckpointResetter,
	status StatusReporter,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		searcher:    searcher,
		answerer:    answerer,
		keywords:    keywords,
		ensurer:     ensurer,
		checkpoints: checkpoints,
		status:      status,
		logger:      logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type articleResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	URL         string  `json:"url,omitempty"`
	SourceName  string  `json:"sourceName,omitempty"`
	PublishedAt string  `json:"publishedAt,omitempty"`
	Score       float64 `json:"score"`
	Snippet     string  `json:"snippet,omitempty"`
}

type searchResponse struct {
	Query   string            `json:"query"`
	Results []articleResponse `json:"results"`
	Answer  *askResponse      `json:"answer,omitempty"`
}

type askRequest struct {
	Query       string `json:"query"`
	TopChunks   int    `json:"topChunks"`
	TopArticles int    `json:"topArticles"`
}

type sourceResponse struct {
	ArticleID int64   `json:"articleId"`
	Title     string  `json:"title"`
	URL       string  `json:"url,omitempty"`
	Snippet   string  `json:"snippet,omitempty"`
	Score     float64 `json:"score"`
}

type askResponse struct {
	Answer  string           `json:"answer"`
	Sources []sourceResponse `json:"sources"`
	Cached  bool             `json:"cached"`
}

type keywordsRequest struct {
	Since string `json:"since"`
	Limit int    `json:"limit"`
}

type keywordsResponse struct {
	Keywords int `json:"keywords"`
}

type statusResponse struct {
	Running   bool   `json:"running"`
	LastRun   string `json:"lastRun,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

// HandleHealth はヘルスチェックに応答する
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleHybridSearch は記事全体のハイブリッド検索を実行する
func (h *Handler) HandleHybridSearch(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "query parameter is required"})
	}
	top := intQueryParam(c, "top", 10)

	results, err := h.searcher.HybridSearch(c.Request().Context(), query, top)
	if err != nil {
		h.logger.Error("ハイブリッド検索に失敗しました", "query", query, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "search failed"})
	}

	resp := searchResponse{Query: query, Results: make([]articleResponse, 0, len(results))}
	for _, r := range results {
		item := articleResponse{
			ID:          r.Article.ID,
			Title:       r.Article.Title,
			Description: r.Article.Description,
			URL:         r.Article.URL,
			SourceName:  r.Article.SourceName,
			Score:       r.Score,
		}
		if r.Article.PublishedAt != nil {
			item.PublishedAt = r.Article.PublishedAt.UTC().Format(time.RFC3339)
		}
		resp.Results = append(resp.Results, item)
	}
	resp.Answer = h.maybeAnswer(c, query)
	return c.JSON(http.StatusOK, resp)
}

// HandleChunkHybridSearch はチャンク単位のハイブリッド検索を実行する
func (h *Handler) HandleChunkHybridSearch(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "query parameter is required"})
	}
	topChunks := intQueryParam(c, "topChunks", 15)
	topArticles := intQueryParam(c, "topArticles", 10)

	results, err := h.searcher.ChunkHybridSearch(c.Request().Context(), query, topChunks, topArticles)
	if err != nil {
		h.logger.Error("チャンク検索に失敗しました", "query", query, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "search failed"})
	}

	resp := searchResponse{Query: query, Results: make([]articleResponse, 0, len(results))}
	for _, r := range results {
		item := articleResponse{
			ID:         r.Article.ID,
			Title:      r.Article.Title,
			URL:        r.Article.URL,
			SourceName: r.Article.SourceName,
			Score:      r.Score,
			Snippet:    r.Snippet,
		}
		if r.Article.PublishedAt != nil {
			item.PublishedAt = r.Article.PublishedAt.UTC().Format(time.RFC3339)
		}
		resp.Results = append(resp.Results, item)
	}
	resp.Answer = h.maybeAnswer(c, query)
	return c.JSON(http.StatusOK, resp)
}

// maybeAnswer は includeAnswer が指定された場合に RAG 回答を生成する。
// 回答の生成に失敗しても検索結果は返すため、失敗はログに記録して nil を返す。
func (h *Handler) maybeAnswer(c echo.Context, query string) *askResponse {
	include := false
	if err := echo.QueryParamsBinder(c).Bool("includeAnswer", &include).BindError(); err != nil || !include {
		return nil
	}

	result, err := h.answerer.Ask(c.Request().Context(), query, 0, 0)
	if err != nil {
		h.logger.Warn("回答生成に失敗したため検索結果のみ返します", "query", query, "error", err)
		return nil
	}
	return buildAskResponse(result)
}

func buildAskResponse(result *answer.Result) *askResponse {
	resp := &askResponse{
		Answer:  result.Answer,
		Cached:  result.Cached,
		Sources: make([]sourceResponse, 0, len(result.Sources)),
	}
	for _, src := range result.Sources {
		resp.Sources = append(resp.Sources, sourceResponse{
			ArticleID: src.ArticleID,
			Title:     src.Title,
			URL:       src.URL,
			Snippet:   src.Snippet,
			Score:     src.Score,
		})
	}
	return resp
}

// HandleAsk は RAG 回答を生成する
func (h *Handler) HandleAsk(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "query is required"})
	}

	result, err := h.answerer.Ask(c.Request().Context(), req.Query, req.TopChunks, req.TopArticles)
	if err != nil {
		h.logger.Error("回答生成に失敗しました", "query", req.Query, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to generate answer"})
	}

	return c.JSON(http.StatusOK, buildAskResponse(result))
}

// HandleGenerateKeywords は指定日時以降の記事からキーワードを抽出する
func (h *Handler) HandleGenerateKeywords(c echo.Context) error {
	var req keywordsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	since := time.Time{}
	if req.Since != "" {
		parsed, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "since must be RFC3339"})
		}
		since = parsed
	}

	n, err := h.keywords.GenerateSince(c.Request().Context(), since, req.Limit)
	if err != nil {
		h.logger.Error("キーワード抽出に失敗しました", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "keyword generation failed"})
	}
	return c.JSON(http.StatusOK, keywordsResponse{Keywords: n})
}

// HandleEnsureIndexes はインデックススキーマの整合性を確認する
func (h *Handler) HandleEnsureIndexes(c echo.Context) error {
	if err := h.ensurer.EnsureAll(c.Request().Context()); err != nil {
		h.logger.Error("インデックス確認に失敗しました", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleResetCheckpoint は取り込みチェックポイントを初期化する
func (h *Handler) HandleResetCheckpoint(c echo.Context) error {
	if err := h.checkpoints.Reset(c.Request().Context()); err != nil {
		h.logger.Error("チェックポイント初期化に失敗しました", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleIngestStatus は取り込みスケジューラの状態を返す
func (h *Handler) HandleIngestStatus(c echo.Context) error {
	status := h.status.Status()

	resp := statusResponse{Running: status.Running, LastError: status.LastError}
	if !status.LastRun.IsZero() {
		resp.LastRun = status.LastRun.UTC().Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, resp)
}

func intQueryParam(c echo.Context, name string, defaultValue int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return defaultValue
	}
	var value int
	if err := echo.QueryParamsBinder(c).Int(name, &value).BindError(); err != nil {
		return defaultValue
	}
	return value
}
