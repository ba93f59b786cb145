// Package container はアプリケーション全体の依存関係を組み立てる。
package container

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jinford/news-rag/internal/core/answer"
	"github.com/jinford/news-rag/internal/core/embedding"
	"github.com/jinford/news-rag/internal/core/index"
	"github.com/jinford/news-rag/internal/core/ingestion"
	"github.com/jinford/news-rag/internal/core/keyword"
	"github.com/jinford/news-rag/internal/core/ratelimit"
	"github.com/jinford/news-rag/internal/core/search"
	"github.com/jinford/news-rag/internal/infra/meilisearch"
	"github.com/jinford/news-rag/internal/infra/newsapi"
	"github.com/jinford/news-rag/internal/infra/openai"
	"github.com/jinford/news-rag/internal/infra/postgres"
	"github.com/jinford/news-rag/internal/infra/redis"
	"github.com/jinford/news-rag/internal/infra/tokenizer"
	"github.com/jinford/news-rag/internal/platform/config"
	"github.com/jinford/news-rag/internal/platform/database"
)

// Container はアプリケーションのサービスと共有リソースを保持する
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	Search      *search.Service
	Answer      *answer.Service
	Keywords    *keyword.Service
	Indexes     *index.Manager
	Scheduler   *ingestion.Scheduler
	Pipeline    *ingestion.Pipeline
	Fetcher     *ingestion.Fetcher
	Checkpoints *redis.CheckpointStore

	db          *database.DB
	redisClient *goredis.Client
}

type containerOptions struct {
	logger       *slog.Logger
	provider     embedding.Provider
	completer    openaiCompleter
	newsProvider ingestion.NewsProvider
}

type openaiCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Option は Container 構築時のオプション
type Option func(*containerOptions)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithEmbeddingProvider は Embedding プロバイダを差し替える
func WithEmbeddingProvider(provider embedding.Provider) Option {
	return func(opts *containerOptions) {
		opts.provider = provider
	}
}

// WithCompleter は LLM クライアントを差し替える
func WithCompleter(completer openaiCompleter) Option {
	return func(opts *containerOptions) {
		opts.completer = completer
	}
}

// WithNewsProvider はニュース取得元を差し替える
func WithNewsProvider(provider ingestion.NewsProvider) Option {
	return func(opts *containerOptions) {
		opts.newsProvider = provider
	}
}

// New は設定からコンテナを生成する
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	// PostgreSQL
	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	// Redis
	redisClient, err := redis.NewClient(cfg.Redis.URL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("Redis クライアント初期化に失敗しました: %w", err)
	}
	cache := redis.NewCache(redisClient, logger)
	checkpoints := redis.NewCheckpointStore(redisClient)

	// Embedder (OpenAI)
	provider := options.provider
	if provider == nil {
		provider = openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		)
	}
	embedder := embedding.NewService(
		provider,
		embedding.WithCache(cache),
		embedding.WithLogger(logger),
	)

	// Completer (OpenAI)
	completer := options.completer
	if completer == nil {
		completer = openai.NewCompleter(
			cfg.OpenAI.APIKey,
			openai.WithCompletionModel(cfg.OpenAI.CompletionModel),
			openai.WithTemperature(cfg.OpenAI.Temperature),
			openai.WithMaxTokens(cfg.OpenAI.MaxTokens),
		)
	}

	// 検索インデックス (Meilisearch)
	store := meilisearch.NewStore(
		cfg.Meilisearch.Host,
		cfg.Meilisearch.APIKey,
		meilisearch.WithSemanticRatio(cfg.Meilisearch.SemanticRatio),
		meilisearch.WithLogger(logger),
	)
	indexes := index.NewManager(store, embedder, index.ManagerConfig{
		ArticleIndex:       cfg.Meilisearch.ArticleIndex,
		ChunkIndex:         cfg.Meilisearch.ChunkIndex,
		DefaultDimensions:  cfg.OpenAI.EmbeddingDimension,
		RecreateOnMismatch: cfg.Meilisearch.RecreateOnMismatch,
	}, logger)

	// Repository (PostgreSQL)
	articles := postgres.NewArticleRepository(db.Pool)
	keywords := postgres.NewKeywordRepository(db.Pool)

	// 検索サービス
	searchService := search.NewService(store, embedder, search.Config{
		ArticleIndex:   cfg.Meilisearch.ArticleIndex,
		ChunkIndex:     cfg.Meilisearch.ChunkIndex,
		ScoreBandRatio: cfg.Search.ScoreBandRatio,
		SnippetLength:  cfg.Search.SnippetLength,
	}, logger)

	// RAG 回答サービス
	answerService := answer.NewService(
		searchService,
		completer,
		answer.WithCache(cache),
		answer.WithCacheTTL(cfg.Search.AnswerCacheTTL),
		answer.WithLogger(logger),
	)

	// キーワード抽出サービス
	counter, err := tokenizer.NewCounter()
	if err != nil {
		redisClient.Close()
		db.Close()
		return nil, fmt.Errorf("TokenCounter 初期化に失敗しました: %w", err)
	}
	keywordService := keyword.NewService(
		articles,
		keywords,
		completer,
		counter,
		keyword.WithLogger(logger),
	)

	// 取り込みパイプライン
	embeddingLimiter := ratelimit.New(
		cfg.Ingestion.EmbeddingRateLimit,
		cfg.Ingestion.EmbeddingRateWindow,
	)
	pipeline := ingestion.NewPipeline(store, embedder, embeddingLimiter, ingestion.PipelineConfig{
		ArticleIndex: cfg.Meilisearch.ArticleIndex,
		ChunkIndex:   cfg.Meilisearch.ChunkIndex,
		ChunkSize:    cfg.Ingestion.ChunkSize,
		ChunkOverlap: cfg.Ingestion.ChunkOverlap,
	}, logger)

	// ニュース取得 (NewsAPI)
	newsProvider := options.newsProvider
	if newsProvider == nil {
		newsProvider = newsapi.NewClient(
			cfg.NewsAPI.APIKey,
			newsapi.WithBaseURL(cfg.NewsAPI.BaseURL),
			newsapi.WithCountry(cfg.NewsAPI.Country),
			newsapi.WithLogger(logger),
		)
	}
	quota := ratelimit.NewDaily(cfg.NewsAPI.DailyQuota)
	fetcher := ingestion.NewFetcher(newsProvider, articles, quota, ingestion.FetcherConfig{
		PageSize: cfg.NewsAPI.PageSize,
	}, logger)

	// スケジューラ
	scheduler := ingestion.NewScheduler(
		indexes,
		articles,
		pipeline,
		checkpoints,
		ingestion.SchedulerConfig{
			Interval:  cfg.Ingestion.Interval,
			BatchSize: cfg.Ingestion.BatchSize,
		},
		ingestion.WithFetcher(fetcher),
		ingestion.WithSchedulerLogger(logger),
	)

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Search:      searchService,
		Answer:      answerService,
		Keywords:    keywordService,
		Indexes:     indexes,
		Scheduler:   scheduler,
		Pipeline:    pipeline,
		Fetcher:     fetcher,
		Checkpoints: checkpoints,
		db:          db,
		redisClient: redisClient,
	}, nil
}

// Close は保持しているリソースを解放する
func (c *Container) Close() error {
	var firstErr error
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.db != nil {
		c.db.Close()
	}
	return firstErr
}
