// Package config は環境変数と .env ファイルからのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する
type Config struct {
	// Database設定
	Database DatabaseConfig

	// Meilisearch設定
	Meilisearch MeilisearchConfig

	// Redis設定
	Redis RedisConfig

	// OpenAI設定（Embeddings + LLM）
	OpenAI OpenAIConfig

	// NewsAPI設定
	NewsAPI NewsAPIConfig

	// 取り込みスケジューラ設定
	Ingestion IngestionConfig

	// 検索設定
	Search SearchConfig

	// HTTPサーバ設定
	Server ServerConfig

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// MeilisearchConfig は検索インデックス設定
type MeilisearchConfig struct {
	Host               string
	APIKey             string
	ArticleIndex       string
	ChunkIndex         string
	RecreateOnMismatch bool
	SemanticRatio      float64
}

// RedisConfig はキャッシュ・チェックポイント用の Redis 設定
type RedisConfig struct {
	URL string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	CompletionModel    string
	Temperature        float64
	MaxTokens          int
}

// NewsAPIConfig は外部ニュース API 設定
type NewsAPIConfig struct {
	APIKey     string
	BaseURL    string
	Country    string
	PageSize   int
	DailyQuota int
}

// IngestionConfig は取り込みスケジューラ設定
type IngestionConfig struct {
	Interval           time.Duration
	BatchSize          int
	ChunkSize          int
	ChunkOverlap       int
	EmbeddingRateLimit int
	EmbeddingRateWindow time.Duration
}

// SearchConfig は検索とRAG回答の設定
type SearchConfig struct {
	ScoreBandRatio float64
	SnippetLength  int
	AnswerCacheTTL time.Duration
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Port int
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込む
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "newsrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "newsrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Meilisearch: MeilisearchConfig{
			Host:               getEnv("MEILISEARCH_HOST", "http://localhost:7700"),
			APIKey:             getEnv("MEILISEARCH_API_KEY", ""),
			ArticleIndex:       getEnv("MEILISEARCH_ARTICLE_INDEX", "news-articles"),
			ChunkIndex:         getEnv("MEILISEARCH_CHUNK_INDEX", "news-article-chunks"),
			RecreateOnMismatch: getEnvAsBool("MEILISEARCH_RECREATE_ON_MISMATCH", true),
			SemanticRatio:      getEnvAsFloat("MEILISEARCH_SEMANTIC_RATIO", 0.5),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			CompletionModel:    getEnv("OPENAI_COMPLETION_MODEL", "gpt-4o-mini"),
			Temperature:        getEnvAsFloat("OPENAI_TEMPERATURE", 0.2),
			MaxTokens:          getEnvAsInt("OPENAI_MAX_TOKENS", 1024),
		},
		NewsAPI: NewsAPIConfig{
			APIKey:     getEnv("NEWSAPI_API_KEY", ""),
			BaseURL:    getEnv("NEWSAPI_BASE_URL", "https://newsapi.org/v2"),
			Country:    getEnv("NEWSAPI_COUNTRY", "us"),
			PageSize:   getEnvAsInt("NEWSAPI_PAGE_SIZE", 100),
			DailyQuota: getEnvAsInt("NEWSAPI_DAILY_QUOTA", 100),
		},
		Ingestion: IngestionConfig{
			Interval:            getEnvAsDuration("INGEST_INTERVAL", 30*time.Minute),
			BatchSize:           getEnvAsInt("INGEST_BATCH_SIZE", 50),
			ChunkSize:           getEnvAsInt("INGEST_CHUNK_SIZE", 4000),
			ChunkOverlap:        getEnvAsInt("INGEST_CHUNK_OVERLAP", 400),
			EmbeddingRateLimit:  getEnvAsInt("EMBEDDING_RATE_LIMIT", 300),
			EmbeddingRateWindow: getEnvAsDuration("EMBEDDING_RATE_WINDOW", time.Minute),
		},
		Search: SearchConfig{
			ScoreBandRatio: getEnvAsFloat("SEARCH_SCORE_BAND_RATIO", 0.6),
			SnippetLength:  getEnvAsInt("SEARCH_SNIPPET_LENGTH", 400),
			AnswerCacheTTL: getEnvAsDuration("ANSWER_CACHE_TTL", 30*time.Minute),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("HTTP_PORT", 8080),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返す
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得する
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsFloat は環境変数を浮動小数点数として取得する
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsBool は環境変数を真偽値として取得する
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsDuration は環境変数を時間として取得する
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
