package keyword

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/news-rag/internal/core/article"
)

const (
	// DefaultBatchSize は1回のLLM呼び出しにまとめる記事数の上限
	DefaultBatchSize = 10

	// DefaultMaxWordsPerArticle はプロンプトに載せる本文の語数上限
	DefaultMaxWordsPerArticle = 300

	// DefaultMaxPromptTokens はユーザープロンプトのトークン数上限。
	// 超過する場合はバッチを分割して送る
	DefaultMaxPromptTokens = 6000
)

// TokenCounter はテキストのトークン数を数えるインターフェース
type TokenCounter interface {
	CountTokens(text string) int
}

// extractionEntry はLLM応答の記事 1 件分のエントリ
type extractionEntry struct {
	ArticleID int64    `json:"articleId"`
	Keywords  []string `json:"keywords"`
}

// Service はキーワード抽出のビジネスロジックを提供する
type Service struct {
	articles article.Repository
	keywords Repository
	llm      Completer
	counter  TokenCounter

	batchSize       int
	maxWords        int
	maxPromptTokens int
	logger          *slog.Logger
	now             func() time.Time
}

type ServiceOption func(*Service)

// WithBatchSize はバッチあたりの記事数上限を設定する
func WithBatchSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithMaxWordsPerArticle は記事本文の語数上限を設定する
func WithMaxWordsPerArticle(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxWords = n
		}
	}
}

// WithMaxPromptTokens はプロンプトのトークン数上限を設定する
func WithMaxPromptTokens(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxPromptTokens = n
		}
	}
}

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService は新しい Service を作成する
func NewService(
	articles article.Repository,
	keywords Repository,
	llm Completer,
	counter TokenCounter,
	opts ...ServiceOption,
) *Service {
	svc := &Service{
		articles:        articles,
		keywords:        keywords,
		llm:             llm,
		counter:         counter,
		batchSize:       DefaultBatchSize,
		maxWords:        DefaultMaxWordsPerArticle,
		maxPromptTokens: DefaultMaxPromptTokens,
		logger:          slog.Default(),
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// GenerateSince は after より新しい記事を最大 limit 件読み込み、
// バッチ単位でキーワードを抽出・保存して、保存したキーワード数を返す
func (s *Service) GenerateSince(ctx context.Context, after time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	articles, err := s.articles.ListPublishedAfter(ctx, after, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list articles: %w", err)
	}
	if len(articles) == 0 {
		s.logger.Info("キーワード抽出対象の記事がありません", "after", after)
		return 0, nil
	}

	return s.GenerateForArticles(ctx, articles)
}

// GenerateForArticles は与えられた記事群からキーワードを抽出・保存する。
// バッチ単位で処理し、1 バッチの失敗は全体を止めない
func (s *Service) GenerateForArticles(ctx context.Context, articles []*article.Article) (int, error) {
	total := 0
	for _, batch := range s.splitBatches(articles) {
		n, err := s.processBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			s.logger.Warn("バッチのキーワード抽出に失敗したためスキップします",
				"articles", len(batch),
				"error", err,
			)
			continue
		}
		total += n
	}

	s.logger.Info("キーワード抽出が完了しました", "articles", len(articles), "keywords", total)
	return total, nil
}

// splitBatches は記事を batchSize 件以下、かつプロンプトが
// maxPromptTokens に収まる単位に分割する
func (s *Service) splitBatches(articles []*article.Article) [][]*article.Article {
	var batches [][]*article.Article
	var current []*article.Article

	for _, a := range articles {
		candidate := append(current, a)
		if len(current) > 0 && (len(candidate) > s.batchSize || s.overBudget(candidate)) {
			batches = append(batches, current)
			candidate = []*article.Article{a}
		}
		current = candidate
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (s *Service) overBudget(batch []*article.Article) bool {
	if s.counter == nil {
		return false
	}
	return s.counter.CountTokens(BuildExtractionPrompt(batch, s.maxWords)) > s.maxPromptTokens
}

// processBatch は 1 バッチ分の抽出・解決・保存を行い、保存件数を返す
func (s *Service) processBatch(ctx context.Context, batch []*article.Article) (int, error) {
	prompt := BuildExtractionPrompt(batch, s.maxWords)

	response, err := s.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return 0, fmt.Errorf("completion failed: %w", err)
	}

	entries, err := parseExtraction(response)
	if err != nil {
		return 0, fmt.Errorf("failed to parse extraction response: %w", err)
	}

	keywords := make([]*Keyword, 0, len(entries)*4)
	for _, entry := range entries {
		resolved, err := s.resolveArticle(ctx, batch, entry.ArticleID)
		if err != nil {
			return 0, err
		}
		if resolved == nil {
			s.logger.Warn("応答中の記事 ID に対応する記事が見つかりません", "articleId", entry.ArticleID)
			continue
		}
		for _, word := range normalizeKeywords(entry.Keywords) {
			keywords = append(keywords, &Keyword{
				ID:        uuid.New(),
				ArticleID: resolved.ID,
				Word:      word,
				CreatedAt: s.now(),
			})
		}
	}

	if len(keywords) == 0 {
		return 0, nil
	}
	if err := s.keywords.InsertKeywords(ctx, keywords); err != nil {
		return 0, fmt.Errorf("failed to insert keywords: %w", err)
	}
	return len(keywords), nil
}

// resolveArticle は記事 ID をバッチ内で解決し、見つからなければストアに問い合わせる
func (s *Service) resolveArticle(ctx context.Context, batch []*article.Article, id int64) (*article.Article, error) {
	for _, a := range batch {
		if a.ID == id {
			return a, nil
		}
	}

	found, err := s.articles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve article by id: %w", err)
	}
	return found.OrElse(nil), nil
}

// parseExtraction は応答から最外の JSON 配列を取り出してデコードする
func parseExtraction(response string) ([]extractionEntry, error) {
	raw, ok := extractJSONArray(response)
	if !ok {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var entries []extractionEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}
	return entries, nil
}

// normalizeKeywords は空白を除去し、大文字小文字を無視して重複を排除する。
// 1 文字以下の語はノイズとして捨てる
func normalizeKeywords(words []string) []string {
	seen := map[string]struct{}{}
	result := make([]string, 0, len(words))

	for _, w := range words {
		trimmed := strings.TrimSpace(w)
		if len([]rune(trimmed)) <= 1 {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
