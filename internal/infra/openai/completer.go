package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/news-rag/internal/core/answer"
	"github.com/jinford/news-rag/internal/core/keyword"
)

const (
	// DefaultCompletionModel はデフォルトで使用するOpenAIモデル
	DefaultCompletionModel = "gpt-4o-mini"

	// DefaultCompletionTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultCompletionTimeout = 60 * time.Second

	// DefaultMaxTokens は生成トークン数の上限
	DefaultMaxTokens = 1024

	// DefaultTemperature は生成のランダム性。抽出・回答とも再現性を優先する
	DefaultTemperature = 0.2

	// completionMaxRetries はレート制限エラー時の最大リトライ回数
	completionMaxRetries = 3

	// completionBaseBackoff はExponential Backoffの基底時間
	completionBaseBackoff = 2 * time.Second

	// completionMaxBackoff はExponential Backoffの最大待機時間
	completionMaxBackoff = 32 * time.Second
)

// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Completer は OpenAI API を使用した LLM 補完クライアント実装
type Completer struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	maxTokens   int
	temperature float64
}

type completerOptions struct {
	model       string
	timeout     time.Duration
	maxTokens   int
	temperature float64
	baseURL     string
}

// CompleterOption は Completer のオプション設定
type CompleterOption func(*completerOptions)

// WithCompletionModel はモデル名を上書きする
func WithCompletionModel(model string) CompleterOption {
	return func(o *completerOptions) {
		o.model = model
	}
}

// WithCompletionTimeout はタイムアウトを上書きする
func WithCompletionTimeout(timeout time.Duration) CompleterOption {
	return func(o *completerOptions) {
		o.timeout = timeout
	}
}

// WithMaxTokens は生成トークン数の上限を上書きする
func WithMaxTokens(maxTokens int) CompleterOption {
	return func(o *completerOptions) {
		o.maxTokens = maxTokens
	}
}

// WithTemperature は temperature を上書きする
func WithTemperature(temperature float64) CompleterOption {
	return func(o *completerOptions) {
		o.temperature = temperature
	}
}

// WithCompletionBaseURL は API エンドポイントを上書きする
func WithCompletionBaseURL(baseURL string) CompleterOption {
	return func(o *completerOptions) {
		o.baseURL = baseURL
	}
}

// NewCompleter は新しい Completer を作成する
func NewCompleter(apiKey string, opts ...CompleterOption) *Completer {
	options := completerOptions{
		model:       DefaultCompletionModel,
		timeout:     DefaultCompletionTimeout,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(&options)
	}

	requestOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if options.baseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(options.baseURL))
	}

	return &Completer{
		client:      openai.NewClient(requestOpts...),
		model:       options.model,
		timeout:     options.timeout,
		maxTokens:   options.maxTokens,
		temperature: options.temperature,
	}
}

// ModelName はモデル名を返す
func (c *Completer) ModelName() string {
	return c.model
}

// Complete はシステム・ユーザープロンプトから補完テキストを生成する。
// レート制限エラーは Exponential Backoff 付きでリトライする
func (c *Completer) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	var lastErr error
	for attempt := 0; attempt <= completionMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := completionBaseBackoff << (attempt - 1)
			if backoff > completionMaxBackoff {
				backoff = completionMaxBackoff
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}
		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// インターフェース実装の確認
var (
	_ keyword.Completer = (*Completer)(nil)
	_ answer.Completer  = (*Completer)(nil)
)
