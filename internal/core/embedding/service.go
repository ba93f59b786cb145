package embedding

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Provider はテキストのベクトル化を行う外部プロバイダのインターフェース
type Provider interface {
	// Embed は単一テキストの Embedding を生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelName はモデル名を返す
	ModelName() string
}

// DefaultCacheTTL は Embedding キャッシュの既定 TTL（7 日）
const DefaultCacheTTL = 7 * 24 * time.Hour

// Service はキャッシュとリトライポリシーを備えた Embedding クライアント。
//
// Embed は失敗時に長さ 0 のベクトルを返す。呼び出し側は空ベクトルを
// 「Embedding 利用不可」として扱い、処理を止めるエラーとはみなさないこと。
type Service struct {
	provider Provider
	cache    Cache
	policy   Policy
	ttl      time.Duration
	logger   *slog.Logger
}

type serviceOptions struct {
	cache  Cache
	policy Policy
	ttl    time.Duration
	logger *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithCache はアドバイザリキャッシュを設定する
func WithCache(cache Cache) ServiceOption {
	return func(o *serviceOptions) {
		o.cache = cache
	}
}

// WithPolicy はリトライポリシーを差し替える
func WithPolicy(policy Policy) ServiceOption {
	return func(o *serviceOptions) {
		o.policy = policy
	}
}

// WithCacheTTL はキャッシュ TTL を上書きする
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		o.ttl = ttl
	}
}

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(provider Provider, opts ...ServiceOption) *Service {
	options := serviceOptions{
		policy: DefaultPolicy(DefaultMaxRetries, DefaultBaseDelay),
		ttl:    DefaultCacheTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Service{
		provider: provider,
		cache:    options.cache,
		policy:   options.policy,
		ttl:      options.ttl,
		logger:   options.logger,
	}
}

// Embed はテキストをベクトルに変換する。
// 空白のみの入力はプロバイダを呼ばずに長さ 0 のベクトルを返す。
// キャッシュヒット時は即座に返し、ミス時はリトライポリシー付きで
// プロバイダを呼び出す。リトライ枯渇・非リトライ対象のエラーは
// ログに記録した上で長さ 0 のベクトルに縮退する。
func (s *Service) Embed(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	key := CacheKey(text)
	if s.cache != nil {
		if data, ok := s.cache.Get(ctx, key); ok {
			if vector := DecodeVector(data); vector != nil {
				return vector
			}
		}
	}

	vector, err := s.embedWithRetry(ctx, text)
	if err != nil {
		s.logger.Error("embedding に失敗しました（空ベクトルに縮退）",
			"model", s.provider.ModelName(),
			"textLength", len(text),
			"error", err,
		)
		return nil
	}

	if s.cache != nil && len(vector) > 0 {
		s.cache.Set(ctx, key, EncodeVector(vector), s.ttl)
	}

	return vector
}

func (s *Service) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	attempt := 0
	for {
		attempt++

		vector, err := s.provider.Embed(ctx, text)
		if err == nil {
			return vector, nil
		}

		decision := s.policy(attempt, err)
		if !decision.Retry {
			return nil, err
		}

		s.logger.Warn("embedding リクエストをリトライします",
			"attempt", attempt,
			"delay", decision.Delay,
			"error", err,
		)

		timer := time.NewTimer(decision.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
