package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jinford/news-rag/internal/core/article"
)

const (
	// DefaultInterval は取り込みループの実行間隔
	DefaultInterval = 30 * time.Minute

	// DefaultBatchSize は 1 回のイテレーションで処理する記事数の上限
	DefaultBatchSize = 50
)

// IndexEnsurer はインデックススキーマの整合性確認インターフェース
type IndexEnsurer interface {
	EnsureAll(ctx context.Context) error
}

// SchedulerConfig は Scheduler の設定
type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Status は取り込みスケジューラの現在状態を表す
type Status struct {
	Running   bool
	LastRun   time.Time
	LastError string
}

// Scheduler はチェックポイント付きの取り込みループを定期実行する
type Scheduler struct {
	ensurer     IndexEnsurer
	articles    article.Repository
	pipeline    *Pipeline
	checkpoints CheckpointStore
	fetcher     *Fetcher
	cfg         SchedulerConfig
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	lastRun time.Time
	lastErr error
}

type SchedulerOption func(*Scheduler)

// WithFetcher はイテレーションの先頭でニュース取得も行うよう設定する
func WithFetcher(fetcher *Fetcher) SchedulerOption {
	return func(s *Scheduler) {
		s.fetcher = fetcher
	}
}

// WithSchedulerLogger は Scheduler にロガーを設定する
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSleepFunc は待機処理を差し替える（テスト用）
func WithSleepFunc(sleep func(ctx context.Context, d time.Duration) error) SchedulerOption {
	return func(s *Scheduler) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// NewScheduler は新しい Scheduler を作成する
func NewScheduler(
	ensurer IndexEnsurer,
	articles article.Repository,
	pipeline *Pipeline,
	checkpoints CheckpointStore,
	cfg SchedulerConfig,
	opts ...SchedulerOption,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	s := &Scheduler{
		ensurer:     ensurer,
		articles:    articles,
		pipeline:    pipeline,
		checkpoints: checkpoints,
		cfg:         cfg,
		logger:      slog.Default(),
		sleep:       sleepContext,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start は取り込みループをバックグラウンドで開始する
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx)

	s.logger.Info("取り込みスケジューラを開始しました",
		"interval", s.cfg.Interval,
		"batchSize", s.cfg.BatchSize,
	)
	return nil
}

// Stop は取り込みループを停止し、実行中のイテレーションの終了を待つ
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("取り込みスケジューラを停止しました")
}

// Status は現在の実行状態を返す
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Running: s.running, LastRun: s.lastRun}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		err := s.RunOnce(ctx)

		s.mu.Lock()
		s.lastRun = time.Now()
		s.lastErr = err
		s.mu.Unlock()

		if err != nil && ctx.Err() == nil {
			s.logger.Error("取り込みイテレーションに失敗しました", "error", err)
		}

		if err := s.sleep(ctx, s.cfg.Interval); err != nil {
			return
		}
	}
}

// RunOnce は取り込みを 1 イテレーション実行する。
// スキーマ確認、（設定されていれば）ニュース取得、チェックポイント以降の
// 記事のインデックス投入、チェックポイント前進、の順で行う
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if err := s.ensurer.EnsureAll(ctx); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}

	if s.fetcher != nil {
		if _, err := s.fetcher.FetchLatest(ctx); err != nil {
			return fmt.Errorf("news fetch failed: %w", err)
		}
	}

	for {
		processed, advanced, err := s.processNextBatch(ctx)
		if err != nil {
			return err
		}
		// チェックポイントが前進しない場合は同じバッチを無限に
		// 読み続けるため、ここで打ち切る
		if processed < s.cfg.BatchSize || !advanced {
			return nil
		}
	}
}

// processNextBatch はチェックポイント以降の記事を 1 バッチ処理し、
// 処理した記事数とチェックポイントが前進したかを返す。チェックポイントは
// バッチ内の全書き込みが成功した後にのみ前進する
func (s *Scheduler) processNextBatch(ctx context.Context) (int, bool, error) {
	checkpoint, err := s.checkpoints.Load(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	after := checkpoint.OrElse(time.Time{})

	batch, err := s.articles.ListPublishedAfter(ctx, after, s.cfg.BatchSize)
	if err != nil {
		return 0, false, fmt.Errorf("failed to list articles after checkpoint: %w", err)
	}
	if len(batch) == 0 {
		return 0, false, nil
	}

	if err := s.pipeline.UpsertArticles(ctx, batch); err != nil {
		return 0, false, err
	}

	chunks := 0
	for _, a := range batch {
		n, err := s.pipeline.UpsertArticleChunks(ctx, a)
		if err != nil {
			return 0, false, err
		}
		chunks += n
	}

	advanced := false
	latest := latestPublishedAt(batch, after)
	if latest.After(after) {
		if err := s.checkpoints.Save(ctx, latest); err != nil {
			return 0, false, fmt.Errorf("failed to save checkpoint: %w", err)
		}
		advanced = true
	}

	s.logger.Info("バッチの取り込みが完了しました",
		"articles", len(batch),
		"chunks", chunks,
		"checkpoint", latest,
	)
	return len(batch), advanced, nil
}

func latestPublishedAt(batch []*article.Article, fallback time.Time) time.Time {
	latest := fallback
	for _, a := range batch {
		if a.PublishedAt != nil && a.PublishedAt.After(latest) {
			latest = *a.PublishedAt
		}
	}
	return latest
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
