package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/news-rag/internal/core/article"
)

type fakeEnsurer struct {
	calls int
	err   error
}

func (e *fakeEnsurer) EnsureAll(ctx context.Context) error {
	e.calls++
	return e.err
}

type memoryCheckpoint struct {
	mu    sync.Mutex
	value mo.Option[time.Time]
	saves []time.Time
}

func (c *memoryCheckpoint) Load(ctx context.Context) (mo.Option[time.Time], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

func (c *memoryCheckpoint) Save(ctx context.Context, t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = mo.Some(t)
	c.saves = append(c.saves, t)
	return nil
}

func (c *memoryCheckpoint) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = mo.None[time.Time]()
	return nil
}

func newSchedulerForTest(repo *fakeArticleRepo, store *fakeIndexStore, checkpoint *memoryCheckpoint, batchSize int, opts ...SchedulerOption) (*Scheduler, *fakeEnsurer) {
	ensurer := &fakeEnsurer{}
	pipeline := NewPipeline(store, &fakeEmbedder{}, &fakeLimiter{}, testPipelineConfig(), testLogger())
	opts = append(opts, WithSchedulerLogger(testLogger()))
	s := NewScheduler(ensurer, repo, pipeline, checkpoint, SchedulerConfig{
		Interval:  time.Minute,
		BatchSize: batchSize,
	}, opts...)
	return s, ensurer
}

func TestRunOnce_IngestsArticlesAfterCheckpoint(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeArticleRepo{articles: []*article.Article{
		testArticle(1, strings.Repeat("a", 50), base.Add(1*time.Hour)),
		testArticle(2, strings.Repeat("b", 50), base.Add(2*time.Hour)),
	}}
	store := newFakeIndexStore()
	checkpoint := &memoryCheckpoint{}
	s, ensurer := newSchedulerForTest(repo, store, checkpoint, 10)

	err := s.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, ensurer.calls)
	assert.Len(t, store.upserts["news-articles"], 2)
	assert.Len(t, store.upserts["news-article-chunks"], 2)
	// チェックポイントはバッチ内で最も新しい publishedAt まで前進する
	require.True(t, checkpoint.value.IsPresent())
	assert.Equal(t, base.Add(2*time.Hour), checkpoint.value.MustGet())
}

func TestRunOnce_SecondRunSkipsIngestedArticles(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeArticleRepo{articles: []*article.Article{
		testArticle(1, "body", base.Add(time.Hour)),
	}}
	store := newFakeIndexStore()
	checkpoint := &memoryCheckpoint{}
	s, _ := newSchedulerForTest(repo, store, checkpoint, 10)

	require.NoError(t, s.RunOnce(context.Background()))
	require.NoError(t, s.RunOnce(context.Background()))

	// 2 回目のイテレーションでは何も再投入されない
	assert.Len(t, store.upserts["news-articles"], 1)
	assert.Len(t, checkpoint.saves, 1)
}

func TestRunOnce_RepeatsUntilBatchExhausted(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	articles := make([]*article.Article, 0, 5)
	for i := range 5 {
		articles = append(articles, testArticle(int64(i+1), "body", base.Add(time.Duration(i+1)*time.Minute)))
	}
	repo := &fakeArticleRepo{articles: articles}
	store := newFakeIndexStore()
	checkpoint := &memoryCheckpoint{}
	s, _ := newSchedulerForTest(repo, store, checkpoint, 2)

	err := s.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Len(t, store.upserts["news-articles"], 5)
	// 2+2+1 の 3 バッチでチェックポイントが単調に前進する
	require.Len(t, checkpoint.saves, 3)
	for i := 1; i < len(checkpoint.saves); i++ {
		assert.True(t, checkpoint.saves[i].After(checkpoint.saves[i-1]))
	}
}

func TestRunOnce_KeepsCheckpointOnWriteFailure(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeArticleRepo{articles: []*article.Article{
		testArticle(1, "body", base.Add(time.Hour)),
	}}
	store := newFakeIndexStore()
	store.err = fmt.Errorf("index unavailable")
	checkpoint := &memoryCheckpoint{}
	s, _ := newSchedulerForTest(repo, store, checkpoint, 10)

	err := s.RunOnce(context.Background())

	assert.Error(t, err)
	assert.True(t, checkpoint.value.IsAbsent())
}

func TestRunOnce_AbortsOnSchemaCheckFailure(t *testing.T) {
	repo := &fakeArticleRepo{}
	store := newFakeIndexStore()
	checkpoint := &memoryCheckpoint{}
	s, ensurer := newSchedulerForTest(repo, store, checkpoint, 10)
	ensurer.err = fmt.Errorf("search service unavailable")

	err := s.RunOnce(context.Background())

	assert.Error(t, err)
	assert.Empty(t, store.upserts)
}

func TestRunOnce_FetchesNewsWhenFetcherConfigured(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{pages: [][]*article.Article{{testArticle(1, "a", now)}}, total: 1}
	repo := &fakeArticleRepo{}
	fetcher := NewFetcher(provider, repo, &fakeLimiter{}, FetcherConfig{}, testLogger())
	store := newFakeIndexStore()
	s, _ := newSchedulerForTest(repo, store, &memoryCheckpoint{}, 10, WithFetcher(fetcher))

	err := s.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
	assert.Len(t, repo.upserted, 1)
}

func TestScheduler_StartAndStopControlLoop(t *testing.T) {
	repo := &fakeArticleRepo{}
	store := newFakeIndexStore()
	iterations := make(chan struct{}, 16)
	s, _ := newSchedulerForTest(repo, store, &memoryCheckpoint{}, 10,
		WithSleepFunc(func(ctx context.Context, d time.Duration) error {
			iterations <- struct{}{}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
				return nil
			}
		}),
	)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Status().Running)

	// 多重起動は拒否される
	assert.Error(t, s.Start(context.Background()))

	// 少なくとも 2 イテレーションの完了を待つ
	<-iterations
	<-iterations

	s.Stop()
	status := s.Status()
	assert.False(t, status.Running)
	assert.False(t, status.LastRun.IsZero())
	assert.Empty(t, status.LastError)

	// 停止後の Stop は何もしない
	s.Stop()
}
