package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu     sync.Mutex
	calls  int
	errs   []error
	vector []float32
}

func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return p.vector, nil
}

func (p *fakeProvider) ModelName() string { return "fake-embedding" }

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	fail    bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, false
	}
	v, ok := c.entries[key]
	return v, ok
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return
	}
	c.entries[key] = value
}

func immediatePolicy(maxRetries int) Policy {
	return func(attempt int, err error) Decision {
		if attempt > maxRetries || !isRetryable(err) {
			return Decision{}
		}
		return Decision{Retry: true, Delay: 0}
	}
}

func TestService_Embed_EmptyInput(t *testing.T) {
	// 空白のみの入力はプロバイダを呼ばずに空ベクトルを返す
	provider := &fakeProvider{vector: []float32{1, 2}}
	svc := NewService(provider)

	assert.Empty(t, svc.Embed(context.Background(), "   \n\t"))
	assert.Equal(t, 0, provider.calls)
}

func TestService_Embed_CacheHitSkipsProvider(t *testing.T) {
	provider := &fakeProvider{vector: []float32{0.5, -1.5, 2}}
	cache := newMemoryCache()
	svc := NewService(provider, WithCache(cache))

	first := svc.Embed(context.Background(), "budget deficit")
	require.Equal(t, []float32{0.5, -1.5, 2}, first)
	require.Equal(t, 1, provider.calls)

	second := svc.Embed(context.Background(), "budget deficit")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.calls, "キャッシュヒット時はプロバイダを呼ばない")
}

func TestService_Embed_RetriesThenSucceeds(t *testing.T) {
	provider := &fakeProvider{
		vector: []float32{1},
		errs:   []error{WrapStatus(429, errors.New("rate limited")), WrapStatus(503, errors.New("unavailable"))},
	}
	svc := NewService(provider, WithPolicy(immediatePolicy(3)))

	got := svc.Embed(context.Background(), "retry me")
	assert.Equal(t, []float32{1}, got)
	assert.Equal(t, 3, provider.calls)
}

func TestService_Embed_ExhaustedRetriesDegradesToEmpty(t *testing.T) {
	// リトライ枯渇はエラーではなく空ベクトルに縮退する
	provider := &fakeProvider{
		vector: []float32{1},
		errs: []error{
			WrapStatus(500, errors.New("boom")),
			WrapStatus(500, errors.New("boom")),
			WrapStatus(500, errors.New("boom")),
			WrapStatus(500, errors.New("boom")),
		},
	}
	svc := NewService(provider, WithPolicy(immediatePolicy(3)))

	assert.Empty(t, svc.Embed(context.Background(), "always failing"))
	assert.Equal(t, 4, provider.calls)
}

func TestService_Embed_NonRetryableFailsFast(t *testing.T) {
	provider := &fakeProvider{
		vector: []float32{1},
		errs:   []error{WrapStatus(400, errors.New("bad request"))},
	}
	svc := NewService(provider, WithPolicy(DefaultPolicy(3, time.Millisecond)))

	assert.Empty(t, svc.Embed(context.Background(), "invalid"))
	assert.Equal(t, 1, provider.calls)
}

func TestService_Embed_CacheFailureDegradesToMiss(t *testing.T) {
	provider := &fakeProvider{vector: []float32{7}}
	cache := newMemoryCache()
	cache.fail = true
	svc := NewService(provider, WithCache(cache))

	assert.Equal(t, []float32{7}, svc.Embed(context.Background(), "x"))
	assert.Equal(t, 1, provider.calls)
}

func TestCacheKey_Normalization(t *testing.T) {
	// 大文字小文字と前後空白の差は同一キーに正規化される
	assert.Equal(t, CacheKey("Budget Deficit"), CacheKey("  budget deficit \n"))
	assert.NotEqual(t, CacheKey("budget deficit"), CacheKey("budget surplus"))
}

func TestEncodeDecodeVector(t *testing.T) {
	vector := []float32{0, -1.25, 3.5, 1e-7}
	assert.Equal(t, vector, DecodeVector(EncodeVector(vector)))

	assert.Nil(t, DecodeVector([]byte{1, 2, 3}), "4 の倍数でない長さは破損扱い")
	assert.Nil(t, DecodeVector(nil))
}

func TestDefaultPolicy_Classification(t *testing.T) {
	policy := DefaultPolicy(3, time.Millisecond)

	tests := []struct {
		name  string
		err   error
		retry bool
	}{
		{"429 はリトライ", WrapStatus(429, errors.New("rl")), true},
		{"503 はリトライ", WrapStatus(503, errors.New("down")), true},
		{"一時的な 401 もリトライ", WrapStatus(401, errors.New("auth race")), true},
		{"403 もリトライ", WrapStatus(403, errors.New("firewall")), true},
		{"400 は打ち切り", WrapStatus(400, errors.New("bad")), false},
		{"404 は打ち切り", WrapStatus(404, errors.New("gone")), false},
		{"タイムアウトはリトライ", context.DeadlineExceeded, true},
		{"キャンセルは打ち切り", context.Canceled, false},
		{"不明なエラーは打ち切り", errors.New("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retry, policy(1, tt.err).Retry)
		})
	}

	// 上限超過は常に打ち切り
	assert.False(t, policy(4, WrapStatus(429, errors.New("rl"))).Retry)
}

func TestBackoffDelay_CappedAndJittered(t *testing.T) {
	base := 250 * time.Millisecond
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffDelay(attempt, base)
		assert.LessOrEqual(t, d, MaxDelay)
		assert.Positive(t, d)
	}
}
