// Package answer はニュース記事を根拠とする RAG 回答生成を提供する。
package answer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultCacheTTL は回答キャッシュの既定 TTL
const DefaultCacheTTL = 30 * time.Minute

// Completer はLLM補完インターフェース
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Cache は回答キャッシュへのアクセスインターフェース。
// 失敗はミス扱いとし、呼び出し元にエラーを返さない
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Source は回答の根拠となった記事を表す
type Source struct {
	ArticleID int64
	Title     string
	URL       string
	Snippet   string
	Score     float64
}

// Result は RAG 回答の結果
type Result struct {
	Answer  string
	Sources []Source
	Cached  bool
}

// CacheKey はクエリと根拠記事 ID 集合から決定的なキャッシュキーを導出する。
// クエリは正規化し、ID は整列するため、同じ根拠に対しては
// ID の到着順やクエリの大文字小文字に依らず同じキーになる
func CacheKey(query string, articleIDs []int64) string {
	ids := make([]int64, len(articleIDs))
	copy(ids, articleIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}

	normalized := strings.ToLower(strings.TrimSpace(query)) + "|" + strings.Join(parts, ",")
	sum := sha256.Sum256([]byte(normalized))
	return "ans:" + hex.EncodeToString(sum[:])
}
