// Package search は記事全体・チャンク単位のハイブリッド検索を提供する。
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jinford/news-rag/internal/core/article"
	"github.com/jinford/news-rag/internal/core/index"
)

const (
	// DefaultScoreBandRatio はトップスコアに対する相対スコア帯の既定比率
	DefaultScoreBandRatio = 0.6

	// DefaultSnippetLength はハイライトが無い場合のスニペット長
	DefaultSnippetLength = 400

	// knnMultiplier はベクトル近傍探索の k を topChunks の何倍にするか。
	// 再ランクの材料を確保するため余裕を持たせる
	knnMultiplier = 5

	// knnMin はベクトル近傍探索の k の下限
	knnMin = 100
)

// Embedder はクエリの埋め込み生成インターフェース。
// 失敗時は長さ 0 のベクトルを返す契約
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Result は記事全体検索の結果 1 件
type Result struct {
	Article *article.Article
	Score   float64
}

// ChunkResult はチャンク検索を記事単位にまとめた結果 1 件
type ChunkResult struct {
	Article *article.Article
	Score   float64
	Snippet string
}

// Config は Service の設定
type Config struct {
	ArticleIndex   string
	ChunkIndex     string
	ScoreBandRatio float64
	SnippetLength  int
}

// Service はハイブリッド検索のビジネスロジックを提供する
type Service struct {
	store    index.Store
	embedder Embedder
	cfg      Config
	logger   *slog.Logger
}

// NewService は新しい Service を作成する
func NewService(store index.Store, embedder Embedder, cfg Config, logger *slog.Logger) *Service {
	if cfg.ScoreBandRatio <= 0 {
		cfg.ScoreBandRatio = DefaultScoreBandRatio
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = DefaultSnippetLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, embedder: embedder, cfg: cfg, logger: logger}
}

// HybridSearch は記事全体インデックスに対して字句一致とベクトル近傍の
// ハイブリッド検索を実行し、相対スコア帯フィルタ適用後の上位 top 件を返す
func (s *Service) HybridSearch(ctx context.Context, query string, top int) ([]*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if top <= 0 {
		top = 10
	}

	hits, err := s.store.Search(ctx, s.cfg.ArticleIndex, index.Query{
		Phrase: query,
		Vector: s.embedQuery(ctx, query),
		KNN:    knnFor(top),
		Limit:  top * 2,
	})
	if err != nil {
		return nil, fmt.Errorf("article search failed: %w", err)
	}

	results := make([]*Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, &Result{
			Article: index.ArticleFromHit(hit.Fields),
			Score:   hit.Score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	results = filterResults(results, query, s.cfg.ScoreBandRatio)
	if len(results) > top {
		results = results[:top]
	}
	return results, nil
}

// ChunkHybridSearch はチャンクインデックスを検索し、記事単位にグルーピング
// した結果を返す。各記事はそのスコア最大のチャンクで代表され、スニペットは
// プロバイダのハイライトを優先し、無ければチャンク本文の先頭を切り出す
func (s *Service) ChunkHybridSearch(ctx context.Context, query string, topChunks, topArticles int) ([]*ChunkResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if topChunks <= 0 {
		topChunks = 15
	}
	if topArticles <= 0 {
		topArticles = 10
	}

	hits, err := s.store.Search(ctx, s.cfg.ChunkIndex, index.Query{
		Phrase:          query,
		Vector:          s.embedQuery(ctx, query),
		KNN:             knnFor(topChunks),
		Limit:           topChunks,
		HighlightFields: []string{index.FieldChunkContent},
	})
	if err != nil {
		return nil, fmt.Errorf("chunk search failed: %w", err)
	}

	grouped := s.groupByArticle(hits)
	grouped = filterChunkResults(grouped, query, s.cfg.ScoreBandRatio)
	if len(grouped) > topArticles {
		grouped = grouped[:topArticles]
	}
	return grouped, nil
}

// embedQuery はクエリの埋め込みを取得する。空ベクトル（Embedding 利用不可）の
// 場合は字句検索のみに縮退し、リクエスト全体は失敗させない
func (s *Service) embedQuery(ctx context.Context, query string) []float32 {
	vector := s.embedder.Embed(ctx, query)
	if len(vector) == 0 {
		s.logger.Warn("クエリの embedding を取得できないため字句検索のみで実行します")
	}
	return vector
}

// groupByArticle はチャンクヒットを articleId でまとめ、記事ごとに
// 最高スコアのチャンクを代表として採用する。結果はスコア降順
func (s *Service) groupByArticle(hits []index.Hit) []*ChunkResult {
	best := map[string]*ChunkResult{}
	order := []string{}

	for _, hit := range hits {
		articleID := index.GetString(hit.Fields, index.FieldArticleID)
		chunk := index.GetString(hit.Fields, index.FieldChunkContent)

		current, seen := best[articleID]
		if seen && current.Score >= hit.Score {
			continue
		}

		a := index.ArticleFromHit(hit.Fields)
		a.Content = chunk

		if !seen {
			order = append(order, articleID)
		}
		best[articleID] = &ChunkResult{
			Article: a,
			Score:   hit.Score,
			Snippet: s.snippet(hit, chunk),
		}
	}

	results := make([]*ChunkResult, 0, len(best))
	for _, id := range order {
		results = append(results, best[id])
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

func (s *Service) snippet(hit index.Hit, chunk string) string {
	if hl := hit.Highlights[index.FieldChunkContent]; hl != "" {
		return hl
	}
	runes := []rune(chunk)
	if len(runes) > s.cfg.SnippetLength {
		return string(runes[:s.cfg.SnippetLength]) + "..."
	}
	return chunk
}

// filterResults はリテラルフレーズを含む結果、またはトップスコアの
// band 倍以上のスコアを持つ結果のみを残す。ベクトル近傍だけで紛れ込む
// 低確度の結果を抑えつつ、スコアが低くても厳密な字句一致は残す
func filterResults(results []*Result, query string, band float64) []*Result {
	if len(results) == 0 {
		return results
	}
	threshold := results[0].Score * band

	kept := results[:0]
	for _, r := range results {
		if r.Score >= threshold || articleContainsPhrase(r.Article, "", query) {
			kept = append(kept, r)
		}
	}
	return kept
}

func filterChunkResults(results []*ChunkResult, query string, band float64) []*ChunkResult {
	if len(results) == 0 {
		return results
	}
	threshold := results[0].Score * band

	kept := results[:0]
	for _, r := range results {
		if r.Score >= threshold || articleContainsPhrase(r.Article, r.Snippet, query) {
			kept = append(kept, r)
		}
	}
	return kept
}

// articleContainsPhrase はタイトル・説明・本文・スニペットのいずれかに
// クエリがリテラルフレーズとして（大文字小文字を無視して）含まれるかを返す
func articleContainsPhrase(a *article.Article, snippet, query string) bool {
	phrase := strings.ToLower(strings.TrimSpace(query))
	if phrase == "" {
		return true
	}
	for _, text := range []string{a.Title, a.Description, a.Content, snippet} {
		if text != "" && strings.Contains(strings.ToLower(text), phrase) {
			return true
		}
	}
	return false
}

func knnFor(top int) int {
	k := top * knnMultiplier
	if k < knnMin {
		k = knnMin
	}
	return k
}
