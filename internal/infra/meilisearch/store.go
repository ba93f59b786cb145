// Package meilisearch は Meilisearch を使った検索インデックスストア実装を提供する。
package meilisearch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/jinford/news-rag/internal/core/index"
)

const (
	// EmbedderName は userProvided embedder の登録名
	EmbedderName = "default"

	// DefaultTaskTimeout はインデックスタスクの完了待ちタイムアウト
	DefaultTaskTimeout = time.Minute

	// DefaultSemanticRatio はハイブリッド検索の意味検索比率。
	// 0.5 で字句一致と意味一致を同じ重みで合成する
	DefaultSemanticRatio = 0.5

	highlightPreTag  = "<em>"
	highlightPostTag = "</em>"
)

// Store は Meilisearch ベースの index.Store 実装
type Store struct {
	client        meilisearch.ServiceManager
	taskTimeout   time.Duration
	semanticRatio float64
	logger        *slog.Logger
}

type StoreOption func(*Store)

// WithTaskTimeout はタスク完了待ちのタイムアウトを設定する
func WithTaskTimeout(timeout time.Duration) StoreOption {
	return func(s *Store) {
		if timeout > 0 {
			s.taskTimeout = timeout
		}
	}
}

// WithSemanticRatio はハイブリッド検索の意味検索比率を設定する
func WithSemanticRatio(ratio float64) StoreOption {
	return func(s *Store) {
		if ratio > 0 && ratio <= 1 {
			s.semanticRatio = ratio
		}
	}
}

// WithLogger は Store にロガーを設定する
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore は新しい Store を作成する
func NewStore(host, apiKey string, opts ...StoreOption) *Store {
	s := &Store{
		client:        meilisearch.New(host, meilisearch.WithAPIKey(apiKey)),
		taskTimeout:   DefaultTaskTimeout,
		semanticRatio: DefaultSemanticRatio,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exists はインデックスが存在するかを返す
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if _, err := s.client.Index(name).FetchInfo(); err != nil {
		return false, nil
	}
	return true, nil
}

// Settings はインデックスの現在の設定を返す
func (s *Store) Settings(ctx context.Context, name string) (*index.Settings, error) {
	idx := s.client.Index(name)

	raw, err := idx.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to get settings for index %q: %w", name, err)
	}

	settings := &index.Settings{
		SearchableAttributes: raw.SearchableAttributes,
		DisplayedAttributes:  raw.DisplayedAttributes,
	}
	for _, f := range raw.FilterableAttributes {
		settings.FilterableAttributes = append(settings.FilterableAttributes, fmt.Sprint(f))
	}

	embedders, err := idx.GetEmbedders()
	if err == nil {
		if embedder, ok := embedders[EmbedderName]; ok {
			settings.EmbedderDimensions = embedder.Dimensions
		}
	}

	return settings, nil
}

// Create はインデックスを作成して設定を適用する
func (s *Store) Create(ctx context.Context, name string, settings index.Settings) error {
	task, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        name,
		PrimaryKey: index.FieldID,
	})
	if err != nil {
		return fmt.Errorf("failed to create index %q: %w", name, err)
	}
	if err := s.waitForTask(name, task.TaskUID); err != nil {
		return fmt.Errorf("failed to wait for index creation %q: %w", name, err)
	}

	if err := s.UpdateSettings(ctx, name, settings); err != nil {
		return err
	}

	s.logger.Info("インデックスを作成しました",
		"index", name,
		"dimensions", settings.EmbedderDimensions,
	)
	return nil
}

// Delete はインデックスを削除する
func (s *Store) Delete(ctx context.Context, name string) error {
	task, err := s.client.DeleteIndex(name)
	if err != nil {
		return fmt.Errorf("failed to delete index %q: %w", name, err)
	}
	if err := s.waitForTask(name, task.TaskUID); err != nil {
		return fmt.Errorf("failed to wait for index deletion %q: %w", name, err)
	}

	s.logger.Info("インデックスを削除しました", "index", name)
	return nil
}

// UpdateSettings はインデックスの設定を更新する
func (s *Store) UpdateSettings(ctx context.Context, name string, settings index.Settings) error {
	idx := s.client.Index(name)

	if len(settings.SearchableAttributes) > 0 {
		task, err := idx.UpdateSearchableAttributes(&settings.SearchableAttributes)
		if err != nil {
			return fmt.Errorf("failed to update searchable attributes for %q: %w", name, err)
		}
		if err := s.waitForTask(name, task.TaskUID); err != nil {
			return err
		}
	}

	if len(settings.FilterableAttributes) > 0 {
		task, err := idx.UpdateFilterableAttributes(&settings.FilterableAttributes)
		if err != nil {
			return fmt.Errorf("failed to update filterable attributes for %q: %w", name, err)
		}
		if err := s.waitForTask(name, task.TaskUID); err != nil {
			return err
		}
	}

	if len(settings.DisplayedAttributes) > 0 {
		task, err := idx.UpdateDisplayedAttributes(&settings.DisplayedAttributes)
		if err != nil {
			return fmt.Errorf("failed to update displayed attributes for %q: %w", name, err)
		}
		if err := s.waitForTask(name, task.TaskUID); err != nil {
			return err
		}
	}

	if settings.EmbedderDimensions > 0 {
		task, err := idx.UpdateEmbedders(map[string]meilisearch.Embedder{
			EmbedderName: {
				Source:     "userProvided",
				Dimensions: settings.EmbedderDimensions,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to update embedders for %q: %w", name, err)
		}
		if err := s.waitForTask(name, task.TaskUID); err != nil {
			return err
		}
	}

	return nil
}

// Upsert はドキュメントを投入し、インデックスタスクの完了を待つ
func (s *Store) Upsert(ctx context.Context, name string, docs []index.Document) error {
	if len(docs) == 0 {
		return nil
	}

	payload := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		payload = append(payload, s.encodeDocument(doc))
	}

	idx := s.client.Index(name)
	task, err := idx.AddDocuments(payload)
	if err != nil {
		return fmt.Errorf("failed to add documents to %q: %w", name, err)
	}
	if err := s.waitForTask(name, task.TaskUID); err != nil {
		return fmt.Errorf("failed to wait for document indexing in %q: %w", name, err)
	}
	return nil
}

// Search はハイブリッド検索を実行する。Vector が空の場合は字句検索のみ行う
func (s *Store) Search(ctx context.Context, name string, q index.Query) ([]index.Hit, error) {
	limit := q.Limit
	if q.KNN > limit {
		limit = q.KNN
	}

	request := &meilisearch.SearchRequest{
		Limit:            int64(limit),
		ShowRankingScore: true,
	}
	if len(q.Vector) > 0 {
		request.Vector = q.Vector
		request.Hybrid = &meilisearch.SearchRequestHybrid{
			SemanticRatio: s.semanticRatio,
			Embedder:      EmbedderName,
		}
	}
	if len(q.HighlightFields) > 0 {
		request.AttributesToHighlight = q.HighlightFields
		request.HighlightPreTag = highlightPreTag
		request.HighlightPostTag = highlightPostTag
	}

	result, err := s.client.Index(name).Search(quotePhrase(q.Phrase), request)
	if err != nil {
		return nil, fmt.Errorf("search failed on index %q: %w", name, err)
	}

	hits := make([]index.Hit, 0, len(result.Hits))
	for _, raw := range result.Hits {
		hitMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		hits = append(hits, decodeHit(hitMap, q.HighlightFields))
	}
	return capHits(hits, q.Limit), nil
}

// capHits は KNN のために広げた取得件数を要求された Limit まで切り詰める
func capHits(hits []index.Hit, limit int) []index.Hit {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

func (s *Store) waitForTask(name string, taskUID int64) error {
	_, err := s.client.Index(name).WaitForTask(taskUID, s.taskTimeout)
	return err
}

// encodeDocument は embedding フィールドを Meilisearch の _vectors 形式へ写像する
func (s *Store) encodeDocument(doc index.Document) map[string]any {
	encoded := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		if k == index.FieldEmbedding {
			encoded["_vectors"] = map[string]any{EmbedderName: v}
			continue
		}
		encoded[k] = v
	}
	return encoded
}

// quotePhrase はクエリをフレーズ検索として引用する。
// 引用によって字句一致の脚が語順を保った完全一致になる
func quotePhrase(phrase string) string {
	trimmed := strings.TrimSpace(phrase)
	if trimmed == "" {
		return ""
	}
	return `"` + strings.ReplaceAll(trimmed, `"`, `\"`) + `"`
}

// decodeHit は検索ヒットをフィールド・スコア・ハイライトに分解する
func decodeHit(hitMap map[string]interface{}, highlightFields []string) index.Hit {
	hit := index.Hit{Fields: index.Document{}}

	for k, v := range hitMap {
		if strings.HasPrefix(k, "_") {
			continue
		}
		hit.Fields[k] = v
	}

	if score, ok := hitMap["_rankingScore"].(float64); ok {
		hit.Score = score
	}

	if formatted, ok := hitMap["_formatted"].(map[string]interface{}); ok && len(highlightFields) > 0 {
		hit.Highlights = map[string]string{}
		for _, field := range highlightFields {
			if v, ok := formatted[field].(string); ok && v != "" {
				hit.Highlights[field] = v
			}
		}
	}

	return hit
}

// インターフェース実装の確認
var _ index.Store = (*Store)(nil)
