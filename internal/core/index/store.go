// Package index は外部の全文+ベクトル検索インデックスサービスとの
// 境界契約と、スキーマ整合の維持を担う。
package index

import "context"

// ドキュメントのフィールド名。記事インデックスとチャンクインデックスで共有する。
const (
	FieldID           = "id"
	FieldArticleID    = "articleId"
	FieldTitle        = "title"
	FieldDescription  = "description"
	FieldContent      = "content"
	FieldChunkContent = "chunkContent"
	FieldChunkOrder   = "chunkOrder"
	FieldURL          = "url"
	FieldSourceName   = "sourceName"
	FieldPublishedAt  = "publishedAt"
	FieldEmbedding    = "embedding"
)

// Document はインデックスに upsert するドキュメント。
// キーは Field* 定数、埋め込みベクトルは FieldEmbedding に []float32 で持つ。
type Document map[string]any

// Settings はインデックスの検索スキーマを表す。
type Settings struct {
	// SearchableAttributes は全文検索対象のフィールド
	SearchableAttributes []string

	// FilterableAttributes はフィルタ可能なフィールド
	FilterableAttributes []string

	// DisplayedAttributes は取得可能なフィールド。空は全フィールド取得可を意味する
	DisplayedAttributes []string

	// EmbedderDimensions は登録済みベクトル埋め込みの次元数。0 は未設定
	EmbedderDimensions int
}

// Query はハイブリッド検索リクエストを表す。
type Query struct {
	// Phrase はリテラルフレーズとして扱う検索文字列。
	// 実装側で引用符等をエスケープし、クエリ構文として解釈させない
	Phrase string

	// Vector はクエリの埋め込みベクトル。空の場合は字句検索のみ
	Vector []float32

	// KNN はベクトル近傍探索の k
	KNN int

	// Limit は返却するヒット数の上限
	Limit int

	// HighlightFields はハイライト付きで返すフィールド
	HighlightFields []string
}

// Hit は検索ヒット 1 件を表す。
type Hit struct {
	Fields     map[string]any
	Score      float64
	Highlights map[string]string
}

// Store は検索インデックスサービスの境界インターフェース。
// Upsert はキーによるマージ・挿入であり冪等。
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	Settings(ctx context.Context, name string) (*Settings, error)
	Create(ctx context.Context, name string, settings Settings) error
	Delete(ctx context.Context, name string) error
	UpdateSettings(ctx context.Context, name string, settings Settings) error
	Upsert(ctx context.Context, name string, docs []Document) error
	Search(ctx context.Context, name string, query Query) ([]Hit, error)
}
