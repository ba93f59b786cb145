package index

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// DefaultDimensions は次元数の検出に失敗した場合のフォールバック値
const DefaultDimensions = 1536

// probeText は埋め込みモデルの出力次元を実測するための固定入力
const probeText = "dimension probe"

// ErrDimensionMismatch は再作成が無効な構成でスキーマ不整合を検出した場合のエラー
var ErrDimensionMismatch = fmt.Errorf("index embedder dimensions do not match the live embedding model")

// Embedder は次元プローブに使う埋め込みクライアント。
// 失敗時は長さ 0 のベクトルを返す契約（embedding.Service と同じ）。
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// ManagerConfig は Manager の設定
type ManagerConfig struct {
	ArticleIndex string
	ChunkIndex   string

	// DefaultDimensions はプローブ失敗時に使う次元数
	DefaultDimensions int

	// RecreateOnMismatch が true の場合、次元・構成不整合のインデックスを
	// 削除して作り直す。false の場合は ErrDimensionMismatch を返す
	RecreateOnMismatch bool
}

// Manager は 2 つのインデックス（記事全体・チャンク）のスキーマ整合を保証する。
//
// Ensure 系メソッドは冪等であり、整合済みの場合は何もしない。
// インジェストおよびインデックスを触る検索の前に毎回呼び出してよい。
type Manager struct {
	store    Store
	embedder Embedder
	cfg      ManagerConfig
	logger   *slog.Logger

	mu          sync.Mutex
	detectedDim int
}

// NewManager は新しい Manager を作成する
func NewManager(store Store, embedder Embedder, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.DefaultDimensions <= 0 {
		cfg.DefaultDimensions = DefaultDimensions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
}

// articleSettings は記事インデックスの望ましいスキーマを返す
func articleSettings(dims int) Settings {
	return Settings{
		SearchableAttributes: []string{FieldTitle, FieldDescription, FieldContent},
		FilterableAttributes: []string{FieldID, FieldPublishedAt},
		EmbedderDimensions:   dims,
	}
}

// chunkSettings はチャンクインデックスの望ましいスキーマを返す。
// articleId は記事単位のグルーピングに必須のためフィルタ可能にする。
func chunkSettings(dims int) Settings {
	return Settings{
		SearchableAttributes: []string{FieldTitle, FieldChunkContent},
		FilterableAttributes: []string{FieldArticleID, FieldChunkOrder, FieldPublishedAt},
		EmbedderDimensions:   dims,
	}
}

// EnsureArticleIndex は記事インデックスの存在とスキーマ整合を保証する
func (m *Manager) EnsureArticleIndex(ctx context.Context) error {
	return m.ensure(ctx, m.cfg.ArticleIndex, articleSettings)
}

// EnsureChunkIndex はチャンクインデックスの存在とスキーマ整合を保証する
func (m *Manager) EnsureChunkIndex(ctx context.Context) error {
	return m.ensure(ctx, m.cfg.ChunkIndex, chunkSettings)
}

// EnsureAll は両方のインデックスを整合させる
func (m *Manager) EnsureAll(ctx context.Context) error {
	if err := m.EnsureArticleIndex(ctx); err != nil {
		return err
	}
	return m.EnsureChunkIndex(ctx)
}

func (m *Manager) ensure(ctx context.Context, name string, desired func(dims int) Settings) error {
	exists, err := m.store.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check index %q: %w", name, err)
	}

	if !exists {
		dims := m.probeDimensions(ctx, 0)
		m.logger.Info("インデックスを新規作成します", "index", name, "dimensions", dims)
		if err := m.store.Create(ctx, name, desired(dims)); err != nil {
			return fmt.Errorf("failed to create index %q: %w", name, err)
		}
		return nil
	}

	current, err := m.store.Settings(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to fetch settings of index %q: %w", name, err)
	}

	dims := m.probeDimensions(ctx, current.EmbedderDimensions)
	want := desired(dims)

	switch {
	case current.EmbedderDimensions != 0 && current.EmbedderDimensions != dims:
		// 次元不整合。古いベクトルを残すより作り直す方が安全
		return m.recreate(ctx, name, want, fmt.Sprintf(
			"embedder dimensions %d != live model %d", current.EmbedderDimensions, dims))

	case current.EmbedderDimensions == 0:
		// ベクトル検索構成そのものが欠落している
		return m.recreate(ctx, name, want, "vector embedder configuration missing")

	case !containsAll(current.FilterableAttributes, want.FilterableAttributes):
		// 旧世代スキーマ。グルーピングに必要なフィルタ属性が宣言されていない
		return m.recreate(ctx, name, want, "required filterable attributes missing")
	}

	if restricted(current.DisplayedAttributes) {
		// 取得不可フィールドがあるとハイライトや再ランクで読み戻せない。
		// これは再作成せずその場で解除できる
		m.logger.Warn("取得不可フィールドを解除します", "index", name)
		fixed := *current
		fixed.DisplayedAttributes = []string{"*"}
		if err := m.store.UpdateSettings(ctx, name, fixed); err != nil {
			return fmt.Errorf("failed to update displayed attributes of index %q: %w", name, err)
		}
		return nil
	}

	return nil
}

func (m *Manager) recreate(ctx context.Context, name string, want Settings, reason string) error {
	if !m.cfg.RecreateOnMismatch {
		m.logger.Error("インデックスのスキーマ不整合を検出しました",
			"index", name, "reason", reason)
		return fmt.Errorf("index %q: %s: %w", name, reason, ErrDimensionMismatch)
	}

	m.logger.Warn("インデックスを削除して再作成します", "index", name, "reason", reason)
	if err := m.store.Delete(ctx, name); err != nil {
		return fmt.Errorf("failed to delete index %q: %w", name, err)
	}
	if err := m.store.Create(ctx, name, want); err != nil {
		return fmt.Errorf("failed to recreate index %q: %w", name, err)
	}
	return nil
}

// probeDimensions は埋め込みモデルの出力長を実測する。
// 失敗時は fallback（既存インデックスの次元）、それも無ければ設定の既定値を使う。
// 結果はプロセス内で一度だけ検出し以後再利用する。
func (m *Manager) probeDimensions(ctx context.Context, fallback int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.detectedDim > 0 {
		return m.detectedDim
	}

	probe := m.embedder.Embed(ctx, probeText)
	if len(probe) > 0 {
		m.detectedDim = len(probe)
		return m.detectedDim
	}

	if fallback > 0 {
		m.logger.Warn("次元プローブに失敗したため既存インデックスの次元を使用します", "dimensions", fallback)
		return fallback
	}
	m.logger.Warn("次元プローブに失敗したため既定値を使用します", "dimensions", m.cfg.DefaultDimensions)
	return m.cfg.DefaultDimensions
}

// containsAll は want の全要素が got に含まれるかを返す
func containsAll(got, want []string) bool {
	for _, w := range want {
		if !slices.Contains(got, w) {
			return false
		}
	}
	return true
}

// restricted は displayed attributes が一部フィールドを取得不可に
// 制限しているかを返す（空または "*" は全フィールド取得可）
func restricted(displayed []string) bool {
	if len(displayed) == 0 {
		return false
	}
	return !slices.Contains(displayed, "*")
}
