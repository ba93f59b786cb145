package index

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jinford/news-rag/internal/core/article"
)

// ChunkDocumentID はチャンクドキュメントのキーを返す。
// 同一記事・同一チャンク順序なら常に同じキーになり、upsert が冪等になる。
func ChunkDocumentID(articleID int64, order int) string {
	return fmt.Sprintf("%d-%d", articleID, order)
}

// ArticleDocument は記事全体のインデックスドキュメントを構築する
func ArticleDocument(a *article.Article, embedding []float32) Document {
	doc := Document{
		FieldID:          strconv.FormatInt(a.ID, 10),
		FieldTitle:       a.Title,
		FieldDescription: a.Description,
		FieldContent:     a.Content,
		FieldURL:         a.URL,
		FieldSourceName:  a.SourceName,
		FieldPublishedAt: formatTime(a.PublishedAt),
	}
	if len(embedding) > 0 {
		doc[FieldEmbedding] = embedding
	}
	return doc
}

// ChunkDocument はチャンク単位のインデックスドキュメントを構築する
func ChunkDocument(a *article.Article, order int, chunk string, embedding []float32) Document {
	doc := Document{
		FieldID:           ChunkDocumentID(a.ID, order),
		FieldArticleID:    strconv.FormatInt(a.ID, 10),
		FieldTitle:        a.Title,
		FieldChunkContent: chunk,
		FieldChunkOrder:   order,
		FieldPublishedAt:  formatTime(a.PublishedAt),
	}
	if len(embedding) > 0 {
		doc[FieldEmbedding] = embedding
	}
	return doc
}

// ArticleFromHit は検索ヒットのフィールドを記事に写像する。
// 欠落フィールドはゼロ値として扱い、パースできない値は捨てる。
func ArticleFromHit(fields map[string]any) *article.Article {
	a := &article.Article{
		Title:       GetString(fields, FieldTitle),
		Description: GetString(fields, FieldDescription),
		Content:     GetString(fields, FieldContent),
		URL:         GetString(fields, FieldURL),
		SourceName:  GetString(fields, FieldSourceName),
		PublishedAt: GetTime(fields, FieldPublishedAt),
	}

	id := GetString(fields, FieldID)
	if aid := GetString(fields, FieldArticleID); aid != "" {
		id = aid
	}
	if parsed, err := strconv.ParseInt(id, 10, 64); err == nil {
		a.ID = parsed
	}
	return a
}

// GetString は動的フィールドから文字列を取り出す
func GetString(fields map[string]any, key string) string {
	if v, ok := fields[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetTime は動的フィールドから RFC3339 時刻を取り出す
func GetTime(fields map[string]any, key string) *time.Time {
	s := GetString(fields, key)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
