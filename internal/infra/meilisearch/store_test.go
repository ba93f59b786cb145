package meilisearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/news-rag/internal/core/index"
)

func TestQuotePhrase(t *testing.T) {
	assert.Equal(t, `"go release"`, quotePhrase("go release"))
	assert.Equal(t, `"go release"`, quotePhrase("  go release  "))
	assert.Equal(t, ``, quotePhrase("   "))
	// 内部の引用符はエスケープされる
	assert.Equal(t, `"say \"hello\""`, quotePhrase(`say "hello"`))
}

func TestDecodeHit_ExtractsScoreAndHighlights(t *testing.T) {
	hitMap := map[string]interface{}{
		"id":            "1",
		"title":         "Go release",
		"chunkContent":  "the Go team released",
		"_rankingScore": 0.87,
		"_formatted": map[string]interface{}{
			"chunkContent": "the <em>Go</em> team released",
		},
	}

	hit := decodeHit(hitMap, []string{index.FieldChunkContent})

	assert.Equal(t, 0.87, hit.Score)
	assert.Equal(t, "Go release", hit.Fields["title"])
	// アンダースコア付きの内部フィールドは Fields に含めない
	_, hasScore := hit.Fields["_rankingScore"]
	assert.False(t, hasScore)
	require.NotNil(t, hit.Highlights)
	assert.Equal(t, "the <em>Go</em> team released", hit.Highlights[index.FieldChunkContent])
}

func TestDecodeHit_NilHighlightsWithoutRequestedFields(t *testing.T) {
	hitMap := map[string]interface{}{
		"id":            "1",
		"_rankingScore": 0.5,
		"_formatted":    map[string]interface{}{"title": "<em>x</em>"},
	}

	hit := decodeHit(hitMap, nil)

	assert.Nil(t, hit.Highlights)
	assert.Equal(t, 0.5, hit.Score)
}

func TestEncodeDocument_MapsEmbeddingToVectors(t *testing.T) {
	s := NewStore("http://localhost:7700", "key")
	doc := index.Document{
		index.FieldID:        "1",
		index.FieldTitle:     "t",
		index.FieldEmbedding: []float32{1, 2, 3},
	}

	encoded := s.encodeDocument(doc)

	assert.Equal(t, "1", encoded[index.FieldID])
	_, hasRaw := encoded[index.FieldEmbedding]
	assert.False(t, hasRaw)
	vectors, ok := encoded["_vectors"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, vectors[EmbedderName])
}

func TestEncodeDocument_PassesThroughWithoutEmbedding(t *testing.T) {
	s := NewStore("http://localhost:7700", "key")
	doc := index.Document{index.FieldID: "1"}

	encoded := s.encodeDocument(doc)

	_, hasVectors := encoded["_vectors"]
	assert.False(t, hasVectors)
}

func TestCapHits_TruncatesToRequestedLimit(t *testing.T) {
	hits := []index.Hit{
		{Score: 3}, {Score: 2}, {Score: 1},
	}

	capped := capHits(hits, 2)

	require.Len(t, capped, 2)
	assert.Equal(t, 3.0, capped[0].Score)
	assert.Equal(t, 2.0, capped[1].Score)
}

func TestCapHits_KeepsHitsWithinLimit(t *testing.T) {
	hits := []index.Hit{{Score: 1}}

	assert.Len(t, capHits(hits, 5), 1)
	// limit 0 は無制限扱い
	assert.Len(t, capHits(hits, 0), 1)
}
