package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectChunks(content string, size, overlap int) []string {
	var chunks []string
	for order, chunk := range Chunks(content, size, overlap) {
		// 通し番号が 0 始まりで連続していることも同時に確認する
		if order != len(chunks) {
			panic("chunk order is not sequential")
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestChunks_EmptyContentYieldsNoChunks(t *testing.T) {
	assert.Empty(t, collectChunks("", 10, 2))
}

func TestChunks_WhitespaceOnlyContentYieldsNoChunks(t *testing.T) {
	assert.Empty(t, collectChunks("   \n\t  ", 10, 2))
	assert.Empty(t, collectChunks("\n\n", DefaultChunkSize, DefaultChunkOverlap))
}

func TestChunks_ContentWithinSizeIsSingleChunk(t *testing.T) {
	chunks := collectChunks("hello", 10, 2)

	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0])
}

func TestChunks_SplitsWithOverlap(t *testing.T) {
	// 26 文字を size=10, overlap=4 で分割すると step=6
	content := "abcdefghijklmnopqrstuvwxyz"

	chunks := collectChunks(content, 10, 4)

	require.Equal(t, []string{
		"abcdefghij",
		"ghijklmnop",
		"mnopqrstuv",
		"stuvwxyz",
	}, chunks)
}

func TestChunks_EveryRuneAppearsInSomeChunk(t *testing.T) {
	content := strings.Repeat("0123456789", 1000)

	chunks := collectChunks(content, DefaultChunkSize, DefaultChunkOverlap)

	joined := strings.Join(chunks, "")
	// オーバーラップ分を除いても元の文字列は再構成できる
	reconstructed := chunks[0]
	for _, c := range chunks[1:] {
		reconstructed += c[DefaultChunkOverlap:]
	}
	assert.Equal(t, content, reconstructed)
	assert.GreaterOrEqual(t, len(joined), len(content))
}

func TestChunks_IsDeterministic(t *testing.T) {
	content := strings.Repeat("ニュース記事のテスト本文。", 500)

	first := collectChunks(content, 100, 10)
	second := collectChunks(content, 100, 10)

	assert.Equal(t, first, second)
}

func TestChunks_KeepsMultibyteRunesIntact(t *testing.T) {
	content := strings.Repeat("あ", 25)

	chunks := collectChunks(content, 10, 0)

	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("あ", 10), chunks[0])
	assert.Equal(t, strings.Repeat("あ", 5), chunks[2])
}

func TestChunks_IgnoresInvalidOverlap(t *testing.T) {
	chunks := collectChunks("abcdefghij", 5, 5)

	assert.Equal(t, []string{"abcde", "fghij"}, chunks)
}

func TestChunks_SupportsEarlyBreak(t *testing.T) {
	content := strings.Repeat("x", 100)

	count := 0
	for range Chunks(content, 10, 0) {
		count++
		if count == 2 {
			break
		}
	}

	assert.Equal(t, 2, count)
}
