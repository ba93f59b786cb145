// Package tokenizer は tiktoken によるトークン数カウントを提供する。
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/news-rag/internal/core/keyword"
)

// DefaultEncoding は OpenAI のチャットモデルが使うエンコーディング
const DefaultEncoding = "cl100k_base"

// Counter はテキストのトークン数をカウントする
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter は新しい Counter を作成する
func NewCounter() (*Counter, error) {
	encoding, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return &Counter{encoding: encoding}, nil
}

// CountTokens はテキストのトークン数を返す
func (c *Counter) CountTokens(text string) int {
	if c.encoding == nil {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

var _ keyword.TokenCounter = (*Counter)(nil)
