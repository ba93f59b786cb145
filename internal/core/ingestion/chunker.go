// Package ingestion はニュース記事の取得・チャンク化・インデックス投入と
// その定期実行を提供する。
package ingestion

import (
	"iter"
	"strings"
)

const (
	// DefaultChunkSize はチャンクの文字数（rune 単位）
	DefaultChunkSize = 4000

	// DefaultChunkOverlap は隣接チャンク間で重複させる文字数。
	// チャンク境界で文脈が切れて検索から漏れるのを防ぐ
	DefaultChunkOverlap = 400
)

// Chunks は本文を固定長の重複付きウィンドウに分割する遅延シーケンスを返す。
// キーはチャンクの通し番号（0 始まり）。分割は決定的であり、同じ入力と
// 設定に対して常に同じチャンク列を生成する。
// overlap が size 以上の場合は重複なしとして扱う。
// 空文字列・空白のみの本文はチャンクを生成しない
func Chunks(content string, size, overlap int) iter.Seq2[int, string] {
	if strings.TrimSpace(content) == "" {
		content = ""
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap

	return func(yield func(int, string) bool) {
		runes := []rune(content)
		if len(runes) == 0 {
			return
		}

		order := 0
		for start := 0; start < len(runes); start += step {
			end := start + size
			if end > len(runes) {
				end = len(runes)
			}
			if !yield(order, string(runes[start:end])) {
				return
			}
			if end == len(runes) {
				return
			}
			order++
		}
	}
}
