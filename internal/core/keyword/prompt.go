package keyword

import (
	"fmt"
	"strings"

	"github.com/jinford/news-rag/internal/core/article"
)

// systemPrompt は出力を JSON 配列に限定する指示。
// モデルが前置きや説明を付けると抽出が壊れるため、契約を明文化する
const systemPrompt = `あなたはニュース記事から検索キーワードを抽出するアシスタントです。
与えられた各記事について、読者がその記事を探すときに使いそうな検索キーワードを抽出してください。

出力は次の形式の JSON 配列のみとし、説明文やコードブロックは一切含めないでください:
[{"articleId": 記事ID, "keywords": ["キーワード1", "キーワード2"]}]

ルール:
- キーワードは記事ごとに最大 10 個
- 固有名詞・トピック・出来事を優先する
- 記事の言語と同じ言語でキーワードを書く`

// BuildExtractionPrompt はバッチ内の記事を列挙したユーザープロンプトを構築する
func BuildExtractionPrompt(articles []*article.Article, maxWords int) string {
	var sb strings.Builder

	sb.WriteString("以下の記事からキーワードを抽出してください。\n\n")
	for i, a := range articles {
		sb.WriteString(fmt.Sprintf("## 記事 %d\n", i+1))
		sb.WriteString(fmt.Sprintf("記事ID: %d\n", a.ID))
		sb.WriteString(fmt.Sprintf("タイトル: %s\n", a.Title))
		if a.Description != "" {
			sb.WriteString(fmt.Sprintf("概要: %s\n", a.Description))
		}
		if body := truncateWords(a.Content, maxWords); body != "" {
			sb.WriteString("本文:\n")
			sb.WriteString(body)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// truncateWords は本文を先頭 maxWords 語に切り詰める
func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:maxWords], " ")
}

// extractJSONArray は応答テキストから最外の JSON 配列を取り出す。
// モデルが前後に文章やコードフェンスを付けても配列部分だけを救出する
func extractJSONArray(text string) (string, bool) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
