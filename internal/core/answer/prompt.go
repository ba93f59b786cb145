package answer

import (
	"fmt"
	"strings"
)

// maxSnippetChars はプロンプトに載せる根拠スニペットの長さ上限
const maxSnippetChars = 800

// answerSystemPrompt は根拠外の推測を禁止する指示。
// 根拠が不足する場合は回答できないと述べさせる
const answerSystemPrompt = `あなたはニュース記事を根拠に質問へ回答するアシスタントです。
与えられた記事スニペットに含まれる情報のみを使って回答してください。

ルール:
- 回答には根拠とした記事を [S1] [S2] のような形式で引用する
- スニペットに回答の根拠が無い場合は、推測せずに「提供された記事からは分かりません」と答える
- 回答は簡潔にまとめる`

// BuildAnswerPrompt は質問と根拠スニペットからユーザープロンプトを構築する
func BuildAnswerPrompt(query string, sources []Source) string {
	var sb strings.Builder

	sb.WriteString("## 根拠記事\n")
	if len(sources) == 0 {
		sb.WriteString("(該当する記事はありません)\n")
	}
	for i, src := range sources {
		sb.WriteString(fmt.Sprintf("### [S%d] %s\n", i+1, src.Title))
		if src.URL != "" {
			sb.WriteString(fmt.Sprintf("URL: %s\n", src.URL))
		}
		sb.WriteString(truncateSnippet(src.Snippet))
		sb.WriteString("\n\n")
	}

	sb.WriteString("## 質問\n")
	sb.WriteString(query)
	sb.WriteString("\n\n## 回答\n")

	return sb.String()
}

func truncateSnippet(snippet string) string {
	runes := []rune(snippet)
	if len(runes) <= maxSnippetChars {
		return snippet
	}
	return string(runes[:maxSnippetChars]) + "..."
}
