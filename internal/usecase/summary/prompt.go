package summary

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/usecase/ai"
)

func (s *Service) buildPrompt(a *entity.Article, sourceTitle string) ai.Prompt {
	if sourceTitle == "" {
		sourceTitle = unknownSource
	}
	content := a.BodyText()
	if r := []rune(content); s.Config.MaxContent > 0 && len(r) > s.Config.MaxContent {
		content = string(r[:s.Config.MaxContent]) + "..."
	}

	user := fmt.Sprintf(`请为以下文章生成摘要：

**标题**：%s
**来源**：%s
**链接**：%s

**正文内容**：
%s

请严格按照上述Markdown结构输出摘要。`, a.Title, sourceTitle, a.Link, content)

	return ai.Prompt{
		System:      s.Taxonomy.SummaryPrompt,
		User:        user,
		Temperature: s.Config.Temperature,
		MaxTokens:   s.Config.MaxTokens,
	}
}

// shouldSkip reports whether a is not worth summarizing: the classifier
// disregarded it or the body is too short.
func (s *Service) shouldSkip(a *entity.Article) bool {
	if a.IsDisregarded(s.Taxonomy.DisregardTag) {
		return true
	}
	return utf8.RuneCountInString(strings.TrimSpace(a.BodyText())) < s.Config.MinContent
}

// validate applies the length and header heuristics to a provider answer.
func (s *Service) validate(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSummary)
	}
	if n := utf8.RuneCountInString(text); n < s.Config.MinLength {
		return "", fmt.Errorf("%w: %d chars, want at least %d", ErrInvalidSummary, n, s.Config.MinLength)
	}
	if !strings.Contains(text, headerMarker) {
		return "", fmt.Errorf("%w: no markdown headers", ErrInvalidSummary)
	}
	return text, nil
}
