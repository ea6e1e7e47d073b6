package label

import (
	"bytes"
	"encoding/json"
	"fmt"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/usecase/ai"
)

type promptArticle struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Content     string `json:"content"`
	SourceTitle string `json:"source_title"`
}

const answerFormat = `请返回JSON格式的数组，每个对象包含：
{
  "id": "文章ID",
  "identities": ["标签数组"],
  "themes": ["主题标签数组"],
  "extra": ["其他标签数组"],
  "vibe_coding": true/false
}`

func (s *Service) buildPrompt(batch []entity.ArticleWithSource) (ai.Prompt, error) {
	items := make([]promptArticle, 0, len(batch))
	for _, a := range batch {
		items = append(items, promptArticle{
			ID:          a.Article.ID.String(),
			Title:       a.Article.Title,
			Link:        a.Article.Link,
			Description: a.Article.Description,
			Content:     truncateRunes(a.Article.BodyText(), s.Config.MaxContent),
			SourceTitle: a.SourceTitle,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return ai.Prompt{}, fmt.Errorf("encode batch: %w", err)
	}

	user := fmt.Sprintf("现在，请为以下 %d 篇资讯打标：\n\n%s\n%s", len(batch), buf.String(), answerFormat)
	return ai.Prompt{
		System:      s.systemPrompt,
		User:        user,
		JSON:        true,
		Temperature: s.Config.Temperature,
		MaxTokens:   s.Config.MaxTokens,
	}, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
