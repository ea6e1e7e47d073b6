package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// Tag is one entry of the label system.
type Tag struct {
	Tag         string `yaml:"tag"`
	Description string `yaml:"description"`
}

// Taxonomy is the label system the classifier is asked to apply, plus the
// summarizer's output instructions.
type Taxonomy struct {
	Persona       string `yaml:"persona"`
	DisregardTag  string `yaml:"disregard_tag"`
	VibeTag       string `yaml:"vibe_tag"`
	Identities    []Tag  `yaml:"identities"`
	Themes        []Tag  `yaml:"themes"`
	ExtraRule     string `yaml:"extra_rule"`
	VibeRule      string `yaml:"vibe_rule"`
	SummaryPrompt string `yaml:"summary_prompt"`
}

// DefaultTaxonomy returns the embedded label system.
func DefaultTaxonomy() *Taxonomy {
	t, err := parseTaxonomy(defaultTaxonomy)
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy is invalid: %v", err))
	}
	return t
}

// LoadTaxonomy reads the label system from path, or returns the embedded
// default when path is empty.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}
	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
	}
	return parseTaxonomy(data)
}

func parseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("taxonomy validation failed: %w", err)
	}
	return &t, nil
}

// Validate requires a disregard tag that is also one of the identities.
func (t *Taxonomy) Validate() error {
	if t.DisregardTag == "" {
		return errors.New("disregard_tag is required")
	}
	if len(t.Identities) == 0 {
		return errors.New("at least one identity tag is required")
	}
	for _, id := range t.Identities {
		if id.Tag == t.DisregardTag {
			return nil
		}
	}
	return fmt.Errorf("disregard_tag %q is not listed in identities", t.DisregardTag)
}

// LabelerSystemPrompt renders the classifier instructions.
func (t *Taxonomy) LabelerSystemPrompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(t.Persona))
	b.WriteString("\n\n标签体系\n- 第一层：核心身份标签 (identities,必选其一或其二)\n")
	writeTags(&b, t.Identities)
	b.WriteString("- 第二层：内容主题标签 (themes,根据内容选择最相关的1-2个)\n")
	writeTags(&b, t.Themes)
	if t.ExtraRule != "" {
		b.WriteString("第三层（extra）：" + t.ExtraRule + "\n")
	}
	if t.VibeRule != "" {
		b.WriteString(t.VibeRule + "\n")
	}
	b.WriteString("\n任务要求\n1. 阅读并理解提供的资讯全文。\n2. 严格遵循上述标签体系，输出最贴切的标签。\n3. 输出格式:只返回Json格式，包含所有文章的标签数组。\n4. 标签都加上#号")
	return b.String()
}

func writeTags(b *strings.Builder, tags []Tag) {
	for _, tag := range tags {
		b.WriteString("  - " + tag.Tag)
		if tag.Description != "" {
			b.WriteString("：" + tag.Description)
		}
		b.WriteString("\n")
	}
}
