package entity

import "strings"

// TagMarker is the canonical leading character of every label tag.
const TagMarker = "#"

// DisregardTag is the default identity tag meaning "not worth further processing".
const DisregardTag = "#可忽略"

// IgnoredSummaryReason is recorded on articles whose summary is skipped.
const IgnoredSummaryReason = "Content too short or marked as ignorable"

// Labels is the structured classification result stored on an article.
type Labels struct {
	Identities []string `json:"identities"`
	Themes     []string `json:"themes"`
	Extra      []string `json:"extra"`
	VibeCoding bool     `json:"vibe_coding"`
}

// NormalizeTag trims a tag and prefixes the tag marker when it is missing.
// Empty tags normalize to "".
func NormalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	if !strings.HasPrefix(tag, TagMarker) {
		return TagMarker + tag
	}
	return tag
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if n := NormalizeTag(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Normalized returns a copy of l with every tag normalized.
func (l Labels) Normalized() Labels {
	return Labels{
		Identities: normalizeTags(l.Identities),
		Themes:     normalizeTags(l.Themes),
		Extra:      normalizeTags(l.Extra),
		VibeCoding: l.VibeCoding,
	}
}

// HasIdentity reports whether tag is one of the identity tags.
// Both sides are normalized before comparing.
func (l Labels) HasIdentity(tag string) bool {
	want := NormalizeTag(tag)
	for _, id := range l.Identities {
		if NormalizeTag(id) == want {
			return true
		}
	}
	return false
}
