package label

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"ai-feed-reader/internal/domain/entity"

	"github.com/google/uuid"
)

// labelItem is one element of the classifier answer.
type labelItem struct {
	ID         string   `json:"id"`
	Identities []string `json:"identities"`
	Themes     []string `json:"themes"`
	Extra      []string `json:"extra"`
	VibeCoding bool     `json:"vibe_coding"`
}

func (it labelItem) labels() entity.Labels {
	return entity.Labels{
		Identities: it.Identities,
		Themes:     it.Themes,
		Extra:      it.Extra,
		VibeCoding: it.VibeCoding,
	}.Normalized()
}

// Shape names the variant a classifier answer was decoded as.
type Shape string

const (
	ShapeList    Shape = "list"
	ShapeLabels  Shape = "labels"
	ShapeResults Shape = "results"
	ShapeSingle  Shape = "single"
)

// wrapperKeys are tried in order when the answer is an object.
var wrapperKeys = []Shape{ShapeLabels, ShapeResults}

// decodeResponse parses the classifier answer. Variants are attempted in a
// fixed order: bare list, object wrapping the list under a known key, single
// object.
func decodeResponse(text string) ([]labelItem, Shape, error) {
	raw := []byte(stripCodeFence(text))
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, "", fmt.Errorf("%w: empty answer", ErrUndecodable)
	}

	switch raw[0] {
	case '[':
		items, err := decodeList(raw)
		if err != nil {
			return nil, "", err
		}
		return items, ShapeList, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrUndecodable, err)
		}
		for _, key := range wrapperKeys {
			if inner, ok := obj[string(key)]; ok {
				items, err := decodeList(inner)
				if err != nil {
					return nil, "", err
				}
				return items, key, nil
			}
		}
		item, err := decodeSingle(raw)
		if err != nil {
			return nil, "", err
		}
		return []labelItem{item}, ShapeSingle, nil
	default:
		return nil, "", fmt.Errorf("%w: answer is not a JSON list or object", ErrUndecodable)
	}
}

func decodeList(raw []byte) ([]labelItem, error) {
	var items []labelItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return items, nil
}

func decodeSingle(raw []byte) (labelItem, error) {
	var item labelItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return labelItem{}, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	return item, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

// mapLabels assigns decoded items to batch articles by id. When no item
// carries a known id and the counts match, items are assigned by position.
func mapLabels(items []labelItem, batch []uuid.UUID) map[uuid.UUID]entity.Labels {
	inBatch := make(map[uuid.UUID]struct{}, len(batch))
	for _, id := range batch {
		inBatch[id] = struct{}{}
	}

	out := make(map[uuid.UUID]entity.Labels, len(items))
	for _, it := range items {
		id, err := uuid.Parse(strings.TrimSpace(it.ID))
		if err != nil {
			continue
		}
		if _, ok := inBatch[id]; ok {
			out[id] = it.labels()
		}
	}
	if len(out) > 0 || len(items) != len(batch) {
		return out
	}

	// 位置で対応付け
	for i, id := range batch {
		out[id] = items[i].labels()
	}
	return out
}
