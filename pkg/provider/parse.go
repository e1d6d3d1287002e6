package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// translationItem is one entry of the model's answer. ID is optional: models
// occasionally drop it, in which case entries are matched by position.
type translationItem struct {
	ID             *int   `json:"id"`
	TranslatedText string `json:"translated_text"`
}

// ParseTranslations decodes the model's answer for texts and returns one
// Result per text, in input order.
//
// Accepted shapes: {"translations":[...]}, a bare array of items, or a bare
// array of strings. Entries carrying ids are matched by id; a text whose id is
// missing from the answer stays unresolved (empty TranslatedText). Entries
// without ids must match the input count exactly.
func ParseTranslations(content string, texts []string) ([]Result, error) {
	items, err := decodeItems(stripCodeFence(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResultMismatch, err)
	}

	results := make([]Result, len(texts))
	for i, text := range texts {
		results[i].OriginalText = text
	}

	withID := 0
	for _, item := range items {
		if item.ID != nil {
			withID++
		}
	}

	switch {
	case withID > 0:
		matched := 0
		for _, item := range items {
			if item.ID == nil {
				continue
			}
			id := *item.ID
			if id < 0 || id >= len(texts) || results[id].TranslatedText != "" {
				continue
			}
			results[id].TranslatedText = item.TranslatedText
			if item.TranslatedText != "" {
				matched++
			}
		}
		if matched == 0 {
			return nil, fmt.Errorf("%w: no id matched any of %d texts", ErrResultMismatch, len(texts))
		}
	case len(items) == len(texts):
		for i, item := range items {
			results[i].TranslatedText = item.TranslatedText
		}
	default:
		return nil, fmt.Errorf("%w: got %d translations for %d texts", ErrResultMismatch, len(items), len(texts))
	}

	return results, nil
}

func decodeItems(content string) ([]translationItem, error) {
	var wrapped struct {
		Translations []json.RawMessage `json:"translations"`
	}
	var raw []json.RawMessage

	switch {
	case strings.HasPrefix(content, "{"):
		if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
			return nil, err
		}
		if wrapped.Translations == nil {
			return nil, fmt.Errorf(`missing "translations" field`)
		}
		raw = wrapped.Translations
	case strings.HasPrefix(content, "["):
		if err := json.Unmarshal([]byte(content), &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("model output is not JSON")
	}

	items := make([]translationItem, 0, len(raw))
	for _, r := range raw {
		var item translationItem
		if err := json.Unmarshal(r, &item); err == nil {
			items = append(items, item)
			continue
		}
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			return nil, fmt.Errorf("unexpected translation entry %s", r)
		}
		items = append(items, translationItem{TranslatedText: s})
	}
	return items, nil
}

// stripCodeFence removes a surrounding markdown code fence, if any.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
