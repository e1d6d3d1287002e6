// Package provider implements the translation provider used by the
// orchestrator: an OpenAI-compatible chat completions client with request
// pacing, shared rate-limit tracking, error classification, and retry with
// exponential backoff.
package provider

import "context"

// Request is one provider call: a batch of texts sharing a language pair.
type Request struct {
	Texts      []string `json:"texts"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
}

// Result is the translation of one input text.
//
// TranslatedText is empty when the provider returned nothing usable for the
// text; callers leave the corresponding cell untouched.
type Result struct {
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
}

// Translator translates a batch of texts.
//
// Implementations must return exactly one Result per input text, at the same
// position as the text in Request.Texts.
type Translator interface {
	Translate(ctx context.Context, req Request) ([]Result, error)
}

// TranslatorFunc adapts a function to the Translator interface.
type TranslatorFunc func(ctx context.Context, req Request) ([]Result, error)

// Translate calls f.
func (f TranslatorFunc) Translate(ctx context.Context, req Request) ([]Result, error) {
	return f(ctx, req)
}
