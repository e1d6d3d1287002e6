// Package language validates user-supplied language identifiers against the
// fixed set of languages the translator accepts.
//
// Both ISO codes ("fr", "pt-BR", "pt_BR") and English names ("French",
// " brazilian portuguese ") are accepted; matching ignores case and
// surrounding whitespace.
package language

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Auto is the source-language sentinel used when the source is unknown and
// left to the provider to detect.
const Auto = "auto"

// ErrUnsupported is returned for identifiers outside the supported set.
var ErrUnsupported = errors.New("unsupported language")

// Language is a supported language.
type Language struct {
	// Code is the canonical BCP 47 tag, e.g. "fr" or "pt-BR".
	Code string
	// Name is the English display name used in provider prompts.
	Name string
}

// registry holds the supported languages keyed by canonical code.
var registry = map[string]string{
	"af":    "Afrikaans",
	"ar":    "Arabic",
	"bg":    "Bulgarian",
	"bn":    "Bengali",
	"ca":    "Catalan",
	"cs":    "Czech",
	"cy":    "Welsh",
	"da":    "Danish",
	"de":    "German",
	"el":    "Greek",
	"en":    "English",
	"en-GB": "British English",
	"en-US": "American English",
	"es":    "Spanish",
	"es-MX": "Mexican Spanish",
	"et":    "Estonian",
	"fa":    "Persian",
	"fi":    "Finnish",
	"fil":   "Filipino",
	"fr":    "French",
	"fr-CA": "Canadian French",
	"ga":    "Irish",
	"he":    "Hebrew",
	"hi":    "Hindi",
	"hr":    "Croatian",
	"hu":    "Hungarian",
	"hy":    "Armenian",
	"id":    "Indonesian",
	"is":    "Icelandic",
	"it":    "Italian",
	"ja":    "Japanese",
	"ka":    "Georgian",
	"kk":    "Kazakh",
	"ko":    "Korean",
	"lt":    "Lithuanian",
	"lv":    "Latvian",
	"mk":    "Macedonian",
	"ms":    "Malay",
	"nb":    "Norwegian Bokmål",
	"nl":    "Dutch",
	"no":    "Norwegian",
	"pl":    "Polish",
	"pt":    "Portuguese",
	"pt-BR": "Brazilian Portuguese",
	"pt-PT": "European Portuguese",
	"ro":    "Romanian",
	"ru":    "Russian",
	"sk":    "Slovak",
	"sl":    "Slovenian",
	"sq":    "Albanian",
	"sr":    "Serbian",
	"sv":    "Swedish",
	"sw":    "Swahili",
	"ta":    "Tamil",
	"th":    "Thai",
	"tr":    "Turkish",
	"uk":    "Ukrainian",
	"ur":    "Urdu",
	"uz":    "Uzbek",
	"vi":    "Vietnamese",
	"zh":    "Chinese",
	"zh-CN": "Simplified Chinese",
	"zh-TW": "Traditional Chinese",
}

// byName indexes the registry by lower-cased English name.
var byName = func() map[string]string {
	m := make(map[string]string, len(registry))
	for code, name := range registry {
		m[strings.ToLower(name)] = code
	}
	return m
}()

// Lookup resolves a code or English name to a supported Language.
func Lookup(s string) (Language, error) {
	key := strings.TrimSpace(s)
	if key == "" {
		return Language{}, fmt.Errorf("%w: empty language", ErrUnsupported)
	}

	if code, ok := byName[strings.ToLower(key)]; ok {
		return Language{Code: code, Name: registry[code]}, nil
	}

	if code, ok := canonicalCode(key); ok {
		return Language{Code: code, Name: registry[code]}, nil
	}

	return Language{}, fmt.Errorf("%w: %q", ErrUnsupported, s)
}

// Validate is Lookup without the result.
func Validate(s string) error {
	_, err := Lookup(s)
	return err
}

// DisplayName returns the English name for a code or name, falling back to
// the input itself. The Auto sentinel maps to a descriptive phrase.
func DisplayName(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), Auto) {
		return "the detected source language"
	}
	if l, err := Lookup(s); err == nil {
		return l.Name
	}
	return s
}

// Supported returns every supported language sorted by code.
func Supported() []Language {
	out := make([]Language, 0, len(registry))
	for code, name := range registry {
		out = append(out, Language{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// canonicalCode parses a BCP 47-ish code and matches it against the registry,
// trying the full tag first and the base language second.
func canonicalCode(s string) (string, bool) {
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return "", false
	}

	if _, ok := registry[tag.String()]; ok {
		return tag.String(), true
	}

	base, conf := tag.Base()
	if conf == language.No {
		return "", false
	}
	// Regions outside the registry fall back to the base, so "fr-BE" is French.
	if _, ok := registry[base.String()]; ok {
		return base.String(), true
	}
	return "", false
}
