package provider

import (
	"errors"
	"testing"
)

func TestParseTranslations(t *testing.T) {
	texts := []string{"Hello", "World", "Bye"}

	tests := []struct {
		name    string
		content string
		want    []string
		wantErr bool
	}{
		{
			name:    "wrapped with ids",
			content: `{"translations":[{"id":0,"translated_text":"Hola"},{"id":1,"translated_text":"Mundo"},{"id":2,"translated_text":"Adiós"}]}`,
			want:    []string{"Hola", "Mundo", "Adiós"},
		},
		{
			name:    "ids out of order",
			content: `{"translations":[{"id":2,"translated_text":"Adiós"},{"id":0,"translated_text":"Hola"},{"id":1,"translated_text":"Mundo"}]}`,
			want:    []string{"Hola", "Mundo", "Adiós"},
		},
		{
			name:    "missing id leaves text unresolved",
			content: `{"translations":[{"id":0,"translated_text":"Hola"},{"id":2,"translated_text":"Adiós"}]}`,
			want:    []string{"Hola", "", "Adiós"},
		},
		{
			name:    "unknown and duplicate ids ignored",
			content: `{"translations":[{"id":0,"translated_text":"Hola"},{"id":0,"translated_text":"Buenas"},{"id":9,"translated_text":"?"}]}`,
			want:    []string{"Hola", "", ""},
		},
		{
			name:    "bare array without ids",
			content: `[{"translated_text":"Hola"},{"translated_text":"Mundo"},{"translated_text":"Adiós"}]`,
			want:    []string{"Hola", "Mundo", "Adiós"},
		},
		{
			name:    "array of strings",
			content: `["Hola","Mundo","Adiós"]`,
			want:    []string{"Hola", "Mundo", "Adiós"},
		},
		{
			name:    "code fenced",
			content: "```json\n{\"translations\":[\"Hola\",\"Mundo\",\"Adiós\"]}\n```",
			want:    []string{"Hola", "Mundo", "Adiós"},
		},
		{
			name:    "count mismatch without ids",
			content: `["Hola","Mundo"]`,
			wantErr: true,
		},
		{
			name:    "no id matches",
			content: `{"translations":[{"id":7,"translated_text":"Hola"}]}`,
			wantErr: true,
		},
		{
			name:    "prose",
			content: `Sure! Here are your translations.`,
			wantErr: true,
		},
		{
			name:    "object without translations",
			content: `{"result":[]}`,
			wantErr: true,
		},
		{
			name:    "truncated json",
			content: `{"translations":[{"id":0,`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTranslations(tt.content, texts)
			if tt.wantErr {
				if !errors.Is(err, ErrResultMismatch) {
					t.Fatalf("expected ErrResultMismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(texts) {
				t.Fatalf("got %d results, want %d", len(got), len(texts))
			}
			for i := range texts {
				if got[i].OriginalText != texts[i] {
					t.Errorf("result %d OriginalText = %q, want %q", i, got[i].OriginalText, texts[i])
				}
				if got[i].TranslatedText != tt.want[i] {
					t.Errorf("result %d TranslatedText = %q, want %q", i, got[i].TranslatedText, tt.want[i])
				}
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```\n[1]\n```", "[1]"},
		{"```json\n[1]\n```", "[1]"},
		{"  ```json [1]```  ", "[1]"},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
