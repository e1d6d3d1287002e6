package language

import (
	"errors"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		input    string
		wantCode string
	}{
		{"fr", "fr"},
		{"FR", "fr"},
		{"  french ", "fr"},
		{"French", "fr"},
		{"pt_BR", "pt-BR"},
		{"pt-br", "pt-BR"},
		{"Brazilian Portuguese", "pt-BR"},
		{"fr-BE", "fr"},
		{"es", "es"},
		{"zh-TW", "zh-TW"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Lookup(tt.input)
			if err != nil {
				t.Fatalf("Lookup(%q) error = %v", tt.input, err)
			}
			if got.Code != tt.wantCode {
				t.Errorf("Lookup(%q).Code = %q, want %q", tt.input, got.Code, tt.wantCode)
			}
			if got.Name == "" {
				t.Errorf("Lookup(%q).Name is empty", tt.input)
			}
		})
	}
}

func TestLookup_Unsupported(t *testing.T) {
	for _, input := range []string{"Klingon", "", "   ", "xx", "tlh", "notalanguage"} {
		t.Run(input, func(t *testing.T) {
			_, err := Lookup(input)
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("Lookup(%q) error = %v, want ErrUnsupported", input, err)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("de"); got != "German" {
		t.Errorf("DisplayName(de) = %q, want German", got)
	}
	if got := DisplayName(Auto); got != "the detected source language" {
		t.Errorf("DisplayName(auto) = %q", got)
	}
	if got := DisplayName("Elvish"); got != "Elvish" {
		t.Errorf("DisplayName(Elvish) = %q, want passthrough", got)
	}
}

func TestSupported_Sorted(t *testing.T) {
	langs := Supported()
	if len(langs) == 0 {
		t.Fatal("Supported() returned nothing")
	}
	for i := 1; i < len(langs); i++ {
		if langs[i-1].Code >= langs[i].Code {
			t.Fatalf("Supported() not sorted at %d: %q >= %q", i, langs[i-1].Code, langs[i].Code)
		}
	}
}
