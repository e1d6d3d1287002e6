package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestUpdateFromHeaders_InvalidHeaders(t *testing.T) {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	// Every case here fails or returns before Redis is touched.
	tracker := NewTracker(nil, "test", logger)

	tests := []struct {
		name         string
		remainHeader string
		resetHeader  string
		shouldError  bool
	}{
		{"missing remain header", "", "1s", false},
		{"both headers missing", "", "", false},
		{"invalid remain header", "many", "1s", true},
		{"invalid reset header", "100", "soon", true},
		{"negative reset header", "100", "-5s", true},
		{"missing reset header", "100", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.remainHeader != "" {
				headers.Set(HeaderRemainingRequests, tt.remainHeader)
			}
			if tt.resetHeader != "" {
				headers.Set(HeaderResetRequests, tt.resetHeader)
			}

			err := tracker.UpdateFromHeaders(context.Background(), headers)
			if tt.shouldError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.shouldError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestParseResetDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"1s", time.Second, false},
		{"6m0s", 6 * time.Minute, false},
		{"20ms", 20 * time.Millisecond, false},
		{"1h2m3s", time.Hour + 2*time.Minute + 3*time.Second, false},
		{"60", 60 * time.Second, false},
		{"0.5", 500 * time.Millisecond, false},
		{" 2s ", 2 * time.Second, false},
		{"later", 0, true},
		{"-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseResetDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseResetDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseResetDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	fallback := 7 * time.Second

	if got := ParseRetryAfter("", fallback); got != fallback {
		t.Errorf("empty header = %v, want fallback", got)
	}
	if got := ParseRetryAfter("3", fallback); got != 3*time.Second {
		t.Errorf("seconds header = %v, want 3s", got)
	}
	if got := ParseRetryAfter("garbage", fallback); got != fallback {
		t.Errorf("malformed header = %v, want fallback", got)
	}

	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	got := ParseRetryAfter(future, fallback)
	if got < 80*time.Second || got > 90*time.Second {
		t.Errorf("date header = %v, want ~90s", got)
	}

	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	if got := ParseRetryAfter(past, fallback); got != 0 {
		t.Errorf("past date header = %v, want 0", got)
	}
}

func TestNewTracker_DefaultScope(t *testing.T) {
	tracker := NewTracker(nil, "", zerolog.Nop())
	if got := tracker.key(keyRequestsRemaining); got != "translator:rate_limit:default:requests_remaining" {
		t.Errorf("key() = %q", got)
	}
}

func TestPause_NonPositiveIsNoop(t *testing.T) {
	tracker := NewTracker(nil, "test", zerolog.Nop())
	if err := tracker.Pause(context.Background(), 0); err != nil {
		t.Errorf("Pause(0) error = %v", err)
	}
}
