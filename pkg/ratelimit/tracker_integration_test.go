//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_GetState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, "openai", logger)
	ctx := context.Background()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.RequestsRemaining != defaultRemainingValue {
		t.Errorf("Default RequestsRemaining = %d, want %d", state.RequestsRemaining, defaultRemainingValue)
	}
	if !state.IsHealthy {
		t.Error("Default state should be healthy")
	}

	headers := http.Header{}
	headers.Set(HeaderRemainingRequests, "75")
	headers.Set(HeaderResetRequests, "2m0s")

	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err = tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() after update error = %v", err)
	}
	if state.RequestsRemaining != 75 {
		t.Errorf("RequestsRemaining = %d, want 75", state.RequestsRemaining)
	}
	if !state.IsHealthy {
		t.Error("State with 75 remaining should be healthy")
	}

	want := 2 * time.Minute
	got := state.TimeUntilReset()
	if got < want-5*time.Second || got > want+5*time.Second {
		t.Errorf("TimeUntilReset = %v, want approximately %v", got, want)
	}
}

func TestTracker_Integration_ShouldAllowRequest(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, "openai", logger)
	tracker.SetThrottleDelay(10 * time.Millisecond)
	ctx := context.Background()

	tests := []struct {
		name      string
		remaining string
		wantAllow bool
	}{
		{"healthy", "500", true},
		{"throttled", "3", true},
		{"exhausted", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			headers.Set(HeaderRemainingRequests, tt.remaining)
			headers.Set(HeaderResetRequests, "30s")
			if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			allowed, err := tracker.ShouldAllowRequest(ctx)
			if err != nil {
				t.Fatalf("ShouldAllowRequest() error = %v", err)
			}
			if allowed != tt.wantAllow {
				t.Errorf("ShouldAllowRequest() = %v, want %v", allowed, tt.wantAllow)
			}
		})
	}
}

func TestTracker_Integration_PauseExpires(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := NewTracker(redisClient, "openai", zerolog.Nop())
	ctx := context.Background()

	if err := tracker.Pause(ctx, 1*time.Second); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("call should be blocked while paused")
	}

	time.Sleep(1200 * time.Millisecond)

	allowed, err = tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("call should be allowed once the pause has passed")
	}
}

func TestTracker_Integration_ScopesAreIsolated(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	a := NewTracker(redisClient, "key-a", zerolog.Nop())
	b := NewTracker(redisClient, "key-b", zerolog.Nop())

	if err := a.Pause(ctx, time.Minute); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	state, err := b.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.RequestsRemaining != defaultRemainingValue {
		t.Errorf("scope b RequestsRemaining = %d, want default", state.RequestsRemaining)
	}
}
