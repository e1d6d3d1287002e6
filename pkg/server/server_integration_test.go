//go:build integration

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sternrassler/table-translator/internal/testutil"
	"github.com/Sternrassler/table-translator/pkg/orchestrator"
	"github.com/Sternrassler/table-translator/pkg/provider"
	"github.com/Sternrassler/table-translator/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) (*redis.Client, testcontainers.Container) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() {
		client.Close()
		container.Terminate(ctx)
	})
	return client, container
}

func TestReady_Integration(t *testing.T) {
	client, container := startRedis(t)

	srv, err := New(&recordingTranslator{}, &fileStore{}, client, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /ready = %d with Redis up, want 200", rec.Code)
	}

	if err := container.Stop(context.Background(), nil); err != nil {
		t.Fatalf("stop container: %v", err)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /ready = %d with Redis down, want 503", rec.Code)
	}
}

func TestTranslate_Integration_RateLimitPause(t *testing.T) {
	client, _ := startRedis(t)
	ctx := context.Background()

	mock := testutil.NewMockProvider()
	defer mock.Close()

	tracker := ratelimit.NewTracker(client, "integration", zerolog.Nop())

	cfg := provider.DefaultConfig("sk-test")
	cfg.BaseURL = mock.URL()
	cfg.Retry = provider.NoRetry()
	cfg.Tracker = tracker
	p, err := provider.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	orch, err := orchestrator.New(p, orchestrator.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	srv, err := New(orch, &fileStore{files: map[string]string{
		"https://x.example/a": "en,fr\nhello,\n",
	}}, client, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	body := `{"openaiFileIdRefs":[{"name":"a.csv","download_link":"https://x.example/a"}]}`

	if rec := postTranslate(t, srv, body); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d, body %s", rec.Code, rec.Body.String())
	}

	// Another instance saw a 429 and paused the shared budget.
	if err := tracker.Pause(ctx, 5*time.Second); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	calls := mock.CallCount()
	if rec := postTranslate(t, srv, body); rec.Code != http.StatusInternalServerError {
		t.Fatalf("paused request = %d, want 500", rec.Code)
	}
	if mock.CallCount() != calls {
		t.Error("paused tracker must block calls before they reach the provider")
	}
}
