package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Response headers carrying the provider's request budget.
const (
	HeaderRemainingRequests = "X-Ratelimit-Remaining-Requests"
	HeaderResetRequests     = "X-Ratelimit-Reset-Requests"
	HeaderRetryAfter        = "Retry-After"
)

// Prometheus metrics for rate limit tracking.
var (
	requestsRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "translator_provider_requests_remaining",
		Help: "Requests remaining in the provider's current rate limit window",
	}, []string{"scope"})

	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translator_rate_limit_blocks_total",
		Help: "Total number of provider calls blocked due to an exhausted budget",
	}, []string{"scope"})

	rateLimitThrottlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translator_rate_limit_throttles_total",
		Help: "Total number of provider calls throttled due to a low budget",
	}, []string{"scope"})
)

// Tracker monitors the provider's request budget and gates calls.
type Tracker struct {
	redis         *redis.Client
	scope         string
	logger        zerolog.Logger
	throttleDelay time.Duration
}

// NewTracker creates a new rate limit tracker. scope separates budgets of
// different providers or API keys sharing one Redis.
func NewTracker(redisClient *redis.Client, scope string, logger zerolog.Logger) *Tracker {
	if scope == "" {
		scope = "default"
	}
	return &Tracker{
		redis:         redisClient,
		scope:         scope,
		logger:        logger,
		throttleDelay: 1 * time.Second,
	}
}

// SetThrottleDelay changes the sleep applied in the warning state (for testing).
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

func (t *Tracker) key(suffix string) string {
	return KeyPrefix + ":" + t.scope + ":" + suffix
}

// GetState retrieves the current rate limit state from Redis.
// Returns a default healthy state if no data exists in Redis.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	remaining, err := t.redis.Get(ctx, t.key(keyRequestsRemaining)).Int()
	if err == redis.Nil {
		t.logger.Debug().Str("scope", t.scope).Msg("No rate limit state in Redis, returning default healthy state")
		return &RateLimitState{
			RequestsRemaining: defaultRemainingValue,
			ResetAt:           time.Now().Add(60 * time.Second),
			LastUpdate:        time.Now(),
			IsHealthy:         true,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get requests remaining: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, t.key(keyResetTimestamp)).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, t.key(keyLastUpdate)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &RateLimitState{
		RequestsRemaining: remaining,
		ResetAt:           time.UnixMilli(resetTimestamp),
		LastUpdate:        lastUpdate,
	}
	state.UpdateHealth()

	return state, nil
}

// UpdateFromHeaders parses the provider's rate limit headers and stores the
// resulting state. Responses without the headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemainingRequests)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(strings.TrimSpace(remainStr))
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemainingRequests, err)
	}

	resetStr := headers.Get(HeaderResetRequests)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderResetRequests)
	}

	reset, err := ParseResetDuration(resetStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderResetRequests, err)
	}

	return t.store(ctx, remain, reset)
}

// Pause marks the budget as exhausted for d, typically from a 429 response's
// Retry-After header.
func (t *Tracker) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return t.store(ctx, 0, d)
}

func (t *Tracker) store(ctx context.Context, remain int, reset time.Duration) error {
	now := time.Now()
	state := &RateLimitState{
		RequestsRemaining: remain,
		ResetAt:           now.Add(reset),
		LastUpdate:        now,
	}
	state.UpdateHealth()

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	// Keys expire a little after the reset so a stale budget never outlives
	// its window.
	ttl := reset + 5*time.Second

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, t.key(keyRequestsRemaining), remain, ttl)
	pipe.Set(ctx, t.key(keyResetTimestamp), state.ResetAt.UnixMilli(), ttl)
	pipe.Set(ctx, t.key(keyLastUpdate), lastUpdateJSON, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	requestsRemaining.WithLabelValues(t.scope).Set(float64(remain))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Str("scope", t.scope).
			Int("requests_remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Provider rate limit CRITICAL - calls will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Str("scope", t.scope).
			Int("requests_remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Provider rate limit WARNING - calls will be throttled")
	default:
		t.logger.Debug().
			Str("scope", t.scope).
			Int("requests_remaining", remain).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Provider rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest checks if a call should proceed under the current state.
// Returns false when the budget is exhausted. In the warning state it sleeps
// for the throttle delay before allowing the call.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Warn().
			Str("scope", t.scope).
			Int("requests_remaining", state.RequestsRemaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Provider rate limit exhausted - blocking call")

		rateLimitBlocksTotal.WithLabelValues(t.scope).Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Debug().
			Str("scope", t.scope).
			Int("requests_remaining", state.RequestsRemaining).
			Msg("Provider rate limit low - throttling call")

		rateLimitThrottlesTotal.WithLabelValues(t.scope).Inc()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(t.throttleDelay):
		}
	}

	return true, nil
}

// ParseResetDuration parses a reset header value. OpenAI sends Go-style
// durations ("1s", "6m0s", "20ms"); plain integers are read as seconds.
func ParseResetDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative reset %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative reset %q", s)
	}
	return d, nil
}

// ParseRetryAfter parses a Retry-After header given as seconds or an HTTP
// date. Returns fallback when the header is absent or malformed.
func ParseRetryAfter(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}
