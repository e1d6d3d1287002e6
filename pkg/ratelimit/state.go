// Package ratelimit tracks the translation provider's request budget and gates
// calls before it is exhausted.
//
// OpenAI-compatible APIs report the budget in the x-ratelimit-remaining-requests
// and x-ratelimit-reset-requests response headers, and send Retry-After on 429.
// The state lives in Redis so every instance of the service sharing one API key
// sees the same budget.
package ratelimit

import (
	"time"
)

// Redis key suffixes for rate limit state storage. Keys are prefixed with
// KeyPrefix and the tracker scope.
const (
	KeyPrefix             = "translator:rate_limit"
	keyRequestsRemaining  = "requests_remaining"
	keyResetTimestamp     = "reset_timestamp"
	keyLastUpdate         = "last_update"
	defaultRemainingValue = 1000
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks calls when the remaining request
	// budget falls below this value.
	RemainingThresholdCritical = 1

	// RemainingThresholdWarning applies throttling when the remaining budget
	// falls below this value.
	RemainingThresholdWarning = 5

	// RemainingThresholdHealthy indicates normal operation.
	RemainingThresholdHealthy = 20
)

// RateLimitState represents the provider's current request budget.
type RateLimitState struct {
	// RequestsRemaining is the number of calls allowed until ResetAt.
	RequestsRemaining int `json:"requests_remaining"`

	// ResetAt is when the budget refills.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when RequestsRemaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsExpired returns true once the reset time has passed; the budget is then
// assumed to have refilled.
func (s *RateLimitState) IsExpired() bool {
	return !s.ResetAt.IsZero() && time.Now().After(s.ResetAt)
}

// NeedsCriticalBlock returns true if calls should be blocked.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return !s.IsExpired() && s.RequestsRemaining < RemainingThresholdCritical
}

// NeedsThrottling returns true if calls should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return !s.IsExpired() && s.RequestsRemaining < RemainingThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the budget resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current RequestsRemaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.RequestsRemaining >= RemainingThresholdHealthy
}
