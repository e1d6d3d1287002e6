package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/table-translator/pkg/language"
	"github.com/Sternrassler/table-translator/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for provider calls.
var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translator_provider_requests_total",
		Help: "Total provider calls by model and status",
	}, []string{"model", "status"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "translator_provider_request_duration_seconds",
		Help:    "Provider call duration in seconds by model",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"model"})

	providerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translator_provider_errors_total",
		Help: "Total provider errors by class",
	}, []string{"class"})

	providerTextsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "translator_provider_texts_total",
		Help: "Texts sent to the provider by outcome",
	}, []string{"outcome"})
)

const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the chat model used for translation.
	DefaultModel = "gpt-4o-mini"

	maxErrorBody = 4 << 10
)

// Config holds the OpenAI provider configuration.
type Config struct {
	// BaseURL of an OpenAI-compatible API, without the /chat/completions suffix.
	BaseURL string

	// APIKey is sent as a bearer token (REQUIRED).
	APIKey string

	// Model name, e.g. "gpt-4o-mini".
	Model string

	// Timeout bounds a single HTTP call, not the whole retry sequence.
	Timeout time.Duration

	// RequestsPerSecond paces outgoing calls across all batches. 0 disables pacing.
	RequestsPerSecond float64

	// Retry policy applied per batch.
	Retry RetryConfig

	// Tracker gates calls on the shared rate limit budget. Optional.
	Tracker *ratelimit.Tracker
}

// DefaultConfig returns a configuration with safe defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		APIKey:            apiKey,
		Model:             DefaultModel,
		Timeout:           60 * time.Second,
		RequestsPerSecond: 0,
		Retry:             DefaultRetryConfig(),
	}
}

// OpenAI translates batches through the chat completions endpoint.
type OpenAI struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	tracker    *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// New creates a new OpenAI provider.
func New(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &OpenAI{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		tracker:    cfg.Tracker,
		config:     cfg,
		logger:     log.With().Str("component", "provider").Str("model", cfg.Model).Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (p *OpenAI) SetHTTPClient(client *http.Client) {
	p.httpClient = client
}

// Model returns the configured model name.
func (p *OpenAI) Model() string {
	return p.config.Model
}

// Translate translates req.Texts, retrying retryable failures according to the
// configured policy. The returned slice is aligned with req.Texts.
func (p *OpenAI) Translate(ctx context.Context, req Request) ([]Result, error) {
	if len(req.Texts) == 0 {
		return nil, nil
	}

	logger := p.logger.With().
		Str("source_lang", req.SourceLang).
		Str("target_lang", req.TargetLang).
		Int("texts", len(req.Texts)).
		Logger()

	var results []Result
	err := retryWithBackoff(ctx, p.config.Retry, logger, func() error {
		var callErr error
		results, callErr = p.call(ctx, req, logger)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	var resolved int
	for _, r := range results {
		if r.TranslatedText != "" {
			resolved++
		}
	}
	providerTextsTotal.WithLabelValues("translated").Add(float64(resolved))
	providerTextsTotal.WithLabelValues("unresolved").Add(float64(len(results) - resolved))

	return results, nil
}

// call performs a single chat completions round trip.
func (p *OpenAI) call(ctx context.Context, req Request, logger zerolog.Logger) ([]Result, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	if p.tracker != nil {
		allowed, err := p.tracker.ShouldAllowRequest(ctx)
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case err != nil:
			// A Redis outage must not stop translation.
			logger.Warn().Err(err).Msg("Rate limit check failed, proceeding")
		case !allowed:
			providerRequestsTotal.WithLabelValues(p.config.Model, "rate_limited").Inc()
			providerErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, &ProviderError{
				StatusCode: http.StatusTooManyRequests,
				ErrorClass: ErrorClassRateLimit,
				Message:    "call blocked by rate limit tracker",
				Err:        ErrRateLimited,
			}
		}
	}

	body, err := json.Marshal(buildChatRequest(p.config.Model, req))
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	providerRequestDuration.WithLabelValues(p.config.Model).Observe(time.Since(startTime).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		providerRequestsTotal.WithLabelValues(p.config.Model, "network_error").Inc()
		providerErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		logger.Warn().Err(err).Msg("Provider request failed")
		return nil, &ProviderError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	providerRequestsTotal.WithLabelValues(p.config.Model, strconv.Itoa(resp.StatusCode)).Inc()

	if p.tracker != nil {
		if err := p.tracker.UpdateFromHeaders(ctx, resp.Header); err != nil {
			logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if resp.StatusCode >= 400 {
		errClass := classifyStatus(resp.StatusCode)
		providerErrorsTotal.WithLabelValues(string(errClass)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests && p.tracker != nil {
			wait := ratelimit.ParseRetryAfter(resp.Header.Get(ratelimit.HeaderRetryAfter), 0)
			if err := p.tracker.Pause(ctx, wait); err != nil {
				logger.Warn().Err(err).Msg("Failed to record Retry-After")
			}
		}

		msg := readErrorMessage(resp.Body)
		logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Str("message", msg).
			Msg("Provider request error")

		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    msg,
		}
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		providerErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode chat response",
			Err:        err,
		}
	}
	if len(chatResp.Choices) == 0 {
		providerErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "response has no choices",
			Err:        ErrResultMismatch,
		}
	}

	results, err := ParseTranslations(chatResp.Choices[0].Message.Content, req.Texts)
	if err != nil {
		providerErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		logger.Warn().Err(err).Msg("Could not match model output to input texts")
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "parse model output",
			Err:        err,
		}
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("Provider call succeeded")

	return results, nil
}

// classifyStatus maps an HTTP status to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusRequestTimeout:
		return ErrorClassNetwork
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// readErrorMessage extracts the message of an OpenAI error body, falling back
// to the raw (truncated) body.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return "empty error body"
	}
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// promptItem is one text as presented to the model. The id carries the
// text's position so answers can be matched back regardless of order.
type promptItem struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type promptPayload struct {
	SourceLanguage string       `json:"source_language"`
	TargetLanguage string       `json:"target_language"`
	Items          []promptItem `json:"items"`
}

const systemPrompt = `You are a translation engine. Translate the "text" of every item into %s%s.
Reply with a JSON object of the form {"translations":[{"id":<item id>,"translated_text":"<translation>"}]} containing exactly one entry per item.
Keep placeholders, numbers, markup and surrounding whitespace as they are. Do not add commentary.`

func buildChatRequest(model string, req Request) chatRequest {
	items := make([]promptItem, len(req.Texts))
	for i, text := range req.Texts {
		items[i] = promptItem{ID: i, Text: text}
	}

	from := " from " + language.DisplayName(req.SourceLang)
	if req.SourceLang == language.Auto || req.SourceLang == "" {
		from = ", detecting the source language of each item"
	}

	// Marshal of strings and ints cannot fail.
	payload, _ := json.Marshal(promptPayload{
		SourceLanguage: req.SourceLang,
		TargetLanguage: req.TargetLang,
		Items:          items,
	})

	return chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, language.DisplayName(req.TargetLang), from)},
			{Role: "user", Content: string(payload)},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
		Temperature:    0,
	}
}

