// Package testutil provides testing utilities for the table translator.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockItem is one text of a recorded provider call.
type MockItem struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// MockCall is a recorded chat completions call.
type MockCall struct {
	Model          string
	SourceLanguage string
	TargetLanguage string
	Items          []MockItem
	Header         http.Header
}

// MockFailure is a scripted error response.
type MockFailure struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockProvider is a configurable fake of an OpenAI-compatible chat
// completions endpoint. By default it "translates" each text to
// "<target>:<text>".
type MockProvider struct {
	server *httptest.Server
	mu     sync.Mutex

	translate func(text, source, target string) string
	failNext  []MockFailure
	failWhen  func(call MockCall) *MockFailure
	drop      map[string]bool
	headers   map[string]string
	delay     time.Duration
	raw       string

	calls       []MockCall
	inFlight    int
	maxInFlight int
}

// NewMockProvider starts a new mock provider server.
func NewMockProvider() *MockProvider {
	m := &MockProvider{
		translate: func(text, _, target string) string {
			return target + ":" + text
		},
		drop:    make(map[string]bool),
		headers: make(map[string]string),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the base URL to configure the provider with.
func (m *MockProvider) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockProvider) Close() {
	m.server.Close()
}

// SetTranslateFunc replaces the translation function.
func (m *MockProvider) SetTranslateFunc(fn func(text, source, target string) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.translate = fn
}

// SetDelay makes every call sleep before answering.
func (m *MockProvider) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetHeader adds a header to every successful response.
func (m *MockProvider) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// SetRawContent makes the model answer with content verbatim.
func (m *MockProvider) SetRawContent(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = content
}

// FailNext queues error responses returned by the next calls, in order.
func (m *MockProvider) FailNext(failures ...MockFailure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, failures...)
}

// FailWhen installs a predicate consulted on every call; a non-nil failure is
// returned instead of translating.
func (m *MockProvider) FailWhen(fn func(call MockCall) *MockFailure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWhen = fn
}

// Drop omits text from answers, leaving it unresolved.
func (m *MockProvider) Drop(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drop[text] = true
}

// Calls returns a copy of the recorded calls.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls received.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MaxInFlight returns the highest number of concurrently served calls.
func (m *MockProvider) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

func (m *MockProvider) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}

	call, err := decodeCall(r)
	if err != nil {
		writeFailure(w, MockFailure{
			StatusCode: http.StatusBadRequest,
			Body:       fmt.Sprintf(`{"error":{"message":%q}}`, err.Error()),
		})
		return
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.delay
	var failure *MockFailure
	if len(m.failNext) > 0 {
		f := m.failNext[0]
		m.failNext = m.failNext[1:]
		failure = &f
	} else if m.failWhen != nil {
		failure = m.failWhen(call)
	}
	translate := m.translate
	raw := m.raw
	headers := make(map[string]string, len(m.headers))
	for k, v := range m.headers {
		headers[k] = v
	}
	drop := make(map[string]bool, len(m.drop))
	for k, v := range m.drop {
		drop[k] = v
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	if failure != nil {
		writeFailure(w, *failure)
		return
	}

	content := raw
	if content == "" {
		type entry struct {
			ID             int    `json:"id"`
			TranslatedText string `json:"translated_text"`
		}
		entries := make([]entry, 0, len(call.Items))
		for _, item := range call.Items {
			if drop[item.Text] {
				continue
			}
			entries = append(entries, entry{
				ID:             item.ID,
				TranslatedText: translate(item.Text, call.SourceLanguage, call.TargetLanguage),
			})
		}
		b, _ := json.Marshal(map[string]any{"translations": entries})
		content = string(b)
	}

	resp := map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion",
		"model":  call.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]string{
				"role":    "assistant",
				"content": content,
			},
		}},
	}

	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func decodeCall(r *http.Request) (MockCall, error) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return MockCall{}, fmt.Errorf("decode request: %w", err)
	}

	call := MockCall{Model: req.Model, Header: r.Header.Clone()}
	for _, msg := range req.Messages {
		if msg.Role != "user" {
			continue
		}
		var payload struct {
			SourceLanguage string     `json:"source_language"`
			TargetLanguage string     `json:"target_language"`
			Items          []MockItem `json:"items"`
		}
		if err := json.Unmarshal([]byte(msg.Content), &payload); err != nil {
			return MockCall{}, fmt.Errorf("decode user message: %w", err)
		}
		call.SourceLanguage = payload.SourceLanguage
		call.TargetLanguage = payload.TargetLanguage
		call.Items = payload.Items
	}
	return call, nil
}

func writeFailure(w http.ResponseWriter, f MockFailure) {
	for k, v := range f.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.StatusCode)
	if f.Body != "" {
		w.Write([]byte(f.Body))
	}
}

// NewServerError creates a 500 response.
func NewServerError() MockFailure {
	return MockFailure{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":{"message":"The server had an error while processing your request.","type":"server_error"}}`,
	}
}

// NewRateLimitError creates a 429 response with a Retry-After header.
func NewRateLimitError(retryAfter string) MockFailure {
	return MockFailure{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":{"message":"Rate limit reached for requests","type":"requests"}}`,
		Headers: map[string]string{
			"Retry-After":                    retryAfter,
			"X-Ratelimit-Remaining-Requests": "0",
			"X-Ratelimit-Reset-Requests":     retryAfter + "s",
		},
	}
}

// NewAuthError creates a 401 response.
func NewAuthError() MockFailure {
	return MockFailure{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error":{"message":"Incorrect API key provided.","type":"invalid_request_error"}}`,
	}
}
