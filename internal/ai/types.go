package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral chat completion request.
type Request struct {
	Model    string
	Messages []Message
}

// Response carries the extracted text and the provider's raw JSON reply.
type Response struct {
	Text string
	Raw  json.RawMessage
}

// Client is one chat provider.
type Client interface {
	Name() string
	// KeyEnv names the environment variable holding the provider key.
	KeyEnv() string
	Configured() bool
	Do(ctx context.Context, req Request) (Response, error)
}

var (
	ErrRateLimited = errors.New("rate_limited")
	ErrMissingKey  = errors.New("missing api key")
)

// StatusError is a non-2xx provider reply. Body is the raw response text.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string { return "LLM API error: " + e.Body }

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// Keys holds provider credentials.
type Keys struct {
	OpenAI    string
	Gemini    string
	DeepSeek  string
	DashScope string
	Anthropic string
}

// Registry resolves providers by name.
type Registry struct {
	clients map[string]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Name()] = c
	}
	return r
}

// Default registers the built-in providers against their public endpoints.
func Default(keys Keys, timeout time.Duration) *Registry {
	hc := &http.Client{Timeout: timeout}
	return NewRegistry(
		NewOpenAICompatible("openai", "OPENAI_API_KEY", "https://api.openai.com/v1/chat/completions", keys.OpenAI, hc),
		NewGemini("https://generativelanguage.googleapis.com", keys.Gemini, hc),
		NewOpenAICompatible("deepseek", "DEEPSEEK_API_KEY", "https://api.deepseek.com/chat/completions", keys.DeepSeek, hc),
		NewOpenAICompatible("dashscope", "DASHSCOPE_API_KEY", "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions", keys.DashScope, hc),
		NewAnthropic("https://api.anthropic.com", keys.Anthropic, hc),
	)
}

func (r *Registry) Get(name string) (Client, bool) {
	c, ok := r.clients[name]
	return c, ok
}

// Names lists registered providers alphabetically.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.clients))
	for n := range r.clients {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// UnknownProviderMessage is the error text for a provider that is not registered.
func (r *Registry) UnknownProviderMessage(name string) string {
	return fmt.Sprintf("Unknown provider: %s. Supported: %s", name, strings.Join(r.Names(), ", "))
}

// postJSON sends body and returns the raw reply, mapping non-2xx statuses to StatusError.
func postJSON(ctx context.Context, hc *http.Client, provider, url string, headers map[string]string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := readAll(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func readAll(resp *http.Response) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}
	return b, nil
}
