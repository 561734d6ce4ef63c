package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type AnthropicClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func NewAnthropic(baseURL, apiKey string, hc *http.Client) *AnthropicClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &AnthropicClient{http: hc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

func (c *AnthropicClient) Name() string     { return "anthropic" }
func (c *AnthropicClient) KeyEnv() string   { return "ANTHROPIC_API_KEY" }
func (c *AnthropicClient) Configured() bool { return c.apiKey != "" }

type anthropicMsgReq struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

type anthropicMsgResp struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *AnthropicClient) Do(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, ErrMissingKey
	}
	payload := anthropicMsgReq{Model: req.Model, MaxTokens: 4096}
	var system []string
	for _, m := range req.Messages {
		// system turns go in the top-level field
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		payload.Messages = append(payload.Messages, m)
	}
	payload.System = strings.Join(system, "\n\n")

	raw, err := postJSON(ctx, c.http, c.Name(), c.baseURL+"/v1/messages", map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}, payload)
	if err != nil {
		return Response{}, err
	}

	var r anthropicMsgResp
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, err
	}
	text := ""
	if len(r.Content) > 0 {
		text = r.Content[0].Text
	}
	return Response{Text: text, Raw: raw}, nil
}
