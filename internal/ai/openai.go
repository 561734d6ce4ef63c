package ai

import (
	"context"
	"encoding/json"
	"net/http"
)

// OpenAICompatible speaks the chat-completions dialect shared by OpenAI, DeepSeek and DashScope.
type OpenAICompatible struct {
	http   *http.Client
	name   string
	keyEnv string
	url    string
	apiKey string
}

func NewOpenAICompatible(name, keyEnv, url, apiKey string, hc *http.Client) *OpenAICompatible {
	if hc == nil {
		hc = &http.Client{}
	}
	return &OpenAICompatible{http: hc, name: name, keyEnv: keyEnv, url: url, apiKey: apiKey}
}

func (c *OpenAICompatible) Name() string     { return c.name }
func (c *OpenAICompatible) KeyEnv() string   { return c.keyEnv }
func (c *OpenAICompatible) Configured() bool { return c.apiKey != "" }

type openAIChatReq struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type openAIChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAICompatible) Do(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, ErrMissingKey
	}
	raw, err := postJSON(ctx, c.http, c.name, c.url,
		map[string]string{"Authorization": "Bearer " + c.apiKey},
		openAIChatReq{Model: req.Model, Messages: req.Messages})
	if err != nil {
		return Response{}, err
	}

	var r openAIChatResp
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, err
	}
	text := ""
	if len(r.Choices) > 0 {
		text = r.Choices[0].Message.Content
	}
	return Response{Text: text, Raw: raw}, nil
}
