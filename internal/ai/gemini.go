package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// Gemini calls generateContent with the key in the query string.
type Gemini struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func NewGemini(baseURL, apiKey string, hc *http.Client) *Gemini {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Gemini{http: hc, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

func (c *Gemini) Name() string     { return "gemini" }
func (c *Gemini) KeyEnv() string   { return "GOOGLE_GEMINI_API_KEY" }
func (c *Gemini) Configured() bool { return c.apiKey != "" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiResp struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Gemini) Do(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, ErrMissingKey
	}
	contents := make([]geminiContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}

	endpoint := c.baseURL + "/v1beta/models/" + url.PathEscape(req.Model) + ":generateContent?key=" + url.QueryEscape(c.apiKey)
	raw, err := postJSON(ctx, c.http, c.Name(), endpoint, nil, map[string]any{"contents": contents})
	if err != nil {
		return Response{}, err
	}

	var r geminiResp
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, err
	}
	text := ""
	if len(r.Candidates) > 0 && len(r.Candidates[0].Content.Parts) > 0 {
		text = r.Candidates[0].Content.Parts[0].Text
	}
	return Response{Text: text, Raw: raw}, nil
}
