package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompatible_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
		var body openAIChatReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "deepseek-chat", body.Model)
		assert.Equal(t, []Message{{Role: "user", Content: "hi"}}, body.Messages)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompatible("deepseek", "DEEPSEEK_API_KEY", srv.URL, "k1", srv.Client())
	resp, err := c.Do(context.Background(), Request{Model: "deepseek-chat", Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.JSONEq(t, `{"choices":[{"message":{"content":"hello"}}]}`, string(resp.Raw))
}

func TestOpenAICompatible_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	_, err := NewOpenAICompatible("openai", "OPENAI_API_KEY", srv.URL, "k", nil).Do(context.Background(), Request{Model: "m"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, "LLM API error: slow down", err.Error())
	assert.True(t, IsRateLimited(err))
}

func TestGemini_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-pro:generateContent", r.URL.Path)
		assert.Equal(t, "gk", r.URL.Query().Get("key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		var body struct {
			Contents []geminiContent `json:"contents"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Contents, 2) {
			assert.Equal(t, "user", body.Contents[0].Role)
			assert.Equal(t, "model", body.Contents[1].Role)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	resp, err := NewGemini(srv.URL, "gk", nil).Do(context.Background(), Request{Model: "gemini-pro", Messages: []Message{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestAnthropic_SystemMessagesLifted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak", r.Header.Get("x-api-key"))
		var body anthropicMsgReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "be brief", body.System)
		assert.Equal(t, []Message{{Role: "user", Content: "q"}}, body.Messages)
		_, _ = w.Write([]byte(`{"content":[{"text":"fine"}]}`))
	}))
	defer srv.Close()

	resp, err := NewAnthropic(srv.URL, "ak", nil).Do(context.Background(), Request{Model: "m", Messages: []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "q"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "fine", resp.Text)
}

func TestRegistry(t *testing.T) {
	r := Default(Keys{OpenAI: "x"}, 0)
	assert.Equal(t, []string{"anthropic", "dashscope", "deepseek", "gemini", "openai"}, r.Names())

	c, ok := r.Get("openai")
	require.True(t, ok)
	assert.True(t, c.Configured())
	c, _ = r.Get("gemini")
	assert.False(t, c.Configured())
	assert.Equal(t, "GOOGLE_GEMINI_API_KEY", c.KeyEnv())

	_, err := c.Do(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.Equal(t, "Unknown provider: foo. Supported: anthropic, dashscope, deepseek, gemini, openai", r.UnknownProviderMessage("foo"))
}
