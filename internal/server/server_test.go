package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/ebookconv/internal/ai"
	"github.com/local/ebookconv/internal/converr"
	"github.com/local/ebookconv/internal/format"
	"github.com/local/ebookconv/internal/remote"
	"github.com/local/ebookconv/internal/store"
)

type fakeDelegator struct {
	got remote.Request
	out []byte
	err error
}

func (f *fakeDelegator) Name() string { return "fake" }
func (f *fakeDelegator) Convert(_ context.Context, req remote.Request) ([]byte, error) {
	f.got = req
	return f.out, f.err
}

type fakeAccount struct {
	configured bool
	acc        remote.Account
	err        error
}

func (f fakeAccount) Configured() bool { return f.configured }
func (f fakeAccount) Account(context.Context) (remote.Account, error) {
	return f.acc, f.err
}

func newMux(deps Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	New(deps).RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestConvert_Success(t *testing.T) {
	d := &fakeDelegator{out: []byte("MOBI")}
	mux := newMux(Dependencies{Delegator: d})

	rec := do(t, mux, http.MethodPost, "/api/convert", convertReq{
		FileBase64:   base64.StdEncoding.EncodeToString([]byte("PK..")),
		Filename:     "我的 书.epub",
		OutputFormat: "MOBI",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="%E6%88%91%E7%9A%84%20%E4%B9%A6.mobi"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "MOBI", rec.Body.String())

	assert.Equal(t, format.EPUB, d.got.InputFormat)
	assert.Equal(t, format.MOBI, d.got.OutputFormat)
	assert.Equal(t, []byte("PK.."), d.got.Payload)
}

func TestConvert_HTMLInputUsesLabel(t *testing.T) {
	d := &fakeDelegator{out: []byte("x")}
	rec := do(t, newMux(Dependencies{Delegator: d}), http.MethodPost, "/api/convert", convertReq{
		FileBase64:   base64.StdEncoding.EncodeToString([]byte("<html>")),
		Filename:     "page.html",
		OutputFormat: "epub",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "html", d.got.InputName())
	assert.Equal(t, `attachment; filename="page.epub"`, rec.Header().Get("Content-Disposition"))
}

func TestConvert_Rejections(t *testing.T) {
	d := &fakeDelegator{out: []byte("x")}
	mux := newMux(Dependencies{Delegator: d})
	payload := base64.StdEncoding.EncodeToString([]byte("data"))

	rec := do(t, mux, http.MethodGet, "/api/convert", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))
	assert.Equal(t, "Method not allowed", decode(t, rec)["error"])

	rec = do(t, mux, http.MethodPost, "/api/convert", convertReq{Filename: "a.txt", OutputFormat: "epub"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing fileBase64 in request body", decode(t, rec)["error"])

	rec = do(t, mux, http.MethodPost, "/api/convert", convertReq{FileBase64: payload, OutputFormat: "epub"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unsupported input: input. Allowed: pdf, epub, txt, html, mobi, azw3", decode(t, rec)["error"])

	rec = do(t, mux, http.MethodPost, "/api/convert", convertReq{FileBase64: payload, Filename: "a.txt", OutputFormat: "html"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unsupported output: html. Allowed: pdf, epub, txt, mobi, azw3", decode(t, rec)["error"])

	rec = do(t, newMux(Dependencies{}), http.MethodPost, "/api/convert", convertReq{FileBase64: payload, Filename: "a.txt", OutputFormat: "epub"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestConvert_ProviderFailureIs502(t *testing.T) {
	d := &fakeDelegator{err: &converr.RemoteDelegationError{Provider: "cloudconvert", Message: "INVALID_CONVERSION_TYPE"}}
	rec := do(t, newMux(Dependencies{Delegator: d}), http.MethodPost, "/api/convert", convertReq{
		FileBase64:   base64.StdEncoding.EncodeToString([]byte("x")),
		Filename:     "a.azw3",
		InputFormat:  "azw3",
		OutputFormat: "mobi",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "INVALID_CONVERSION_TYPE", decode(t, rec)["error"])
}

func TestCloudConvertCheck(t *testing.T) {
	rec := do(t, newMux(Dependencies{}), http.MethodGet, "/api/cloudconvert-check", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, decode(t, rec)["ok"])

	credits := 7
	rec = do(t, newMux(Dependencies{CloudConvert: fakeAccount{configured: true, acc: remote.Account{Email: "a@b.c", Credits: &credits}}}),
		http.MethodGet, "/api/cloudconvert-check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "a@b.c", body["email"])
	assert.Equal(t, float64(7), body["credits"])
	assert.Equal(t, "Remaining credits: 7", body["message"])

	rec = do(t, newMux(Dependencies{CloudConvert: fakeAccount{configured: true,
		err: &converr.RemoteDelegationError{Provider: "cloudconvert", StatusCode: http.StatusForbidden, Message: "Forbidden"}}}),
		http.MethodGet, "/api/cloudconvert-check", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "Forbidden", body["error"])
	assert.Contains(t, body["hint"], "user.read")
}

func TestBatchStatus(t *testing.T) {
	st := store.NewMemoryStatus()
	require.NoError(t, st.Set(context.Background(), "b1", store.FileStatus{Name: "a.txt", Status: store.Success, Output: "a.epub"}))
	mux := newMux(Dependencies{Status: st})

	rec := do(t, mux, http.MethodGet, "/api/status/b1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"output":"a.epub"`)

	rec = do(t, mux, http.MethodGet, "/api/status/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFormats(t *testing.T) {
	rec := do(t, newMux(Dependencies{}), http.MethodGet, "/api/formats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Formats     []formatInfo     `json:"formats"`
		Conversions []conversionInfo `json:"conversions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Formats, 5)
	for _, c := range body.Conversions {
		assert.NotEqual(t, "pdf", c.Target)
		assert.NotEqual(t, c.Source, c.Target)
	}
	assert.Contains(t, body.Conversions, conversionInfo{Source: "txt", Target: "mobi", Path: "two_hop_delegated",
		Stages: []string{"local txt->epub", "remote epub->mobi"}})
}

func TestHealthWithoutChecker(t *testing.T) {
	rec := do(t, newMux(Dependencies{}), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestLLMProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Authorization"), "bad") {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("invalid key"))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"pong"}}]}`))
	}))
	defer upstream.Close()

	reg := ai.NewRegistry(
		ai.NewOpenAICompatible("openai", "OPENAI_API_KEY", upstream.URL, "good", nil),
		ai.NewOpenAICompatible("deepseek", "DEEPSEEK_API_KEY", upstream.URL, "bad", nil),
		ai.NewGemini(upstream.URL, "", nil),
	)
	mux := newMux(Dependencies{LLM: reg})
	msgs := []ai.Message{{Role: "user", Content: "ping"}}

	rec := do(t, mux, http.MethodPost, "/api/llm", llmReq{Provider: "openai", Model: "m", Messages: msgs})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "pong", body["text"])
	assert.NotNil(t, body["raw"])

	rec = do(t, mux, http.MethodPost, "/api/llm", llmReq{Provider: "deepseek", Model: "m", Messages: msgs})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "LLM API error: invalid key", decode(t, rec)["error"])

	rec = do(t, mux, http.MethodPost, "/api/llm", llmReq{Provider: "gemini", Model: "m", Messages: msgs})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "GOOGLE_GEMINI_API_KEY not configured", decode(t, rec)["error"])

	rec = do(t, mux, http.MethodPost, "/api/llm", llmReq{Provider: "x", Model: "m", Messages: msgs})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown provider: x. Supported: deepseek, gemini, openai", decode(t, rec)["error"])

	rec = do(t, mux, http.MethodPost, "/api/llm", llmReq{Provider: "openai"})
	assert.Equal(t, "Missing provider, model, or messages", decode(t, rec)["error"])

	rec = do(t, mux, http.MethodGet, "/api/llm", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
