package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/local/ebookconv/internal/remote"
)

type tool struct {
	available bool
	version   string
}

func (t tool) Available() bool { return t.available }

func (t tool) Version(context.Context) (string, error) {
	if t.version == "" {
		return "", errors.New("no version output")
	}
	return t.version, nil
}

func TestSummary_NothingConfigured(t *testing.T) {
	s := New(Options{}).Summary(context.Background())
	assert.False(t, s.Redis.OK)
	assert.Equal(t, "not configured", s.S3.Message)
	assert.Equal(t, "API key missing", s.CloudConvert.Message)
	assert.Equal(t, "Binary not found", s.Calibre.Message)
	assert.False(t, s.LLM.OK)
	assert.False(t, s.CanDelegate())
}

func accountServer(t *testing.T, credits string) *remote.CloudConvert {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/users/me", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"email":"a@b.c","credits":` + credits + `}}`))
	}))
	t.Cleanup(srv.Close)
	return remote.NewCloudConvert(remote.CloudConvertOptions{APIKey: "key", BaseURL: srv.URL, HTTPClient: srv.Client()})
}

func TestSummary_Credits(t *testing.T) {
	cc := accountServer(t, "42")
	s := New(Options{
		CloudConvert: cc,
		Redis:        PingFunc(func(context.Context) error { return nil }),
		S3:           PingFunc(func(context.Context) error { return errors.New(strings.Repeat("x", 200)) }),
		Calibre:      tool{available: true, version: "ebook-convert (calibre 7.6.0)"},
		LLMProviders: []string{"openai"},
	}).Summary(context.Background())

	assert.Equal(t, Status{OK: true, Message: "42 credits"}, s.CloudConvert)
	assert.Equal(t, Status{OK: true, Message: "Connected"}, s.Redis)
	assert.False(t, s.S3.OK)
	assert.Len(t, s.S3.Message, 120)
	assert.Equal(t, Status{OK: true, Message: "Available (ebook-convert (calibre 7.6.0))"}, s.Calibre)
	assert.Equal(t, "1 providers configured", s.LLM.Message)
	assert.True(t, s.CanDelegate())

	s = New(Options{CloudConvert: accountServer(t, "0"), Calibre: tool{available: true}}).Summary(context.Background())
	assert.Equal(t, "No conversion credits left", s.CloudConvert.Message)
	assert.Equal(t, Status{OK: true, Message: "Available"}, s.Calibre)

	s = New(Options{Calibre: tool{}}).Summary(context.Background())
	assert.Equal(t, "Binary not found", s.Calibre.Message)
}

func TestTrimError_Timeout(t *testing.T) {
	assert.Equal(t, "timeout", trimError(context.DeadlineExceeded))
	assert.Equal(t, "", trimError(nil))
}
