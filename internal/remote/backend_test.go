package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/ebookconv/internal/converr"
	"github.com/local/ebookconv/internal/format"
)

func TestBackend_Convert(t *testing.T) {
	var got ConvertRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/convert", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("converted"))
	}))
	defer srv.Close()

	out, err := NewBackend(srv.URL+"/", nil).Convert(context.Background(), Request{
		Payload: []byte("epub-bytes"), Filename: "b.epub", InputFormat: format.EPUB, OutputFormat: format.AZW3,
	})
	require.NoError(t, err)
	assert.Equal(t, "converted", string(out))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("epub-bytes")), got.FileBase64)
	assert.Equal(t, "b.epub", got.Filename)
	assert.Equal(t, "epub", got.InputFormat)
	assert.Equal(t, "azw3", got.OutputFormat)
}

func TestBackend_ErrorMessageFromJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Conversion failed"})
	}))
	defer srv.Close()

	_, err := NewBackend(srv.URL, nil).Convert(context.Background(), Request{
		Payload: []byte("x"), InputFormat: format.MOBI, OutputFormat: format.EPUB,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, converr.ErrRemoteDelegation))
	assert.Equal(t, "backend: HTTP 502: Conversion failed", err.Error())
	assert.True(t, isTransientError(err))
}

func TestBackend_ErrorWithoutJSONUsesStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewBackend(srv.URL, nil).Convert(context.Background(), Request{
		Payload: []byte("x"), InputFormat: format.EPUB, OutputFormat: format.MOBI,
	})
	require.Error(t, err)
	assert.Equal(t, "backend: HTTP 400: Bad Request", err.Error())
	assert.True(t, isFatalError(err))
}

func TestBackend_EmptyPayloadRejected(t *testing.T) {
	_, err := NewBackend("http://127.0.0.1:1", nil).Convert(context.Background(), Request{InputFormat: format.EPUB, OutputFormat: format.MOBI})
	require.Error(t, err)
	assert.True(t, isFatalError(err))
}
