package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// ConvertRequest is the JSON body accepted by a conversion backend's /api/convert.
type ConvertRequest struct {
	FileBase64   string `json:"fileBase64"`
	Filename     string `json:"filename,omitempty"`
	InputFormat  string `json:"inputFormat,omitempty"`
	OutputFormat string `json:"outputFormat"`
}

// Backend posts payloads to another ebookconv server (or any compatible service).
type Backend struct {
	baseURL    string
	httpClient *http.Client
}

// NewBackend creates a backend client for baseURL.
func NewBackend(baseURL string, client *http.Client) *Backend {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Backend{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

func (b *Backend) Name() string { return "backend" }

// Convert sends the payload as base64 JSON and returns the response body on success.
func (b *Backend) Convert(ctx context.Context, req Request) ([]byte, error) {
	if err := validate(b.Name(), req); err != nil {
		return nil, err
	}
	filename := req.Filename
	if filename == "" {
		filename = "input." + req.InputName()
	}
	body, _ := json.Marshal(ConvertRequest{
		FileBase64:   base64.StdEncoding.EncodeToString(req.Payload),
		Filename:     filename,
		InputFormat:  req.InputName(),
		OutputFormat: req.OutputFormat.String(),
	})

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/convert", bytes.NewReader(body))
	if err != nil {
		return nil, fail(b.Name(), 0, "build request", err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(hreq)
	if err != nil {
		return nil, fail(b.Name(), 0, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readFailure(b.Name(), resp)
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(b.Name(), 0, "read response", err)
	}
	return out, nil
}

// Ping checks that the backend answers its health endpoint.
func (b *Backend) Ping(ctx context.Context) error {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Do(hreq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readFailure(b.Name(), resp)
	}
	return nil
}
