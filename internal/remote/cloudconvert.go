package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultCloudConvertURL = "https://api.cloudconvert.com"

// CloudConvert runs an upload → convert → export job against the CloudConvert v2 API.
type CloudConvert struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// CloudConvertOptions configures the client.
type CloudConvertOptions struct {
	APIKey       string
	BaseURL      string
	HTTPClient   *http.Client
	PollInterval time.Duration
}

// NewCloudConvert creates a client. BaseURL defaults to the public API.
func NewCloudConvert(opts CloudConvertOptions) *CloudConvert {
	c := &CloudConvert{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		httpClient:   opts.HTTPClient,
		pollInterval: opts.PollInterval,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultCloudConvertURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}
	return c
}

func (c *CloudConvert) Name() string { return "cloudconvert" }

// Configured reports whether an API key is present.
func (c *CloudConvert) Configured() bool { return c.apiKey != "" }

type ccTask struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Result    struct {
		Form struct {
			URL        string            `json:"url"`
			Parameters map[string]string `json:"parameters"`
		} `json:"form"`
		Files []struct {
			Filename string `json:"filename"`
			URL      string `json:"url"`
		} `json:"files"`
	} `json:"result"`
}

type ccJob struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Tasks  []ccTask `json:"tasks"`
}

func (j ccJob) task(name string) *ccTask {
	for i := range j.Tasks {
		if j.Tasks[i].Name == name {
			return &j.Tasks[i]
		}
	}
	return nil
}

func (j ccJob) failedTask() *ccTask {
	for i := range j.Tasks {
		if j.Tasks[i].Status == "error" {
			return &j.Tasks[i]
		}
	}
	return nil
}

// Convert submits the payload and blocks until the job reaches a terminal state.
func (c *CloudConvert) Convert(ctx context.Context, req Request) ([]byte, error) {
	if !c.Configured() {
		return nil, fail(c.Name(), 0, "CLOUDCONVERT_API_KEY not configured", nil)
	}
	if err := validate(c.Name(), req); err != nil {
		return nil, err
	}
	start := time.Now()

	job, err := c.createJob(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("job_id", job.ID).Str("input", req.InputName()).Str("output", req.OutputFormat.String()).Msg("cloudconvert job created")

	upload := job.task("upload")
	if upload == nil || upload.Result.Form.URL == "" {
		return nil, fail(c.Name(), 0, "upload task has no form", nil)
	}
	filename := req.Filename
	if filename == "" {
		filename = "input." + req.InputName()
	}
	if err := c.upload(ctx, upload, filename, req.Payload); err != nil {
		return nil, err
	}

	job, err = c.wait(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if job.Status != "finished" {
		msg := "Conversion failed"
		if t := job.failedTask(); t != nil && t.Message != "" {
			msg = t.Message
		}
		return nil, fail(c.Name(), 0, msg, nil)
	}

	export := job.task("export")
	if export == nil || len(export.Result.Files) == 0 || export.Result.Files[0].URL == "" {
		return nil, fail(c.Name(), 0, "No output file URL from CloudConvert", nil)
	}
	out, err := c.download(ctx, export.Result.Files[0].URL)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("job_id", job.ID).
		Int("bytes", len(out)).
		Dur("duration", time.Since(start)).
		Msg("cloudconvert job finished")
	return out, nil
}

func (c *CloudConvert) createJob(ctx context.Context, req Request) (ccJob, error) {
	body := map[string]any{
		"tasks": map[string]any{
			"upload": map[string]any{"operation": "import/upload"},
			"convert": map[string]any{
				"operation":     "convert",
				"input":         "upload",
				"input_format":  req.InputName(),
				"output_format": req.OutputFormat.String(),
				"filename":      req.OutputFilename(),
			},
			"export": map[string]any{"operation": "export/url", "input": "convert"},
		},
	}
	b, _ := json.Marshal(body)
	var job ccJob
	err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v2/jobs", bytes.NewReader(b), &job)
	return job, err
}

func (c *CloudConvert) upload(ctx context.Context, task *ccTask, filename string, payload []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range task.Result.Form.Parameters {
		if err := mw.WriteField(k, v); err != nil {
			return fail(c.Name(), 0, "build upload form", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fail(c.Name(), 0, "build upload form", err)
	}
	if _, err := fw.Write(payload); err != nil {
		return fail(c.Name(), 0, "build upload form", err)
	}
	if err := mw.Close(); err != nil {
		return fail(c.Name(), 0, "build upload form", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, task.Result.Form.URL, &buf)
	if err != nil {
		return fail(c.Name(), 0, "build upload request", err)
	}
	hreq.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		return fail(c.Name(), 0, "upload failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readFailure(c.Name(), resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *CloudConvert) wait(ctx context.Context, jobID string) (ccJob, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		var job ccJob
		if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v2/jobs/"+jobID, nil, &job); err != nil {
			return ccJob{}, err
		}
		switch job.Status {
		case "finished", "error":
			return job, nil
		}
		select {
		case <-ctx.Done():
			return ccJob{}, fail(c.Name(), 0, "waiting for job "+jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *CloudConvert) download(ctx context.Context, url string) ([]byte, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fail(c.Name(), 0, "Failed to download converted file", err)
	}
	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		return nil, fail(c.Name(), 0, "Failed to download converted file", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fail(c.Name(), resp.StatusCode, "Failed to download converted file", nil)
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(c.Name(), 0, "Failed to download converted file", err)
	}
	return out, nil
}

// Account is the subset of /v2/users/me used for credit checks.
type Account struct {
	Email   string `json:"email"`
	Credits *int   `json:"credits"`
}

// Account returns the key owner's email and remaining credits.
func (c *CloudConvert) Account(ctx context.Context) (Account, error) {
	if !c.Configured() {
		return Account{}, fail(c.Name(), 0, "CLOUDCONVERT_API_KEY not configured", nil)
	}
	var acc Account
	err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v2/users/me", nil, &acc)
	return acc, err
}

// doJSON sends an authorized request and decodes the {"data": ...} envelope into out.
func (c *CloudConvert) doJSON(ctx context.Context, method, url string, body io.Reader, out any) error {
	hreq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fail(c.Name(), 0, "build request", err)
	}
	hreq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		return fail(c.Name(), 0, fmt.Sprintf("%s %s", method, url), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readFailure(c.Name(), resp)
	}
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fail(c.Name(), 0, "decode response", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fail(c.Name(), 0, "decode response", err)
	}
	return nil
}
