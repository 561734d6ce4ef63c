// Package server exposes the delegation endpoint and operational routes over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/ebookconv/internal/ai"
	"github.com/local/ebookconv/internal/converr"
	"github.com/local/ebookconv/internal/format"
	"github.com/local/ebookconv/internal/health"
	mpkg "github.com/local/ebookconv/internal/metrics"
	"github.com/local/ebookconv/internal/remote"
	"github.com/local/ebookconv/internal/router"
	"github.com/local/ebookconv/internal/store"
)

var (
	allowedInput  = []string{"pdf", "epub", "txt", "html", "mobi", "azw3"}
	allowedOutput = []string{"pdf", "epub", "txt", "mobi", "azw3"}

	lastExt = regexp.MustCompile(`\.[^.]+$`)
)

// Account is the CloudConvert capability behind the key check.
type Account interface {
	Configured() bool
	Account(ctx context.Context) (remote.Account, error)
}

// Dependencies wires the server. Nil members disable the routes that need them.
type Dependencies struct {
	Delegator      remote.Delegator // provider chain behind /api/convert
	CloudConvert   Account
	Status         store.StatusStore
	Health         *health.Checker
	LLM            *ai.Registry
	MaxUploadBytes int64
}

type Server struct {
	deps Dependencies
}

func New(deps Dependencies) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 100 << 20
	}
	return &Server{deps: deps}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("GET /metrics", mpkg.Handler())
	mux.HandleFunc("GET /api/formats", s.handleFormats)
	mux.HandleFunc("/api/convert", s.handleConvert)
	mux.HandleFunc("/api/cloudconvert-check", s.handleCloudConvertCheck)
	mux.HandleFunc("GET /api/status/{batchID}", s.handleBatchStatus)
	mux.HandleFunc("/api/llm", s.handleLLM)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", http.MethodPost)
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Health.Summary(r.Context()))
}

type formatInfo struct {
	Name       string `json:"name"`
	Reader     bool   `json:"reader"`
	Writer     bool   `json:"writer"`
	Delegation bool   `json:"delegation"`
}

type conversionInfo struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Path   string   `json:"path"`
	Stages []string `json:"stages"`
}

func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	var formats []formatInfo
	var conversions []conversionInfo
	for _, src := range format.All() {
		formats = append(formats, formatInfo{
			Name:       src.String(),
			Reader:     src.HasReader(),
			Writer:     src.HasWriter(),
			Delegation: src.NeedsDelegation(),
		})
		for _, tgt := range format.All() {
			plan, err := router.SelectPath(src, tgt)
			if err != nil {
				continue
			}
			ci := conversionInfo{Source: src.String(), Target: tgt.String(), Path: plan.Path.String()}
			for _, st := range plan.Stages {
				ci.Stages = append(ci.Stages, st.String())
			}
			conversions = append(conversions, ci)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"formats": formats, "conversions": conversions})
}

type convertReq struct {
	FileBase64   string `json:"fileBase64"`
	Filename     string `json:"filename"`
	InputFormat  string `json:"inputFormat"`
	OutputFormat string `json:"outputFormat"`
}

// handleConvert is the delegation endpoint: payload in, converted bytes out.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.deps.Delegator == nil {
		writeError(w, http.StatusServiceUnavailable, "CLOUDCONVERT_API_KEY not configured")
		return
	}

	defer r.Body.Close()
	var req convertReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Filename == "" {
		req.Filename = "input"
	}
	if req.FileBase64 == "" {
		writeError(w, http.StatusBadRequest, "Missing fileBase64 in request body")
		return
	}

	inputLabel := req.InputFormat
	if inputLabel == "" {
		parts := strings.Split(req.Filename, ".")
		inputLabel = parts[len(parts)-1]
	}
	inputLabel = strings.ToLower(inputLabel)
	outputLabel := strings.ToLower(req.OutputFormat)
	if !slices.Contains(allowedInput, inputLabel) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported input: %s. Allowed: %s", inputLabel, strings.Join(allowedInput, ", ")))
		return
	}
	if !slices.Contains(allowedOutput, outputLabel) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported output: %s. Allowed: %s", outputLabel, strings.Join(allowedOutput, ", ")))
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.FileBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "fileBase64 is not valid base64")
		return
	}

	dreq := remote.Request{Payload: payload, Filename: req.Filename}
	dreq.OutputFormat, _ = format.Parse(outputLabel)
	if in, err := format.Parse(inputLabel); err == nil {
		dreq.InputFormat = in
	} else {
		dreq.InputLabel = inputLabel
	}
	outFilename := lastExt.ReplaceAllString(req.Filename, "") + "." + outputLabel

	start := time.Now()
	out, err := s.deps.Delegator.Convert(r.Context(), dreq)
	if err != nil {
		log.Warn().Err(err).Str("file", req.Filename).Str("source", inputLabel).Str("target", outputLabel).Msg("delegated conversion failed")
		status := http.StatusInternalServerError
		if errors.Is(err, converr.ErrRemoteDelegation) {
			status = http.StatusBadGateway
		}
		writeError(w, status, remoteMessage(err))
		return
	}
	log.Info().Str("file", req.Filename).Str("output", outFilename).Int("bytes", len(out)).Dur("duration", time.Since(start)).Msg("delegated conversion finished")

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, encodeURIComponent(outFilename)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// remoteMessage returns the provider's own message when there is one.
func remoteMessage(err error) string {
	var rd *converr.RemoteDelegationError
	if errors.As(err, &rd) && rd.Message != "" {
		return rd.Message
	}
	return err.Error()
}

func (s *Server) handleCloudConvertCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.CloudConvert == nil || !s.deps.CloudConvert.Configured() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":    false,
			"error": "CLOUDCONVERT_API_KEY not configured",
			"hint":  "Set CLOUDCONVERT_API_KEY in the server environment.",
		})
		return
	}

	acc, err := s.deps.CloudConvert.Account(r.Context())
	if err != nil {
		var rd *converr.RemoteDelegationError
		if errors.As(err, &rd) && rd.StatusCode > 0 {
			hint := "Check that the key is valid and has not expired."
			if rd.StatusCode == http.StatusForbidden {
				hint = "The key may lack the user.read scope or be invalid. Keys with only task.read/task.write cannot read credits but can still convert."
			}
			writeJSON(w, rd.StatusCode, map[string]any{"ok": false, "error": rd.Message, "hint": hint})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": remoteMessage(err)})
		return
	}

	msg := "Key is valid (credits unavailable; make sure the key has the user.read scope)"
	if acc.Credits != nil {
		msg = fmt.Sprintf("Remaining credits: %d", *acc.Credits)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"email":   acc.Email,
		"credits": acc.Credits,
		"message": msg,
	})
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		writeError(w, http.StatusServiceUnavailable, "status store not configured")
		return
	}
	batchID := r.PathValue("batchID")
	files, err := s.deps.Status.List(r.Context(), batchID)
	if err != nil {
		log.Error().Err(err).Str("batch", batchID).Msg("status lookup failed")
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	if len(files) == 0 {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch_id": batchID, "files": files})
}

type llmReq struct {
	Provider string       `json:"provider"`
	Model    string       `json:"model"`
	Messages []ai.Message `json:"messages"`
}

func (s *Server) handleLLM(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	defer r.Body.Close()
	var req llmReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Provider == "" || req.Model == "" || len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "Missing provider, model, or messages")
		return
	}
	if s.deps.LLM == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM proxy not configured")
		return
	}
	client, ok := s.deps.LLM.Get(req.Provider)
	if !ok {
		writeError(w, http.StatusBadRequest, s.deps.LLM.UnknownProviderMessage(req.Provider))
		return
	}
	if !client.Configured() {
		writeError(w, http.StatusServiceUnavailable, client.KeyEnv()+" not configured")
		return
	}

	resp, err := client.Do(r.Context(), ai.Request{Model: req.Model, Messages: req.Messages})
	if err != nil {
		var se *ai.StatusError
		if errors.As(err, &se) {
			writeError(w, se.StatusCode, se.Error())
			return
		}
		log.Error().Err(err).Str("provider", req.Provider).Msg("LLM proxy error")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": resp.Text, "raw": resp.Raw})
}

// encodeURIComponent escapes like the JavaScript function of the same name.
func encodeURIComponent(s string) string {
	const unreserved = "-_.!~*'()"
	var b strings.Builder
	for _, c := range []byte(s) {
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') || strings.IndexByte(unreserved, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}
