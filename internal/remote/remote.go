// Package remote hands payloads to converters for formats that cannot be produced locally.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/local/ebookconv/internal/converr"
	"github.com/local/ebookconv/internal/format"
)

// Request is the payload handed to a remote converter.
type Request struct {
	Payload      []byte
	Filename     string
	InputFormat  format.Format
	OutputFormat format.Format
	// InputLabel names an input outside the Format set (html on the delegation endpoint).
	InputLabel string
}

// InputName is the converter-facing input format label.
func (r Request) InputName() string {
	if r.InputLabel != "" {
		return r.InputLabel
	}
	return r.InputFormat.Extension()
}

// OutputFilename is the request filename with the output extension.
func (r Request) OutputFilename() string {
	name := r.Filename
	if name == "" {
		name = "input." + r.InputName()
	}
	return format.ReplaceExtension(name, r.OutputFormat)
}

// Delegator converts a payload and returns the converted bytes or a failure.
type Delegator interface {
	Name() string
	Convert(ctx context.Context, req Request) ([]byte, error)
}

// fail builds a RemoteDelegationError for provider.
func fail(provider string, status int, msg string, cause error) error {
	return &converr.RemoteDelegationError{Provider: provider, StatusCode: status, Message: msg, Err: cause}
}

// errorBody is the structured failure body shared by the backend and CloudConvert.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// readFailure turns a non-2xx response into a RemoteDelegationError using its JSON message if any.
func readFailure(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	msg := ""
	if json.Unmarshal(body, &eb) == nil {
		msg = eb.Error
		if msg == "" {
			msg = eb.Message
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(http.StatusText(resp.StatusCode))
	}
	return fail(provider, resp.StatusCode, msg, nil)
}

// statusOf returns the HTTP status carried by err, or 0.
func statusOf(err error) int {
	var rd *converr.RemoteDelegationError
	if errors.As(err, &rd) {
		return rd.StatusCode
	}
	return 0
}

func validate(provider string, req Request) error {
	if len(req.Payload) == 0 {
		return fail(provider, 0, "empty payload", nil)
	}
	if (!req.InputFormat.Valid() && req.InputLabel == "") || !req.OutputFormat.Valid() {
		return fail(provider, 0, fmt.Sprintf("invalid format pair %s -> %s", req.InputName(), req.OutputFormat), nil)
	}
	return nil
}
