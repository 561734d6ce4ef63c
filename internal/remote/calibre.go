package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Calibre converts with a local ebook-convert binary.
type Calibre struct {
	binary  string
	timeout time.Duration
}

// NewCalibre creates a converter around binary (default "ebook-convert").
func NewCalibre(binary string, timeout time.Duration) *Calibre {
	if binary == "" {
		binary = "ebook-convert"
	}
	if timeout <= 0 {
		timeout = 180 * time.Second // Default 3 minutes
	}
	return &Calibre{binary: binary, timeout: timeout}
}

func (c *Calibre) Name() string { return "calibre" }

// Available reports whether the binary is on PATH.
func (c *Calibre) Available() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// Version returns the first line of `ebook-convert --version`.
func (c *Calibre) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, c.binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("ebook-convert not found in PATH: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}

// Convert writes the payload into a private work directory and runs ebook-convert on it.
func (c *Calibre) Convert(ctx context.Context, req Request) ([]byte, error) {
	if err := validate(c.Name(), req); err != nil {
		return nil, err
	}
	start := time.Now()

	workDir := filepath.Join(os.TempDir(), fmt.Sprintf("ebookconv_%s", uuid.New().String()))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fail(c.Name(), 0, "failed to create work directory", err)
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "input."+req.InputName())
	output := filepath.Join(workDir, "output."+req.OutputFormat.Extension())
	if err := os.WriteFile(input, req.Payload, 0o644); err != nil {
		return nil, fail(c.Name(), 0, "failed to write input", err)
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, c.binary, input, output)
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("ebook-convert command")

	combined, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, fail(c.Name(), 0, fmt.Sprintf("conversion timeout after %v", c.timeout), context.DeadlineExceeded)
		}
		return nil, fail(c.Name(), 0, "conversion failed: "+lastLine(string(combined)), err)
	}

	out, err := os.ReadFile(output)
	if err != nil {
		return nil, fail(c.Name(), 0, "output file not created", err)
	}
	log.Info().Str("output", req.OutputFilename()).Dur("duration", time.Since(start)).Msg("ebook-convert successful")
	return out, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
