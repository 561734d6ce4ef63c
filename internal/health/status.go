package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/local/ebookconv/internal/remote"
)

// Pinger models a dependency that can be probed for reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// AccountChecker is the CloudConvert capability used for credit checks.
type AccountChecker interface {
	Configured() bool
	Account(ctx context.Context) (remote.Account, error)
}

// Tool is a local converter binary.
type Tool interface {
	Available() bool
	Version(ctx context.Context) (string, error)
}

// Options configures the Checker. Nil dependencies are reported as not configured.
type Options struct {
	Redis        Pinger
	S3           Pinger
	CloudConvert AccountChecker
	Backend      Pinger
	Calibre      Tool
	LLMProviders []string // configured chat providers
}

// Checker aggregates health checks for external dependencies.
type Checker struct {
	opts Options
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis        Status `json:"redis"`
	S3           Status `json:"s3"`
	CloudConvert Status `json:"cloudconvert"`
	Backend      Status `json:"backend"`
	Calibre      Status `json:"calibre"`
	LLM          Status `json:"llm"`
}

// CanDelegate reports whether at least one remote converter is usable.
func (s Summary) CanDelegate() bool {
	return s.CloudConvert.OK || s.Backend.OK || s.Calibre.OK
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{opts: opts}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:        c.ping(ctx, c.opts.Redis, 2*time.Second),
		S3:           c.ping(ctx, c.opts.S3, 5*time.Second),
		CloudConvert: c.checkCloudConvert(ctx),
		Backend:      c.ping(ctx, c.opts.Backend, 5*time.Second),
		Calibre:      c.checkCalibre(ctx),
		LLM:          c.checkLLM(),
	}
}

func (c *Checker) ping(ctx context.Context, p Pinger, timeout time.Duration) Status {
	if p == nil {
		return Status{OK: false, Message: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkCloudConvert(ctx context.Context) Status {
	cc := c.opts.CloudConvert
	if cc == nil || !cc.Configured() {
		return Status{OK: false, Message: "API key missing"}
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	acc, err := cc.Account(ctx)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if acc.Credits == nil {
		return Status{OK: true, Message: "Available"}
	}
	if *acc.Credits <= 0 {
		return Status{OK: false, Message: "No conversion credits left"}
	}
	return Status{OK: true, Message: fmt.Sprintf("%d credits", *acc.Credits)}
}

func (c *Checker) checkCalibre(ctx context.Context) Status {
	if c.opts.Calibre == nil || !c.opts.Calibre.Available() {
		return Status{OK: false, Message: "Binary not found"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	v, err := c.opts.Calibre.Version(ctx)
	if err != nil || v == "" {
		return Status{OK: true, Message: "Available"}
	}
	return Status{OK: true, Message: "Available (" + v + ")"}
}

func (c *Checker) checkLLM() Status {
	if len(c.opts.LLMProviders) == 0 {
		return Status{OK: false, Message: "No provider keys"}
	}
	return Status{OK: true, Message: fmt.Sprintf("%d providers configured", len(c.opts.LLMProviders))}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
