package router

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/ebookconv/internal/converr"
	"github.com/local/ebookconv/internal/epub"
	"github.com/local/ebookconv/internal/filetype"
	"github.com/local/ebookconv/internal/format"
	"github.com/local/ebookconv/internal/ir"
	logpkg "github.com/local/ebookconv/internal/logger"
	mpkg "github.com/local/ebookconv/internal/metrics"
	"github.com/local/ebookconv/internal/pdftext"
	"github.com/local/ebookconv/internal/remote"
)

// Source is one input file. Name is used for titles and output naming only.
type Source struct {
	Name   string
	Data   []byte
	Format format.Format
}

// Result is the converted artifact.
type Result struct {
	Name   string
	Data   []byte
	Format format.Format
	Plan   Plan
}

// Dependencies wires the collaborators of a Router. Nil fields get defaults, except Remote.
type Dependencies struct {
	Remote   remote.Delegator
	PDF      *pdftext.Reader
	EPUB     *epub.Builder
	Detector *filetype.Detector
}

// Router converts single files. It holds no per-conversion state.
type Router struct {
	deps Dependencies
}

// New creates a Router.
func New(deps Dependencies) *Router {
	if deps.PDF == nil {
		deps.PDF = pdftext.NewReader()
	}
	if deps.EPUB == nil {
		deps.EPUB = epub.NewBuilder()
	}
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	return &Router{deps: deps}
}

// Convert selects a path for src and target and executes it.
func (r *Router) Convert(ctx context.Context, src Source, target format.Format) (Result, error) {
	start := time.Now()
	plan, err := SelectPath(src.Format, target)
	if err != nil {
		mpkg.ObserveConversion(src.Format.String(), target.String(), "none", converr.Kind(err), time.Since(start))
		return Result{}, err
	}

	res, err := r.Execute(ctx, plan, src)
	mpkg.ObserveConversion(src.Format.String(), target.String(), plan.Path.String(), converr.Kind(err), time.Since(start))
	clog := logpkg.Conversion(src.Name, src.Format.String(), target.String())
	if err != nil {
		clog.Warn().Err(err).Str(logpkg.FieldPath, plan.Path.String()).Msg("conversion failed")
		return Result{}, err
	}
	clog.Info().
		Str("output", res.Name).
		Str(logpkg.FieldPath, plan.Path.String()).
		Int("bytes", len(res.Data)).
		Dur("duration", time.Since(start)).
		Msg("conversion finished")
	return res, nil
}

// Execute runs the stages of plan over src, feeding each stage's output to the next.
func (r *Router) Execute(ctx context.Context, plan Plan, src Source) (Result, error) {
	if len(plan.Stages) == 0 {
		return Result{}, converr.Unsupported(plan.Source, plan.Target, "empty plan")
	}
	if src.Format != plan.Source {
		return Result{}, fmt.Errorf("plan for %s applied to %s source", plan.Source, src.Format)
	}
	if err := r.deps.Detector.Verify(src.Data, src.Format); err != nil {
		return Result{}, err
	}

	data, name := src.Data, src.Name
	for i, st := range plan.Stages {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		log.Debug().Str("file", name).Str("stage", st.String()).Msgf("stage %d/%d", i+1, len(plan.Stages))

		var err error
		switch st.Kind {
		case Local:
			data, err = r.local(st, data, name)
		case Remote:
			data, err = r.remote(ctx, st, data, name)
		default:
			err = fmt.Errorf("unknown stage kind %d", st.Kind)
		}
		if err != nil {
			return Result{}, err
		}
		name = format.ReplaceExtension(displayName(name, st.From), st.To)
	}

	return Result{Name: name, Data: data, Format: plan.Target, Plan: plan}, nil
}

func (r *Router) local(st Stage, data []byte, name string) ([]byte, error) {
	doc, err := r.read(st.From, data, name)
	if err != nil {
		return nil, err
	}
	return r.write(st.To, doc)
}

func (r *Router) remote(ctx context.Context, st Stage, data []byte, name string) ([]byte, error) {
	if r.deps.Remote == nil {
		return nil, &converr.RemoteDelegationError{Provider: "remote", Message: "no remote converter configured"}
	}
	out, err := r.deps.Remote.Convert(ctx, remote.Request{
		Payload:      data,
		Filename:     displayName(name, st.From),
		InputFormat:  st.From,
		OutputFormat: st.To,
	})
	if err != nil {
		var rd *converr.RemoteDelegationError
		if !errors.As(err, &rd) {
			err = &converr.RemoteDelegationError{Provider: r.deps.Remote.Name(), Err: err}
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, &converr.RemoteDelegationError{Provider: r.deps.Remote.Name(), Message: "empty result"}
	}
	return out, nil
}

// read dispatches to the local reader for f.
func (r *Router) read(f format.Format, data []byte, name string) (ir.Document, error) {
	switch f {
	case format.PDF:
		return r.deps.PDF.ToDocument(data, baseOf(name))
	case format.EPUB:
		return epub.Parse(data, baseOf(name))
	case format.TXT:
		return ir.FromText(strings.TrimPrefix(string(data), "\ufeff"), txtTitle(name)), nil
	case format.MOBI, format.AZW3:
		return ir.Document{}, converr.Unsupported(f, format.EPUB, fmt.Sprintf("no %s reader", f))
	}
	return ir.Document{}, fmt.Errorf("unknown format %s", f)
}

// write dispatches to the local writer for f.
func (r *Router) write(f format.Format, doc ir.Document) ([]byte, error) {
	switch f {
	case format.EPUB:
		return r.deps.EPUB.Build(doc)
	case format.TXT:
		return []byte(ir.ToText(doc)), nil
	case format.PDF, format.MOBI, format.AZW3:
		return nil, converr.Unsupported(format.EPUB, f, fmt.Sprintf("no %s writer", f))
	}
	return nil, fmt.Errorf("unknown format %s", f)
}

func txtTitle(name string) string {
	base := baseOf(name)
	if strings.EqualFold(filepath.Ext(base), ".txt") {
		return base[:len(base)-len(".txt")]
	}
	return base
}

func baseOf(name string) string {
	if name == "" {
		return ""
	}
	return filepath.Base(name)
}

// displayName gives stage inputs a filename even when the caller passed none.
func displayName(name string, f format.Format) string {
	if name == "" {
		return "input." + f.Extension()
	}
	return name
}
