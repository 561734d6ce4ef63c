// Package router chooses and runs the conversion path for a (source, target) format pair.
package router

import (
	"fmt"
	"strings"

	"github.com/local/ebookconv/internal/converr"
	"github.com/local/ebookconv/internal/format"
)

// Path is the kind of conversion route chosen for a format pair.
type Path int

const (
	// Direct submits the source bytes unchanged to the remote converter.
	Direct Path = iota + 1
	// ViaIR reads the source into the document model and writes the target locally.
	ViaIR
	// Delegated returns the remote converter's output unchanged.
	Delegated
	// TwoHopDelegated combines one remote stage with one local stage.
	TwoHopDelegated
)

func (p Path) String() string {
	switch p {
	case Direct:
		return "direct"
	case ViaIR:
		return "via_ir"
	case Delegated:
		return "delegated"
	case TwoHopDelegated:
		return "two_hop_delegated"
	}
	return fmt.Sprintf("path(%d)", int(p))
}

// StageKind says where a stage runs.
type StageKind int

const (
	Local StageKind = iota + 1
	Remote
)

func (k StageKind) String() string {
	if k == Remote {
		return "remote"
	}
	return "local"
}

// Stage converts From into To, either locally through the document model or remotely.
type Stage struct {
	Kind StageKind
	From format.Format
	To   format.Format
}

func (s Stage) String() string { return fmt.Sprintf("%s %s->%s", s.Kind, s.From, s.To) }

// Plan is the outcome of path selection; it carries no data and performs no I/O.
type Plan struct {
	Source format.Format
	Target format.Format
	Path   Path
	Stages []Stage
}

func (p Plan) String() string {
	parts := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		parts[i] = s.String()
	}
	return p.Path.String() + "[" + strings.Join(parts, ", ") + "]"
}

// SelectPath decides how to convert src into tgt.
//
// Targets that need delegation take priority: an EPUB source goes to the remote converter as-is,
// any other readable source is first written as EPUB locally. Sources that need delegation are
// normalized to EPUB remotely, then written locally unless EPUB was requested. Everything else
// is read and written locally. PDF is never a valid target.
func SelectPath(src, tgt format.Format) (Plan, error) {
	plan := Plan{Source: src, Target: tgt}
	switch {
	case !src.Valid() || !tgt.Valid():
		return plan, converr.Unsupported(src, tgt, "unknown format")
	case src == tgt:
		return plan, converr.Unsupported(src, tgt, "source and target formats are the same")
	case !tgt.HasWriter() && !tgt.NeedsDelegation():
		return plan, converr.Unsupported(src, tgt, fmt.Sprintf("no %s writer", tgt))
	}

	if tgt.NeedsDelegation() {
		switch {
		case src == format.EPUB:
			plan.Path = Direct
			plan.Stages = []Stage{{Kind: Remote, From: src, To: tgt}}
		case src.HasReader():
			plan.Path = TwoHopDelegated
			plan.Stages = []Stage{
				{Kind: Local, From: src, To: format.EPUB},
				{Kind: Remote, From: format.EPUB, To: tgt},
			}
		default:
			return plan, converr.Unsupported(src, tgt, fmt.Sprintf("no %s reader", src))
		}
		return plan, nil
	}

	if src.NeedsDelegation() {
		switch {
		case tgt == format.EPUB:
			plan.Path = Delegated
			plan.Stages = []Stage{{Kind: Remote, From: src, To: format.EPUB}}
		case tgt.HasWriter():
			plan.Path = TwoHopDelegated
			plan.Stages = []Stage{
				{Kind: Remote, From: src, To: format.EPUB},
				{Kind: Local, From: format.EPUB, To: tgt},
			}
		default:
			return plan, converr.Unsupported(src, tgt, fmt.Sprintf("no %s writer", tgt))
		}
		return plan, nil
	}

	if !src.HasReader() {
		return plan, converr.Unsupported(src, tgt, fmt.Sprintf("no %s reader", src))
	}
	plan.Path = ViaIR
	plan.Stages = []Stage{{Kind: Local, From: src, To: tgt}}
	return plan, nil
}
