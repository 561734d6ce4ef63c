package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/ebookconv/internal/format"
	mpkg "github.com/local/ebookconv/internal/metrics"
	"github.com/local/ebookconv/internal/router"
	"github.com/local/ebookconv/internal/store"
)

// Converter converts one file; *router.Router satisfies it.
type Converter interface {
	Convert(ctx context.Context, src router.Source, target format.Format) (router.Result, error)
}

// Report summarises a finished batch.
type Report struct {
	BatchID string
	Files   []store.FileStatus
}

// Count returns how many files ended in the given state.
func (r Report) Count(status string) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

// Runner converts files of a collection one at a time.
type Runner struct {
	conv   Converter
	status store.StatusStore
	newID  func() string
	now    func() time.Time
}

func NewRunner(conv Converter, status store.StatusStore) *Runner {
	if status == nil {
		status = store.NewMemoryStatus()
	}
	return &Runner{conv: conv, status: status, newID: uuid.NewString, now: time.Now}
}

// Run converts names in order. A successful file is written as BaseName+"."+target and its
// original removed; a failed file is left untouched and the batch moves on.
// The returned error is only set when ctx ends before every file was attempted.
func (r *Runner) Run(ctx context.Context, coll Collection, names []string, target format.Format) (Report, error) {
	rep := Report{BatchID: r.newID(), Files: make([]store.FileStatus, len(names))}
	logger := log.With().Str("batch", rep.BatchID).Str("target", target.String()).Logger()
	logger.Info().Int("files", len(names)).Msg("batch started")

	for i, name := range names {
		rep.Files[i] = store.FileStatus{Name: name, Status: store.Waiting}
		r.save(ctx, rep.BatchID, rep.Files[i])
	}

	for i := range rep.Files {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Int("remaining", len(names)-i).Msg("batch interrupted")
			return rep, err
		}
		st := &rep.Files[i]
		start := r.now()
		st.Status, st.Start = store.Converting, &start
		r.save(ctx, rep.BatchID, *st)

		out, err := r.convertOne(ctx, coll, st.Name, target)
		end := r.now()
		st.End = &end
		if err != nil {
			st.Status, st.Message = store.Error, err.Error()
			mpkg.IncBatchFile(store.Error)
			logger.Warn().Err(err).Str("file", st.Name).Msg("batch file failed")
		} else {
			st.Status, st.Output = store.Success, out
			mpkg.IncBatchFile(store.Success)
			logger.Info().Str("file", st.Name).Str("output", out).Dur("duration", end.Sub(start)).Msg("batch file replaced")
		}
		r.save(ctx, rep.BatchID, *st)
	}

	logger.Info().
		Int("success", rep.Count(store.Success)).
		Int("error", rep.Count(store.Error)).
		Msg("batch finished")
	return rep, nil
}

func (r *Runner) convertOne(ctx context.Context, coll Collection, name string, target format.Format) (string, error) {
	src, err := format.FromFilename(name)
	if err != nil {
		return "", err
	}
	data, err := coll.Read(ctx, name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	res, err := r.conv.Convert(ctx, router.Source{Name: name, Data: data, Format: src}, target)
	if err != nil {
		return "", err
	}
	if len(res.Data) == 0 {
		return "", errors.New("conversion produced no output")
	}

	out := format.ReplaceExtension(name, target)
	if err := coll.Write(ctx, out, res.Data); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	if out != name {
		if err := coll.Remove(ctx, name); err != nil {
			return "", fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return out, nil
}

// save records st; status storage problems never fail a conversion.
func (r *Runner) save(ctx context.Context, batchID string, st store.FileStatus) {
	if err := r.status.Set(context.WithoutCancel(ctx), batchID, st); err != nil {
		log.Warn().Err(err).Str("batch", batchID).Str("file", st.Name).Msg("failed to record batch status")
	}
}
