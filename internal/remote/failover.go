package remote

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/ebookconv/internal/converr"
	mpkg "github.com/local/ebookconv/internal/metrics"
)

// Failover tries converters in order. A transient failure opens that converter's breaker
// and moves on; a fatal failure stops immediately. Each converter is tried at most once.
type Failover struct {
	delegators []Delegator
	breaker    Breaker
}

// NewFailover builds a chain. A nil breaker never skips anything.
func NewFailover(breaker Breaker, delegators ...Delegator) *Failover {
	return &Failover{delegators: delegators, breaker: breaker}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.delegators))
	for i, d := range f.delegators {
		names[i] = d.Name()
	}
	return "failover(" + strings.Join(names, ",") + ")"
}

func (f *Failover) Convert(ctx context.Context, req Request) ([]byte, error) {
	var lastErr error
	total := len(f.delegators)

	for i, d := range f.delegators {
		provider := d.Name()
		if f.breaker != nil && f.breaker.IsOpen(ctx, provider) {
			log.Debug().Str("provider", provider).Msg("circuit breaker OPEN - skipping converter")
			continue
		}

		log.Info().
			Str("provider", provider).
			Str("input", req.InputName()).
			Str("output", req.OutputFormat.String()).
			Msgf("attempting remote conversion [%d/%d]", i+1, total)

		start := time.Now()
		out, err := d.Convert(ctx, req)
		dur := time.Since(start)
		result := classify(err)
		mpkg.ObserveRemote(provider, result, dur)

		if err == nil {
			if f.breaker != nil {
				f.breaker.Close(ctx, provider)
				mpkg.BreakerClosed(provider)
			}
			return out, nil
		}

		lastErr = err
		switch {
		case isTransientError(err):
			if f.breaker != nil {
				f.breaker.Open(ctx, provider)
				mpkg.BreakerOpened(provider)
			}
			log.Warn().Err(err).Str("provider", provider).Dur("duration", dur).Msg("transient error - trying next converter")
		case isFatalError(err):
			log.Error().Err(err).Str("provider", provider).Msg("fatal error - no failover")
			return nil, err
		default:
			log.Warn().Err(err).Str("provider", provider).Msg("converter failed - trying next converter")
		}
	}

	if lastErr == nil {
		mpkg.ObserveRemote("all", "exhausted", 0)
		return nil, &converr.RemoteDelegationError{Provider: "remote", Message: "no converter available"}
	}
	log.Error().Err(lastErr).Msg("all converters exhausted")
	return nil, lastErr
}
