package remote

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Limited caps how many conversions run at once against a single converter.
type Limited struct {
	next Delegator
	sem  chan struct{}
}

// NewLimited wraps d. max <= 0 defaults to 2.
func NewLimited(d Delegator, max int) *Limited {
	if max <= 0 {
		max = 2
	}
	return &Limited{next: d, sem: make(chan struct{}, max)}
}

func (l *Limited) Name() string { return l.next.Name() }

// Convert waits for a free slot or for ctx to end.
func (l *Limited) Convert(ctx context.Context, req Request) ([]byte, error) {
	select {
	case l.sem <- struct{}{}:
	default:
		log.Debug().Str("provider", l.next.Name()).Msg("waiting for inflight slot")
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	defer func() { <-l.sem }()
	return l.next.Convert(ctx, req)
}

// Inflight reports the number of conversions currently running.
func (l *Limited) Inflight() int { return len(l.sem) }
