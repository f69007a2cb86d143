package confirm

import (
	"context"
	"time"
)

const defaultPollInterval = 1 * time.Second

// HeadFunc returns the current head block of a ledger. Each call must be a
// fresh poll; the gate never caches heads across checks.
type HeadFunc func(ctx context.Context) (uint64, error)

// Gate decides when an observed event is buried deep enough to act on. It
// holds no state; confirmation is a pure function of (event block, head,
// depth).
type Gate struct {
	Depth        uint64
	PollInterval time.Duration
}

// New returns a gate with the given confirmation depth and a 1 s poll.
func New(depth uint64) *Gate {
	return &Gate{Depth: depth, PollInterval: defaultPollInterval}
}

// Confirmed reports whether an event at eventBlock is at least Depth blocks
// below head. An event exactly at head−Depth is confirmed.
func (g *Gate) Confirmed(eventBlock, head uint64) bool {
	return head >= eventBlock && head-eventBlock >= g.Depth
}

// Wait blocks until the event is confirmed, re-polling the head once per
// interval. There is no upper bound on the total wait; cancellation is the
// caller's responsibility. It returns the head observed at release time.
func (g *Gate) Wait(ctx context.Context, head HeadFunc, eventBlock uint64) (uint64, error) {
	interval := g.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	for {
		h, err := head(ctx)
		if err == nil && g.Confirmed(eventBlock, h) {
			return h, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(interval):
		}
	}
}
