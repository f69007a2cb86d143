package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vaultbridge/relayer/internal/alert"
	"github.com/vaultbridge/relayer/internal/chain"
	"github.com/vaultbridge/relayer/internal/confirm"
	"github.com/vaultbridge/relayer/internal/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
)

// Source is the read side of a pipeline: one ledger endpoint.
type Source interface {
	HeadBlock(ctx context.Context) (uint64, error)
	QueryEvents(ctx context.Context, address common.Address, topic0 common.Hash, fromBlock, toBlock uint64) ([]types.Log, error)
	Subscribe(ctx context.Context, address common.Address, topic0 common.Hash, fromBlock uint64, handler func(types.Log))
}

// Destination is the write side: the opposite ledger.
type Destination interface {
	SubmitTx(ctx context.Context, to common.Address, calldata []byte) (common.Hash, *types.Receipt, error)
}

// Store is the durable state the pipeline owns for its stream.
type Store interface {
	IsProcessed(ctx context.Context, streamID string, nonce uint64, kind string) (bool, error)
	MarkProcessed(ctx context.Context, streamID string, nonce uint64, kind, destTxHash string) error
	GetCursor(ctx context.Context, streamID string) (uint64, error)
	SetCursor(ctx context.Context, streamID string, block uint64) error
}

// Action is the decoded intent of one source event: the value-keyed nonce
// and the destination calldata. Skip marks events that are acknowledged
// without a destination call (e.g. an unknown governance selector).
type Action struct {
	Nonce    uint64
	Calldata []byte
	Skip     bool
	Note     string
}

// DecodeFunc turns a raw log into an Action.
type DecodeFunc func(types.Log) (Action, error)

// Pipeline relays one event stream: recovery backfill, live subscription,
// confirmation gating, submission with retries, and durable bookkeeping.
// A pipeline processes one event at a time end-to-end.
type Pipeline struct {
	streamID string
	kind     string

	source   Source
	srcAddr  common.Address
	topic0   common.Hash
	dest     Destination
	destAddr common.Address
	decode   DecodeFunc

	store    Store
	gate     *confirm.Gate
	log      *slog.Logger
	metrics  *metrics.Metrics
	notifier alert.Notifier

	maxAttempts int
	retryDelay  time.Duration
}

// Config carries the per-stream parameters.
type Config struct {
	StreamID    string
	Kind        string
	Source      Source
	SourceAddr  common.Address
	Topic0      common.Hash
	Dest        Destination
	DestAddr    common.Address
	Decode      DecodeFunc
	Store       Store
	Gate        *confirm.Gate
	Log         *slog.Logger
	Metrics     *metrics.Metrics
	Notifier    alert.Notifier
	MaxAttempts int
	RetryDelay  time.Duration
}

// New builds a pipeline from its stream configuration.
func New(cfg Config) *Pipeline {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Notifier == nil {
		cfg.Notifier = alert.Nop{}
	}
	return &Pipeline{
		streamID:    cfg.StreamID,
		kind:        cfg.Kind,
		source:      cfg.Source,
		srcAddr:     cfg.SourceAddr,
		topic0:      cfg.Topic0,
		dest:        cfg.Dest,
		destAddr:    cfg.DestAddr,
		decode:      cfg.Decode,
		store:       cfg.Store,
		gate:        cfg.Gate,
		log:         cfg.Log.With("stream", cfg.StreamID),
		metrics:     cfg.Metrics,
		notifier:    cfg.Notifier,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
	}
}

// StreamID returns the stream identifier.
func (p *Pipeline) StreamID() string { return p.streamID }

// Recover scans history from the persisted cursor to the current head and
// processes every matching event, then advances the cursor to the head.
// Events still inside the confirmation window are deferred; they are
// re-observed by the live subscription or a later recovery. A non-nil
// error means the store or the source RPC failed and startup cannot
// proceed.
func (p *Pipeline) Recover(ctx context.Context) error {
	cursor, err := p.store.GetCursor(ctx, p.streamID)
	if err != nil {
		return fmt.Errorf("%s: %w", p.streamID, err)
	}
	head, err := p.source.HeadBlock(ctx)
	if err != nil {
		return fmt.Errorf("%s recovery head: %w", p.streamID, err)
	}
	if cursor >= head {
		p.log.Info("recovery: nothing to scan", "cursor", cursor, "head", head)
		return nil
	}

	p.log.Info("recovery: scanning", "from", cursor+1, "to", head)
	logs, err := p.source.QueryEvents(ctx, p.srcAddr, p.topic0, cursor+1, head)
	if err != nil {
		return fmt.Errorf("%s recovery scan: %w", p.streamID, err)
	}
	// Events still inside the confirmation window, and events that ended
	// the pass without a durable mark, hold the cursor back so a later
	// pass or the live subscription re-observes them.
	next := head
	for _, lg := range logs {
		hold, err := p.process(ctx, lg, head)
		if err != nil {
			return err
		}
		if hold && lg.BlockNumber > 0 && lg.BlockNumber-1 < next {
			next = lg.BlockNumber - 1
		}
	}
	if err := p.store.SetCursor(ctx, p.streamID, next); err != nil {
		return fmt.Errorf("%s: %w", p.streamID, err)
	}
	p.log.Info("recovery: done", "events", len(logs), "cursor", next)
	return nil
}

// StartLive subscribes to new events and relays each one after it clears
// the confirmation gate. It blocks until ctx is cancelled; a non-nil
// return means the durable store failed and the supervisor must stop.
func (p *Pipeline) StartLive(ctx context.Context) error {
	from, err := p.store.GetCursor(ctx, p.streamID)
	if err != nil {
		return fmt.Errorf("%s: %w", p.streamID, err)
	}
	p.log.Info("live: subscribed", "from", from+1)

	liveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fatal error
	p.source.Subscribe(liveCtx, p.srcAddr, p.topic0, from, func(lg types.Log) {
		head, err := p.gate.Wait(liveCtx, p.source.HeadBlock, lg.BlockNumber)
		if err != nil {
			return
		}
		if _, err := p.process(liveCtx, lg, head); err != nil {
			fatal = err
			cancel()
		}
	})
	return fatal
}

// process drives one event through dedup, submission, and acknowledgement.
// headAtCheck is the freshly polled head used for the confirmation check.
// hold is true when the pass ends without a durable mark (confirmation not
// met, submission abandoned) and the cursor must not advance past the
// event. Only store failures are returned; everything else is handled in
// place.
func (p *Pipeline) process(ctx context.Context, lg types.Log, headAtCheck uint64) (hold bool, err error) {
	action, err := p.decode(lg)
	if err != nil {
		p.log.Warn("undecodable event skipped", "block", lg.BlockNumber, "tx", lg.TxHash.Hex(), "error", err)
		p.metrics.Errors()
		return false, nil
	}

	log := p.log.With("nonce", action.Nonce, "block", lg.BlockNumber)
	p.metrics.EventObserved()

	if !p.gate.Confirmed(lg.BlockNumber, headAtCheck) {
		log.Debug("not yet confirmed", "head", headAtCheck, "depth", p.gate.Depth)
		return true, nil
	}

	done, err := p.store.IsProcessed(ctx, p.streamID, action.Nonce, p.kind)
	if err != nil {
		return false, fmt.Errorf("%s: %w", p.streamID, err)
	}
	if done {
		log.Debug("already processed")
		return false, nil
	}

	if action.Skip {
		log.Warn("event acknowledged without destination call", "note", action.Note)
		return false, p.acknowledge(ctx, action.Nonce, "", lg.BlockNumber)
	}

	return p.submitWithRetry(ctx, log, lg, action)
}

func (p *Pipeline) submitWithRetry(ctx context.Context, log *slog.Logger, lg types.Log, action Action) (hold bool, err error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		txHash, _, err := p.dest.SubmitTx(ctx, p.destAddr, action.Calldata)
		if err == nil {
			log.Info("destination tx mined", "tx", txHash.Hex(), "attempt", attempt)
			p.metrics.SubmissionSucceeded()
			return false, p.acknowledge(ctx, action.Nonce, txHash.Hex(), lg.BlockNumber)
		}

		switch chain.ClassifyRevert(err) {
		case chain.RevertNonceAlreadyProcessed:
			// The destination replay map already holds this nonce; the
			// effect exists on-chain. Record it locally with an empty tx
			// marker so restarts stop resubmitting.
			log.Info("nonce already processed on destination; recording locally")
			p.metrics.BenignReplay()
			return false, p.acknowledge(ctx, action.Nonce, "", lg.BlockNumber)
		case chain.RevertZeroAmount:
			log.Error("destination rejected zero amount; marking to stop retries", "error", err)
			p.metrics.Errors()
			return false, p.acknowledge(ctx, action.Nonce, "", lg.BlockNumber)
		case chain.RevertAccessControl:
			log.Error("relayer role missing on destination; operator intervention required", "error", err)
			p.metrics.Errors()
			p.notify(ctx, action, lg, "relayer role missing on destination")
			return true, nil
		}

		lastErr = err
		log.Warn("submission failed", "attempt", attempt, "max", p.maxAttempts, "error", err)
		if attempt < p.maxAttempts {
			p.metrics.SubmissionRetried()
			select {
			case <-ctx.Done():
				return true, nil
			case <-time.After(p.retryDelay):
			}
		}
	}

	log.Error("abandoning event after exhausting attempts", "attempts", p.maxAttempts, "error", lastErr)
	p.metrics.EventAbandoned()
	p.notify(ctx, action, lg, fmt.Sprintf("%d attempts failed: %v", p.maxAttempts, lastErr))
	return true, nil
}

// acknowledge durably marks the event processed and advances the cursor.
// A store failure here is fatal: without the mark the invariants cannot be
// maintained, and the destination effect (if any) is protected by the
// on-chain replay map after restart.
func (p *Pipeline) acknowledge(ctx context.Context, nonce uint64, destTxHash string, eventBlock uint64) error {
	if err := p.store.MarkProcessed(ctx, p.streamID, nonce, p.kind, destTxHash); err != nil {
		return fmt.Errorf("%s: %w", p.streamID, err)
	}
	if err := p.store.SetCursor(ctx, p.streamID, eventBlock); err != nil {
		return fmt.Errorf("%s: %w", p.streamID, err)
	}
	return nil
}

func (p *Pipeline) notify(ctx context.Context, action Action, lg types.Log, reason string) {
	err := p.notifier.Notify(ctx, alert.Abandonment{
		StreamID: p.streamID,
		Nonce:    action.Nonce,
		Kind:     p.kind,
		Block:    lg.BlockNumber,
		TxHash:   lg.TxHash.Hex(),
		Reason:   reason,
	})
	if err != nil {
		p.log.Warn("alert delivery failed", "error", err)
	}
}
