package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vaultbridge/relayer/internal/alert"
	"github.com/vaultbridge/relayer/internal/chain"
	"github.com/vaultbridge/relayer/internal/config"
	"github.com/vaultbridge/relayer/internal/confirm"
	"github.com/vaultbridge/relayer/internal/deployments"
	"github.com/vaultbridge/relayer/internal/metrics"
	"github.com/vaultbridge/relayer/internal/pipeline"
	"github.com/vaultbridge/relayer/internal/storage"
)

const (
	readyMaxRetries   = 30
	readyInterval     = 2 * time.Second
	heartbeatInterval = 30 * time.Second
)

// Supervisor owns the three pipelines and drives the startup phases: wait
// for both endpoints, recover every stream, then go live with a heartbeat.
type Supervisor struct {
	log       *slog.Logger
	store     *storage.Store
	chainA    *chain.Client
	chainB    *chain.Client
	pipelines []*pipeline.Pipeline
	heartbeat time.Duration
}

// New assembles a supervisor over already-connected components.
func New(log *slog.Logger, store *storage.Store, chainA, chainB *chain.Client, pipelines []*pipeline.Pipeline) *Supervisor {
	return &Supervisor{
		log:       log.With("component", "supervisor"),
		store:     store,
		chainA:    chainA,
		chainB:    chainB,
		pipelines: pipelines,
		heartbeat: heartbeatInterval,
	}
}

// Bootstrap resolves configuration into connected components: dials both
// endpoints, waits for them and for the deployment-address files, opens
// the durable store, and builds the pipelines. Any failure here is a
// fatal startup error.
func Bootstrap(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics) (*Supervisor, error) {
	chainA, err := chain.Dial("chainA", cfg.ChainARPCURL, cfg.SigningKeyHex(), log)
	if err != nil {
		return nil, err
	}
	chainB, err := chain.Dial("chainB", cfg.ChainBRPCURL, cfg.SigningKeyHex(), log)
	if err != nil {
		return nil, err
	}
	if err := chainA.WaitReady(ctx, readyMaxRetries, readyInterval); err != nil {
		return nil, err
	}
	if err := chainB.WaitReady(ctx, readyMaxRetries, readyInterval); err != nil {
		return nil, err
	}

	addrs, err := deployments.WaitLoad(ctx, cfg.DeploymentsPath, deployments.DefaultWaitTimeout)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var notifier alert.Notifier = alert.Nop{}
	if cfg.AlertWebhookURL != "" {
		notifier, err = alert.NewWebhookNotifier(cfg.AlertWebhookURL)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	pipes := pipeline.NewAll(pipeline.Deps{
		ChainA:    chainA,
		ChainB:    chainB,
		Addresses: addrs,
		Store:     store,
		Gate:      confirm.New(cfg.ConfirmationDepth),
		Log:       log,
		Metrics:   m,
		Notifier:  notifier,
	})

	return New(log, store, chainA, chainB, pipes), nil
}

// Store exposes the durable store for health checks and the state command.
func (s *Supervisor) Store() *storage.Store { return s.store }

// Chains returns both chain clients.
func (s *Supervisor) Chains() (*chain.Client, *chain.Client) { return s.chainA, s.chainB }

// Recover runs every pipeline's recovery pass to completion, in order.
func (s *Supervisor) Recover(ctx context.Context) error {
	for _, p := range s.pipelines {
		if err := p.Recover(ctx); err != nil {
			return fmt.Errorf("recovery: %w", err)
		}
	}
	return nil
}

// Run executes the startup phases: recovery for all streams, then the
// live subscriptions plus the heartbeat, until ctx is cancelled or a
// pipeline hits a fatal store failure.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Recover(ctx); err != nil {
		return err
	}
	s.log.Info("all recoveries complete; going live")

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range s.pipelines {
		g.Go(func() error { return p.StartLive(ctx) })
	}
	g.Go(func() error {
		s.heartbeatLoop(ctx)
		return nil
	})
	return g.Wait()
}

// Close flushes and closes the durable store.
func (s *Supervisor) Close() error {
	return s.store.Close()
}

// heartbeatLoop logs both chain heads periodically. A failed query is
// logged and skipped; the heartbeat never terminates the supervisor.
func (s *Supervisor) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logHeartbeat(ctx)
		}
	}
}

func (s *Supervisor) logHeartbeat(ctx context.Context) {
	headA, errA := s.chainA.HeadBlock(ctx)
	headB, errB := s.chainB.HeadBlock(ctx)
	if errA != nil || errB != nil {
		s.log.Warn("heartbeat query failed", "chainA_error", errA, "chainB_error", errB)
		return
	}
	s.log.Info("heartbeat", "chainA_head", headA, "chainB_head", headB)
}
