package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultbridge/relayer/internal/config"
	"github.com/vaultbridge/relayer/internal/engine"
	"github.com/vaultbridge/relayer/internal/health"
	"github.com/vaultbridge/relayer/internal/logging"
	"github.com/vaultbridge/relayer/internal/metrics"
)

var (
	flagOnce    bool
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "Run recovery for every stream and exit (no live phase)")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relayer pipelines",
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			logLevel = "info"
		}
		log := logging.NewWithLevel(logLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
			log.Info("metrics enabled", "addr", flagMetrics)
		}

		sup, err := engine.Bootstrap(ctx, cfg, log, mtr)
		if err != nil {
			return fmt.Errorf("startup: %w", err)
		}
		defer sup.Close()

		if flagHealth != "" {
			chainA, chainB := sup.Chains()
			rpcChecker := health.NewRPCChecker(chainA, chainB)
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:  sup.Store().Ping,
				RPCPing: rpcChecker.Ping,
			})
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		if flagMetrics != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: flagMetrics, Handler: mux}
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
		}

		if flagOnce {
			if err := sup.Recover(ctx); err != nil {
				return err
			}
			log.Info("recovery complete, exiting (--once)")
			return nil
		}

		if err := sup.Run(ctx); err != nil {
			log.Error("relayer stopped", "error", err)
			return err
		}
		log.Info("shutdown complete")
		return nil
	},
}
