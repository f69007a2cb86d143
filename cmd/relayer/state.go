package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultbridge/relayer/internal/config"
	"github.com/vaultbridge/relayer/internal/storage"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show stream cursors and processed-event counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		cursors, err := store.Cursors(cmd.Context())
		if err != nil {
			return err
		}
		if len(cursors) == 0 {
			fmt.Fprintln(out, "no stream state recorded yet")
			return nil
		}
		for _, c := range cursors {
			n, err := store.ProcessedCount(cmd.Context(), c.StreamID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-20s cursor=%-10d processed=%-6d updated=%s\n",
				c.StreamID, c.LastBlock, n, c.UpdatedAt)
		}
		return nil
	},
}
