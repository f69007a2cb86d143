package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultbridge/relayer/internal/config"
	"github.com/vaultbridge/relayer/internal/deployments"
)

const defaultHTTPTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config, ping both RPC endpoints, and check deployment files",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintln(out, "config OK")

		client := &http.Client{Timeout: defaultHTTPTimeout}
		failures := 0

		for _, ep := range []struct {
			name string
			url  string
		}{
			{"chainA", cfg.ChainARPCURL},
			{"chainB", cfg.ChainBRPCURL},
		} {
			chainID, err := pingRPC(cmd.Context(), client, ep.url)
			if err != nil {
				failures++
				fmt.Fprintf(out, "- %s: ERROR %v\n", ep.name, err)
				continue
			}
			fmt.Fprintf(out, "- %s: chainId %s OK\n", ep.name, chainID)
		}

		if _, err := deployments.Load(cfg.DeploymentsPath); err != nil {
			failures++
			fmt.Fprintf(out, "- deployments: ERROR %v\n", err)
		} else {
			fmt.Fprintln(out, "- deployments: OK")
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d check(s) failed", failures)
		}
		fmt.Fprintln(out, "validate: success")
		return nil
	},
}

func pingRPC(ctx context.Context, client *http.Client, url string) (string, error) {
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_chainId",
		"params":  []any{},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call eth_chainId: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("rpc status %d", resp.StatusCode)
	}

	var rpcResp struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return "", fmt.Errorf("decode rpc response: %w", err)
	}

	if rpcResp.Error != nil {
		return "", fmt.Errorf("rpc error: %s", rpcResp.Error.Message)
	}
	if rpcResp.Result == "" {
		return "", fmt.Errorf("empty chainId result")
	}

	return rpcResp.Result, nil
}
