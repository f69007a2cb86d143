package health

import (
	"context"
	"fmt"
)

// HeadReader is satisfied by a chain client.
type HeadReader interface {
	Name() string
	HeadBlock(ctx context.Context) (uint64, error)
}

// RPCChecker combines the health checks of both ledger endpoints.
type RPCChecker struct {
	chains []HeadReader
}

// NewRPCChecker creates a checker over the given chain clients.
func NewRPCChecker(chains ...HeadReader) *RPCChecker {
	return &RPCChecker{chains: chains}
}

// Ping checks every configured RPC endpoint; the last failure wins.
func (c *RPCChecker) Ping(ctx context.Context) error {
	var lastErr error
	for _, ch := range c.chains {
		if _, err := ch.HeadBlock(ctx); err != nil {
			lastErr = fmt.Errorf("%s: %w", ch.Name(), err)
		}
	}
	return lastErr
}
