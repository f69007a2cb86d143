package deployments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	chainAFile = "chainA.json"
	chainBFile = "chainB.json"

	waitPollInterval = 2 * time.Second
	// DefaultWaitTimeout bounds how long startup waits for the deployment
	// scripts to publish the address files.
	DefaultWaitTimeout = 2 * time.Minute
)

// ChainA holds the settlement-chain contract addresses.
type ChainA struct {
	BridgeLock          common.Address `json:"bridgeLock"`
	GovernanceEmergency common.Address `json:"governanceEmergency"`
}

// ChainB holds the execution-chain contract addresses.
type ChainB struct {
	WrappedToken common.Address `json:"wrappedToken"`
	Governance   common.Address `json:"governance"`
}

// Addresses is the full deployment-address set, consumed once at startup.
type Addresses struct {
	ChainA ChainA
	ChainB ChainB
}

// Load reads and validates chainA.json and chainB.json from dir.
func Load(dir string) (*Addresses, error) {
	var out Addresses
	if err := readJSON(filepath.Join(dir, chainAFile), &out.ChainA); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, chainBFile), &out.ChainB); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitLoad polls for the address files until they load or the timeout
// elapses. Deployment runs in a separate container; the relayer may start
// first.
func WaitLoad(ctx context.Context, dir string, timeout time.Duration) (*Addresses, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		addrs, err := Load(dir)
		if err == nil {
			return addrs, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("deployments not available after %s: %w", timeout, lastErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
}

// Validate rejects address sets with any zero entry.
func (a *Addresses) Validate() error {
	zero := common.Address{}
	if a.ChainA.BridgeLock == zero {
		return errors.New("chainA bridgeLock address missing")
	}
	if a.ChainA.GovernanceEmergency == zero {
		return errors.New("chainA governanceEmergency address missing")
	}
	if a.ChainB.WrappedToken == zero {
		return errors.New("chainB wrappedToken address missing")
	}
	if a.ChainB.Governance == zero {
		return errors.New("chainB governance address missing")
	}
	return nil
}

func readJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
