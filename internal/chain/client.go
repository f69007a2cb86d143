package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	subscribePollInterval = 1 * time.Second
	receiptPollInterval   = 500 * time.Millisecond
)

// RPC captures the subset of ethclient used by the relayer.
type RPC interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client abstracts one ledger endpoint: head reads, historical event
// queries, a polling subscription, and signed transaction submission.
type Client struct {
	name string
	rpc  RPC
	log  *slog.Logger

	key  *ecdsa.PrivateKey
	from common.Address

	// submitMu serialises the nonce-fetch/sign/send path so the account
	// nonce is strictly increasing even when several pipelines target
	// this chain.
	submitMu sync.Mutex

	chainIDMu sync.Mutex
	chainID   *big.Int
}

// Dial connects to an EVM endpoint and prepares the signing account.
func Dial(name, rpcURL, signingKeyHex string, log *slog.Logger) (*Client, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", name, err)
	}
	return NewClient(name, ec, signingKeyHex, log)
}

// NewClient wraps an existing RPC connection; used directly by tests.
func NewClient(name string, rpc RPC, signingKeyHex string, log *slog.Logger) (*Client, error) {
	key, err := crypto.HexToECDSA(signingKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return &Client{
		name: name,
		rpc:  rpc,
		log:  log.With("chain", name),
		key:  key,
		from: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Name returns the chain label ("chainA", "chainB").
func (c *Client) Name() string { return c.name }

// Sender returns the relayer's signing address.
func (c *Client) Sender() common.Address { return c.from }

// HeadBlock returns the latest block number, freshly polled.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	header, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s head block: %w", c.name, err)
	}
	return header.Number.Uint64(), nil
}

// WaitReady polls the endpoint until a head-block query succeeds or retries
// are exhausted.
func (c *Client) WaitReady(ctx context.Context, maxRetries int, interval time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		head, err := c.HeadBlock(ctx)
		if err == nil {
			c.log.Info("rpc ready", "head", head)
			return nil
		}
		lastErr = err
		c.log.Warn("rpc not ready", "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("%s not ready after %d attempts: %w", c.name, maxRetries, lastErr)
}

// QueryEvents scans [fromBlock, toBlock] inclusive for logs of one event
// signature at one address, in ascending (block, logIndex) order.
func (c *Client) QueryEvents(ctx context.Context, address common.Address, topic0 common.Hash, fromBlock, toBlock uint64) ([]types.Log, error) {
	logs, err := c.rpc.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic0}},
	})
	if err != nil {
		return nil, fmt.Errorf("%s filter logs: %w", c.name, err)
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	return logs, nil
}

// Subscribe delivers new logs for the given address/signature to handler,
// polling the head once per second. It blocks until ctx is cancelled.
// Blocks at or below fromBlock are not delivered; duplicates across a
// restart boundary are possible and must be tolerated downstream.
func (c *Client) Subscribe(ctx context.Context, address common.Address, topic0 common.Hash, fromBlock uint64, handler func(types.Log)) {
	next := fromBlock + 1
	ticker := time.NewTicker(subscribePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		head, err := c.HeadBlock(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("subscription head poll failed", "error", err)
			}
			continue
		}
		if head < next {
			continue
		}
		logs, err := c.QueryEvents(ctx, address, topic0, next, head)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("subscription scan failed", "from", next, "to", head, "error", err)
			}
			continue
		}
		for _, lg := range logs {
			handler(lg)
		}
		next = head + 1
	}
}

// SubmitTx signs and submits a transaction to the given contract, then
// waits until it is mined. The returned receipt has Status checked; a
// reverted-on-chain transaction is surfaced as an error.
func (c *Client) SubmitTx(ctx context.Context, to common.Address, calldata []byte) (common.Hash, *types.Receipt, error) {
	chainID, err := c.getChainID(ctx)
	if err != nil {
		return common.Hash{}, nil, err
	}

	tx, err := c.signAndSend(ctx, chainID, to, calldata)
	if err != nil {
		return common.Hash{}, nil, err
	}

	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return tx.Hash(), nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash(), receipt, fmt.Errorf("%s tx %s reverted on-chain", c.name, tx.Hash().Hex())
	}
	return tx.Hash(), receipt, nil
}

func (c *Client) signAndSend(ctx context.Context, chainID *big.Int, to common.Address, calldata []byte) (*types.Transaction, error) {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	nonce, err := c.rpc.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("%s pending nonce: %w", c.name, err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s gas price: %w", c.name, err)
	}
	// A revert surfaces here with its error data attached; callers
	// classify it before deciding whether to retry.
	gas, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &to,
		Data: calldata,
	})
	if err != nil {
		return nil, fmt.Errorf("%s estimate gas: %w", c.name, err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, calldata)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("%s sign tx: %w", c.name, err)
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%s send tx: %w", c.name, err)
	}
	return signed, nil
}

func (c *Client) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.log.Debug("receipt poll", "tx", txHash.Hex(), "error", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) getChainID(ctx context.Context) (*big.Int, error) {
	c.chainIDMu.Lock()
	defer c.chainIDMu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s chain id: %w", c.name, err)
	}
	c.chainID = id
	return id, nil
}
