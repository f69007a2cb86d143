package pipeline

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vaultbridge/relayer/internal/chain"
	"github.com/vaultbridge/relayer/internal/confirm"
	"github.com/vaultbridge/relayer/internal/deployments"
	"github.com/vaultbridge/relayer/internal/logging"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// fakeRPC is a minimal in-memory ledger endpoint.
type fakeRPC struct {
	mu   sync.Mutex
	head uint64
	logs []types.Log

	nonce    uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

func newLedger(head uint64, logs ...types.Log) *fakeRPC {
	return &fakeRPC{head: head, logs: logs, receipts: map[common.Hash]*types.Receipt{}}
}

func (f *fakeRPC) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.head
	if number != nil {
		n = number.Uint64()
	}
	return &types.Header{Number: new(big.Int).SetUint64(n)}, nil
}

func (f *fakeRPC) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if len(q.Addresses) > 0 && lg.Address != q.Addresses[0] {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && (len(lg.Topics) == 0 || lg.Topics[0] != q.Topics[0][0]) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (f *fakeRPC) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1337), nil }

func (f *fakeRPC) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeRPC) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeRPC) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeRPC) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.nonce++
	f.receipts[tx.Hash()] = &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash()}
	return nil
}

func (f *fakeRPC) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

var testAddresses = &deployments.Addresses{
	ChainA: deployments.ChainA{
		BridgeLock:          common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		GovernanceEmergency: common.HexToAddress("0x00000000000000000000000000000000000000a2"),
	},
	ChainB: deployments.ChainB{
		WrappedToken: common.HexToAddress("0x00000000000000000000000000000000000000b1"),
		Governance:   common.HexToAddress("0x00000000000000000000000000000000000000b2"),
	},
}

func newDeps(t *testing.T, rpcA, rpcB *fakeRPC) Deps {
	t.Helper()
	log := logging.NewWithLevel("error")
	chainA, err := chain.NewClient("chainA", rpcA, testKey, log)
	if err != nil {
		t.Fatalf("chainA client: %v", err)
	}
	chainB, err := chain.NewClient("chainB", rpcB, testKey, log)
	if err != nil {
		t.Fatalf("chainB client: %v", err)
	}
	return Deps{
		ChainA:    chainA,
		ChainB:    chainB,
		Addresses: testAddresses,
		Store:     newTestStore(t),
		Gate:      &confirm.Gate{Depth: 3, PollInterval: time.Millisecond},
		Log:       log,
	}
}

func lockedLogAt(addr common.Address, block, nonce uint64, amount int64) types.Log {
	lg := lockLog(block, nonce, amount)
	lg.Address = addr
	return lg
}

func burnedLogAt(addr common.Address, block, nonce uint64, amount int64) types.Log {
	lg := lockLog(block, nonce, amount)
	lg.Address = addr
	lg.Topics[0] = chain.TopicBurned
	return lg
}

func proposalLogAt(t *testing.T, addr common.Address, block, proposalID uint64, calldata []byte) types.Log {
	t.Helper()
	bytesT, err := abi.NewType("bytes", "", nil)
	if err != nil {
		t.Fatalf("bytes type: %v", err)
	}
	encoded, err := abi.Arguments{{Type: bytesT}}.Pack(calldata)
	if err != nil {
		t.Fatalf("pack proposal data: %v", err)
	}
	return types.Log{
		Address: addr,
		Topics: []common.Hash{
			chain.TopicProposalPassed,
			common.BytesToHash(common.LeftPadBytes(new(big.Int).SetUint64(proposalID).Bytes(), 32)),
		},
		Data:        encoded,
		BlockNumber: block,
	}
}

func TestLockStreamMintsOnChainB(t *testing.T) {
	rpcA := newLedger(55, lockedLogAt(testAddresses.ChainA.BridgeLock, 50, 0, 100))
	rpcB := newLedger(10)
	deps := newDeps(t, rpcA, rpcB)

	if err := NewLock(deps).Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if len(rpcB.sent) != 1 {
		t.Fatalf("chain B received %d txs", len(rpcB.sent))
	}
	tx := rpcB.sent[0]
	if *tx.To() != testAddresses.ChainB.WrappedToken {
		t.Errorf("tx to %s", tx.To().Hex())
	}
	sel := chain.Selector(chain.SigMintWrapped)
	if string(tx.Data()[:4]) != string(sel[:]) {
		t.Errorf("selector %x", tx.Data()[:4])
	}
	if len(rpcA.sent) != 0 {
		t.Error("lock stream must not submit to chain A")
	}
}

func TestBurnStreamUnlocksOnChainA(t *testing.T) {
	rpcA := newLedger(10)
	rpcB := newLedger(125, burnedLogAt(testAddresses.ChainB.WrappedToken, 120, 0, 100))
	deps := newDeps(t, rpcA, rpcB)

	if err := NewBurn(deps).Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if len(rpcA.sent) != 1 {
		t.Fatalf("chain A received %d txs", len(rpcA.sent))
	}
	tx := rpcA.sent[0]
	if *tx.To() != testAddresses.ChainA.BridgeLock {
		t.Errorf("tx to %s", tx.To().Hex())
	}
	sel := chain.Selector(chain.SigUnlock)
	if string(tx.Data()[:4]) != string(sel[:]) {
		t.Errorf("selector %x", tx.Data()[:4])
	}
}

func TestGovernancePauseDispatch(t *testing.T) {
	rpcA := newLedger(10)
	rpcB := newLedger(210, proposalLogAt(t, testAddresses.ChainB.Governance, 200, 0, chain.PackPauseBridge()))
	deps := newDeps(t, rpcA, rpcB)

	if err := NewGovernance(deps).Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if len(rpcA.sent) != 1 {
		t.Fatalf("chain A received %d txs", len(rpcA.sent))
	}
	tx := rpcA.sent[0]
	if *tx.To() != testAddresses.ChainA.GovernanceEmergency {
		t.Errorf("tx to %s", tx.To().Hex())
	}
	sel := chain.Selector(chain.SigPauseBridge)
	if string(tx.Data()) != string(sel[:]) {
		t.Errorf("calldata %x", tx.Data())
	}
}

func TestGovernanceUnknownSelectorSkipped(t *testing.T) {
	rpcA := newLedger(10)
	rpcB := newLedger(210, proposalLogAt(t, testAddresses.ChainB.Governance, 200, 1, []byte{0xde, 0xad, 0xbe, 0xef}))
	deps := newDeps(t, rpcA, rpcB)

	pipe := NewGovernance(deps)
	if err := pipe.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if len(rpcA.sent) != 0 {
		t.Fatalf("unknown selector caused %d destination txs", len(rpcA.sent))
	}
	// The proposal is marked so it is not revisited.
	ctx := context.Background()
	done, err := deps.Store.IsProcessed(ctx, StreamGovernance, 1, KindProposalPassed)
	if err != nil || !done {
		t.Fatalf("unknown-selector proposal not marked: done=%v err=%v", done, err)
	}
}

func TestRoundTripLockThenBurn(t *testing.T) {
	// Scenario: lock 100 on chain A (nonce 0), then burn 100 on chain B
	// (burn nonce 0). Both streams relay; each destination sees one tx.
	rpcA := newLedger(55, lockedLogAt(testAddresses.ChainA.BridgeLock, 50, 0, 100))
	rpcB := newLedger(125, burnedLogAt(testAddresses.ChainB.WrappedToken, 120, 0, 100))
	deps := newDeps(t, rpcA, rpcB)
	ctx := context.Background()

	if err := NewLock(deps).Recover(ctx); err != nil {
		t.Fatalf("lock recover: %v", err)
	}
	if err := NewBurn(deps).Recover(ctx); err != nil {
		t.Fatalf("burn recover: %v", err)
	}

	if len(rpcB.sent) != 1 || len(rpcA.sent) != 1 {
		t.Fatalf("txs: chainA=%d chainB=%d", len(rpcA.sent), len(rpcB.sent))
	}

	lockCursor, _ := deps.Store.GetCursor(ctx, StreamLock)
	burnCursor, _ := deps.Store.GetCursor(ctx, StreamBurn)
	if lockCursor < 50 || burnCursor < 120 {
		t.Fatalf("cursors not advanced: lock=%d burn=%d", lockCursor, burnCursor)
	}
}
