package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vaultbridge/relayer/internal/alert"
	"github.com/vaultbridge/relayer/internal/chain"
	"github.com/vaultbridge/relayer/internal/confirm"
	"github.com/vaultbridge/relayer/internal/deployments"
	"github.com/vaultbridge/relayer/internal/metrics"
)

// Stream identifiers. Each pipeline exclusively owns its cursor and its
// processed-mark rows under these ids.
const (
	StreamLock       = "chainA_lock"
	StreamBurn       = "chainB_burn"
	StreamGovernance = "chainB_governance"
)

// Event kinds recorded in processed marks.
const (
	KindLocked         = "Locked"
	KindBurned         = "Burned"
	KindProposalPassed = "ProposalPassed"
)

// Deps is everything the stream constructors need.
type Deps struct {
	ChainA    *chain.Client
	ChainB    *chain.Client
	Addresses *deployments.Addresses
	Store     Store
	Gate      *confirm.Gate
	Log       *slog.Logger
	Metrics   *metrics.Metrics
	Notifier  alert.Notifier
}

// NewAll builds the three pipelines in a fixed order: lock, burn,
// governance.
func NewAll(d Deps) []*Pipeline {
	return []*Pipeline{NewLock(d), NewBurn(d), NewGovernance(d)}
}

// NewLock relays Locked events on chain A into mintWrapped calls on
// chain B.
func NewLock(d Deps) *Pipeline {
	return New(Config{
		StreamID:   StreamLock,
		Kind:       KindLocked,
		Source:     d.ChainA,
		SourceAddr: d.Addresses.ChainA.BridgeLock,
		Topic0:     chain.TopicLocked,
		Dest:       d.ChainB,
		DestAddr:   d.Addresses.ChainB.WrappedToken,
		Decode: func(lg types.Log) (Action, error) {
			payload, err := chain.DecodeTransfer(lg)
			if err != nil {
				return Action{}, err
			}
			calldata, err := chain.PackMintWrapped(payload.User, payload.Amount, payload.Nonce)
			if err != nil {
				return Action{}, err
			}
			return Action{Nonce: payload.Nonce, Calldata: calldata}, nil
		},
		Store:    d.Store,
		Gate:     d.Gate,
		Log:      d.Log,
		Metrics:  d.Metrics,
		Notifier: d.Notifier,
	})
}

// NewBurn relays Burned events on chain B into unlock calls on chain A.
func NewBurn(d Deps) *Pipeline {
	return New(Config{
		StreamID:   StreamBurn,
		Kind:       KindBurned,
		Source:     d.ChainB,
		SourceAddr: d.Addresses.ChainB.WrappedToken,
		Topic0:     chain.TopicBurned,
		Dest:       d.ChainA,
		DestAddr:   d.Addresses.ChainA.BridgeLock,
		Decode: func(lg types.Log) (Action, error) {
			payload, err := chain.DecodeTransfer(lg)
			if err != nil {
				return Action{}, err
			}
			calldata, err := chain.PackUnlock(payload.User, payload.Amount, payload.Nonce)
			if err != nil {
				return Action{}, err
			}
			return Action{Nonce: payload.Nonce, Calldata: calldata}, nil
		},
		Store:    d.Store,
		Gate:     d.Gate,
		Log:      d.Log,
		Metrics:  d.Metrics,
		Notifier: d.Notifier,
	})
}

// NewGovernance relays ProposalPassed events on chain B into emergency
// actions on chain A. The proposal data is calldata whose leading 4 bytes
// select the action; only pauseBridge is recognised today. Unknown
// selectors are acknowledged without a destination call so the proposal is
// not revisited.
func NewGovernance(d Deps) *Pipeline {
	dispatch := map[[4]byte][]byte{
		chain.Selector(chain.SigPauseBridge): chain.PackPauseBridge(),
	}
	return New(Config{
		StreamID:   StreamGovernance,
		Kind:       KindProposalPassed,
		Source:     d.ChainB,
		SourceAddr: d.Addresses.ChainB.Governance,
		Topic0:     chain.TopicProposalPassed,
		Dest:       d.ChainA,
		DestAddr:   d.Addresses.ChainA.GovernanceEmergency,
		Decode: func(lg types.Log) (Action, error) {
			payload, err := chain.DecodeProposal(lg)
			if err != nil {
				return Action{}, err
			}
			if len(payload.Data) < 4 {
				return Action{
					Nonce: payload.ProposalID,
					Skip:  true,
					Note:  "proposal calldata shorter than a selector",
				}, nil
			}
			var sel [4]byte
			copy(sel[:], payload.Data[:4])
			calldata, ok := dispatch[sel]
			if !ok {
				return Action{
					Nonce: payload.ProposalID,
					Skip:  true,
					Note:  fmt.Sprintf("unknown selector 0x%x", sel),
				}, nil
			}
			return Action{Nonce: payload.ProposalID, Calldata: calldata}, nil
		},
		Store:    d.Store,
		Gate:     d.Gate,
		Log:      d.Log,
		Metrics:  d.Metrics,
		Notifier: d.Notifier,
	})
}
