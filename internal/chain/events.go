package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Source-event signatures observed by the relayer.
const (
	SigLocked         = "Locked(address,uint256,uint256)"
	SigBurned         = "Burned(address,uint256,uint256)"
	SigProposalPassed = "ProposalPassed(uint256,bytes)"
)

var (
	TopicLocked         = crypto.Keccak256Hash([]byte(SigLocked))
	TopicBurned         = crypto.Keccak256Hash([]byte(SigBurned))
	TopicProposalPassed = crypto.Keccak256Hash([]byte(SigProposalPassed))
)

var bytesT = mustNewType("bytes")

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// TransferPayload is the decoded body of a Locked or Burned event.
type TransferPayload struct {
	User   common.Address
	Amount *big.Int
	Nonce  uint64
}

// ProposalPayload is the decoded body of a ProposalPassed event. Data is
// ABI-encoded calldata whose first 4 bytes select the destination call.
type ProposalPayload struct {
	ProposalID uint64
	Data       []byte
}

// DecodeTransfer decodes a Locked/Burned log: the user is the single
// indexed topic, amount and nonce are the data words.
func DecodeTransfer(lg types.Log) (TransferPayload, error) {
	if len(lg.Topics) < 2 {
		return TransferPayload{}, fmt.Errorf("transfer log %s: missing user topic", lg.TxHash.Hex())
	}
	if len(lg.Data) < 64 {
		return TransferPayload{}, fmt.Errorf("transfer log %s: short data (%d bytes)", lg.TxHash.Hex(), len(lg.Data))
	}
	nonce := new(big.Int).SetBytes(lg.Data[32:64])
	if !nonce.IsUint64() {
		return TransferPayload{}, fmt.Errorf("transfer log %s: nonce exceeds uint64", lg.TxHash.Hex())
	}
	return TransferPayload{
		User:   common.BytesToAddress(lg.Topics[1].Bytes()),
		Amount: new(big.Int).SetBytes(lg.Data[:32]),
		Nonce:  nonce.Uint64(),
	}, nil
}

// DecodeProposal decodes a ProposalPassed log: the proposal id is the
// indexed topic, the data field is one ABI-encoded dynamic bytes argument.
func DecodeProposal(lg types.Log) (ProposalPayload, error) {
	if len(lg.Topics) < 2 {
		return ProposalPayload{}, fmt.Errorf("proposal log %s: missing proposalId topic", lg.TxHash.Hex())
	}
	id := new(big.Int).SetBytes(lg.Topics[1].Bytes())
	if !id.IsUint64() {
		return ProposalPayload{}, fmt.Errorf("proposal log %s: proposalId exceeds uint64", lg.TxHash.Hex())
	}
	args := abi.Arguments{{Type: bytesT}}
	values, err := args.UnpackValues(lg.Data)
	if err != nil {
		return ProposalPayload{}, fmt.Errorf("proposal log %s: unpack data: %w", lg.TxHash.Hex(), err)
	}
	data, ok := values[0].([]byte)
	if !ok {
		return ProposalPayload{}, fmt.Errorf("proposal log %s: data is not bytes", lg.TxHash.Hex())
	}
	return ProposalPayload{ProposalID: id.Uint64(), Data: data}, nil
}
