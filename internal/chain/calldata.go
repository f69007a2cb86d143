package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Destination function signatures. Selectors are always recomputed from
// these canonical strings, never hard-coded.
const (
	SigMintWrapped = "mintWrapped(address,uint256,uint256)"
	SigUnlock      = "unlock(address,uint256,uint256)"
	SigPauseBridge = "pauseBridge()"
)

var (
	addressT = mustNewType("address")
	uint256T = mustNewType("uint256")

	transferArgs = abi.Arguments{{Type: addressT}, {Type: uint256T}, {Type: uint256T}}
)

// Selector returns the 4-byte function selector for a canonical signature.
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// PackMintWrapped builds calldata for mintWrapped(user, amount, nonce).
func PackMintWrapped(user common.Address, amount *big.Int, nonce uint64) ([]byte, error) {
	return packTransferCall(SigMintWrapped, user, amount, nonce)
}

// PackUnlock builds calldata for unlock(user, amount, nonce).
func PackUnlock(user common.Address, amount *big.Int, nonce uint64) ([]byte, error) {
	return packTransferCall(SigUnlock, user, amount, nonce)
}

// PackPauseBridge builds calldata for pauseBridge().
func PackPauseBridge() []byte {
	sel := Selector(SigPauseBridge)
	return sel[:]
}

func packTransferCall(signature string, user common.Address, amount *big.Int, nonce uint64) ([]byte, error) {
	encoded, err := transferArgs.Pack(user, amount, new(big.Int).SetUint64(nonce))
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", signature, err)
	}
	sel := Selector(signature)
	return append(sel[:], encoded...), nil
}
