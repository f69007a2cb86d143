package chain

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestSelectorMatchesKeccak(t *testing.T) {
	for _, sig := range []string{SigMintWrapped, SigUnlock, SigPauseBridge} {
		want := crypto.Keccak256([]byte(sig))[:4]
		got := Selector(sig)
		if !bytes.Equal(got[:], want) {
			t.Errorf("Selector(%q) = %x, want %x", sig, got, want)
		}
	}
}

func TestPackTransferCalls(t *testing.T) {
	user := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	amount := big.NewInt(100)

	mint, err := PackMintWrapped(user, amount, 0)
	if err != nil {
		t.Fatalf("pack mint: %v", err)
	}
	unlock, err := PackUnlock(user, amount, 0)
	if err != nil {
		t.Fatalf("pack unlock: %v", err)
	}

	// selector + 3 words
	if len(mint) != 4+3*32 {
		t.Errorf("mint calldata length = %d", len(mint))
	}
	sel := Selector(SigMintWrapped)
	if !bytes.Equal(mint[:4], sel[:]) {
		t.Errorf("mint selector = %x", mint[:4])
	}
	// Same arguments, different selector.
	if bytes.Equal(mint[:4], unlock[:4]) {
		t.Error("mint and unlock selectors must differ")
	}
	if !bytes.Equal(mint[4:], unlock[4:]) {
		t.Error("argument encoding should be identical")
	}

	// user lands left-padded in the first argument word.
	if !bytes.Equal(mint[4+12:4+32], user.Bytes()) {
		t.Errorf("user word = %x", mint[4:4+32])
	}
}

func TestPackPauseBridge(t *testing.T) {
	calldata := PackPauseBridge()
	if len(calldata) != 4 {
		t.Fatalf("pauseBridge calldata length = %d, want 4", len(calldata))
	}
	sel := Selector(SigPauseBridge)
	if !bytes.Equal(calldata, sel[:]) {
		t.Errorf("calldata = %x, want %x", calldata, sel)
	}
}
