package chain

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// RevertKind classifies a failed destination submission.
type RevertKind int

const (
	// RevertNone: not a revert (transport failure, timeout, ...); retryable.
	RevertNone RevertKind = iota
	// RevertNonceAlreadyProcessed: the destination replay map has already
	// seen this nonce. Benign; the effect exists on-chain.
	RevertNonceAlreadyProcessed
	// RevertZeroAmount: the destination rejected a zero amount. A protocol
	// violation upstream; retrying cannot succeed.
	RevertZeroAmount
	// RevertAccessControl: the relayer account lacks the relayer role.
	// Operator intervention required.
	RevertAccessControl
	// RevertUnknown: some other revert.
	RevertUnknown
)

func (k RevertKind) String() string {
	switch k {
	case RevertNonceAlreadyProcessed:
		return "NonceAlreadyProcessed"
	case RevertZeroAmount:
		return "ZeroAmount"
	case RevertAccessControl:
		return "AccessControl"
	case RevertUnknown:
		return "Unknown"
	default:
		return "None"
	}
}

// Custom-error selectors of the destination contracts, computed from the
// canonical signatures.
var (
	selNonceAlreadyProcessed = errorSelector("NonceAlreadyProcessed(uint256)")
	selZeroAmount            = errorSelector("ZeroAmount()")
	selAccessControl         = errorSelector("AccessControlUnauthorizedAccount(address,bytes32)")
)

func errorSelector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// dataError is the shape go-ethereum's rpc package gives JSON-RPC errors
// carrying revert data.
type dataError interface {
	Error() string
	ErrorData() interface{}
}

// ClassifyRevert inspects a submission error and maps it onto the
// destination-revert taxonomy. Errors with no recognisable revert data
// return RevertNone and should be treated as transient.
func ClassifyRevert(err error) RevertKind {
	if err == nil {
		return RevertNone
	}

	if data, ok := revertData(err); ok && len(data) >= 4 {
		var sel [4]byte
		copy(sel[:], data[:4])
		switch sel {
		case selNonceAlreadyProcessed:
			return RevertNonceAlreadyProcessed
		case selZeroAmount:
			return RevertZeroAmount
		case selAccessControl:
			return RevertAccessControl
		}
		return RevertUnknown
	}

	// Fallback for nodes that surface the decoded error name in the
	// message instead of structured data.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NonceAlreadyProcessed"):
		return RevertNonceAlreadyProcessed
	case strings.Contains(msg, "ZeroAmount"):
		return RevertZeroAmount
	case strings.Contains(msg, "AccessControl"), strings.Contains(msg, "missing role"):
		return RevertAccessControl
	case strings.Contains(msg, "execution reverted"), strings.Contains(msg, "reverted on-chain"):
		return RevertUnknown
	}
	return RevertNone
}

func revertData(err error) ([]byte, bool) {
	for err != nil {
		if de, ok := err.(dataError); ok {
			if raw, ok := de.ErrorData().(string); ok {
				data, decErr := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
				if decErr == nil && len(data) > 0 {
					return data, true
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return nil, false
}

// IsTransient reports whether an error looks like a transport-level failure
// worth retrying: connection refused, timeouts, 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"temporarily unavailable",
		"eof",
		"502", "503", "504",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
