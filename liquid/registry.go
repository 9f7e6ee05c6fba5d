package liquid

import (
	"fmt"

	"github.com/lqwallet/lqkeys/errorcodes"
	"github.com/lqwallet/lqkeys/keychain"
	"github.com/lqwallet/lqkeys/lnutils"
)

// MessageType identifies a request the liquid handlers serve.
type MessageType uint16

const (
	MsgGetBlindedAddress MessageType = iota + 1
	MsgGetBlindingPubKey
	MsgGetRangeProofNonce
	MsgBlindTx
	MsgUnblindOutput
	MsgVerifyBalance
)

// ErrUnknownMessage is returned for message types without a registered
// handler.
var ErrUnknownMessage = errorcodes.New(
	errorcodes.ErrCodeInvalidInput, "unknown message type",
)

// String returns the wire name of the message type.
func (m MessageType) String() string {
	switch m {
	case MsgGetBlindedAddress:
		return "LiquidGetBlindedAddress"
	case MsgGetBlindingPubKey:
		return "LiquidGetBlindingPubKey"
	case MsgGetRangeProofNonce:
		return "LiquidGetRangeProofNonce"
	case MsgBlindTx:
		return "LiquidBlindTx"
	case MsgUnblindOutput:
		return "LiquidUnblindOutput"
	case MsgVerifyBalance:
		return "LiquidVerifyBalance"
	default:
		return fmt.Sprintf("MessageType(%d)", uint16(m))
	}
}

// liquidNamespaces grants the whole secp256k1 tree. Every liquid message
// needs the master blinding key at m/10077' next to the account keys.
var liquidNamespaces = []keychain.Namespace{
	{Curve: keychain.CurveSecp256k1, Path: keychain.Path{}},
}

// registry maps each message type to the namespaces its keychain is granted.
var registry = map[MessageType][]keychain.Namespace{
	MsgGetBlindedAddress:  liquidNamespaces,
	MsgGetBlindingPubKey:  liquidNamespaces,
	MsgGetRangeProofNonce: liquidNamespaces,
	MsgBlindTx:            liquidNamespaces,
	MsgUnblindOutput:      liquidNamespaces,
	MsgVerifyBalance:      liquidNamespaces,
}

// Namespaces returns a copy of the namespaces granted to the message type.
func Namespaces(msg MessageType) ([]keychain.Namespace, error) {
	nss, ok := registry[msg]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMessage, msg)
	}

	return lnutils.Map(nss, func(ns keychain.Namespace) keychain.Namespace {
		return keychain.Namespace{
			Curve: ns.Curve,
			Path:  append(keychain.Path{}, ns.Path...),
		}
	}), nil
}

// MessageTypes returns every registered message type in wire order.
func MessageTypes() []MessageType {
	return []MessageType{
		MsgGetBlindedAddress, MsgGetBlindingPubKey,
		MsgGetRangeProofNonce, MsgBlindTx, MsgUnblindOutput,
		MsgVerifyBalance,
	}
}
