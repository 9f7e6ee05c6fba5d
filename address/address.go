// Package address builds confidential Base58Check addresses. A confidential
// address embeds, next to the usual script hash, the public blinding key the
// sender encrypts amounts to.
package address

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lqwallet/lqkeys/errorcodes"
	"github.com/lqwallet/lqkeys/keychain"
	"github.com/lqwallet/lqkeys/lnutils"
)

var (
	// ErrUnsupportedScriptType is returned for script types no confidential
	// address can be built for. There is no unblinded fallback.
	ErrUnsupportedScriptType = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "unsupported script type",
	)

	// ErrInvalidPubKey is returned when the key to build an address for is
	// not a compressed secp256k1 public key.
	ErrInvalidPubKey = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "invalid public key",
	)

	// ErrInvalidFullPath is returned when a key path does not follow the
	// BIP-0044 layout required for the script type.
	ErrInvalidFullPath = errorcodes.New(
		errorcodes.ErrCodeAccessDenied, "path does not match script "+
			"type layout",
	)
)

// ScriptType enumerates the output script types a confidential address can be
// built for.
type ScriptType uint8

const (
	// SpendAddress is a pay-to-pubkey-hash output.
	SpendAddress ScriptType = iota

	// SpendP2SHWitness is a pay-to-witness-pubkey-hash output nested in
	// pay-to-script-hash.
	SpendP2SHWitness
)

// String returns a human readable name of the script type.
func (s ScriptType) String() string {
	switch s {
	case SpendAddress:
		return "p2pkh"

	case SpendP2SHWitness:
		return "p2sh-p2wpkh"

	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseScriptType parses the String form of a script type.
func ParseScriptType(s string) (ScriptType, error) {
	switch s {
	case "p2pkh", "spendaddress":
		return SpendAddress, nil

	case "p2sh-p2wpkh", "spendp2shwitness":
		return SpendP2SHWitness, nil

	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedScriptType, s)
	}
}

// BlindingKeyDeriver derives the public blinding key of an output script.
type BlindingKeyDeriver interface {
	PubKey(script []byte) ([33]byte, error)
}

// Script describes the output script paying to a public key.
type Script struct {
	// PkScript is the output script.
	PkScript []byte

	// RedeemScript is the script committed to by a P2SH output, nil
	// otherwise.
	RedeemScript []byte

	// Hash is the 20 byte hash embedded in the address.
	Hash []byte

	// Type is the script type the script was built for.
	Type ScriptType
}

// BlindingScript returns the script the blinding key of the output is derived
// over: the witness program for P2SH-P2WPKH, the output script otherwise.
func (s *Script) BlindingScript() []byte {
	if s.Type == SpendP2SHWitness {
		return s.RedeemScript
	}

	return s.PkScript
}

// OutputScript builds the output script of the given type paying to pubKey.
func OutputScript(pubKey []byte, scriptType ScriptType) (*Script, error) {
	if len(pubKey) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidPubKey,
			len(pubKey))
	}
	if _, err := btcec.ParsePubKey(pubKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPubKey, err)
	}

	pubKeyHash := btcutil.Hash160(pubKey)

	switch scriptType {
	case SpendAddress:
		pkScript, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_DUP).
			AddOp(txscript.OP_HASH160).
			AddData(pubKeyHash).
			AddOp(txscript.OP_EQUALVERIFY).
			AddOp(txscript.OP_CHECKSIG).
			Script()
		if err != nil {
			return nil, err
		}

		return &Script{
			PkScript: pkScript,
			Hash:     pubKeyHash,
			Type:     scriptType,
		}, nil

	case SpendP2SHWitness:
		redeemScript, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(pubKeyHash).
			Script()
		if err != nil {
			return nil, err
		}

		scriptHash := btcutil.Hash160(redeemScript)
		pkScript, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_HASH160).
			AddData(scriptHash).
			AddOp(txscript.OP_EQUAL).
			Script()
		if err != nil {
			return nil, err
		}

		return &Script{
			PkScript:     pkScript,
			RedeemScript: redeemScript,
			Hash:         scriptHash,
			Type:         scriptType,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedScriptType,
			scriptType)
	}
}

// Build returns the confidential address of the given type paying to pubKey:
//
//	Base58Check(confidential || addrType || blindingPub || hash)
//
// The blinding key is derived over the script returned by BlindingScript.
func Build(pubKey []byte, scriptType ScriptType, deriver BlindingKeyDeriver,
	params *Params) (string, error) {

	script, err := OutputScript(pubKey, scriptType)
	if err != nil {
		return "", err
	}

	var addrType byte
	switch scriptType {
	case SpendAddress:
		addrType = params.PubKeyHash

	case SpendP2SHWitness:
		addrType = params.ScriptHash

	default:
		return "", fmt.Errorf("%w: %v", ErrUnsupportedScriptType,
			scriptType)
	}

	blindingPub, err := deriver.PubKey(script.BlindingScript())
	if err != nil {
		return "", fmt.Errorf("unable to derive blinding key: %w", err)
	}

	payload := make([]byte, 0, 1+len(blindingPub)+len(script.Hash))
	payload = append(payload, addrType)
	payload = append(payload, blindingPub[:]...)
	payload = append(payload, script.Hash...)

	addr := base58.CheckEncode(payload, params.Confidential)

	log.DebugS(context.Background(), "Built confidential address",
		"script_type", scriptType, "network", params.Name,
		lnutils.LogScript("blinding_script", script.BlindingScript()))

	return addr, nil
}

// ValidateFullPath checks that path follows the BIP-0044 layout for the
// script type on the network:
//
//	purpose' / coin_type' / account' / change / address_index
//
// with purpose 44' for P2PKH and 49' for P2SH-P2WPKH.
func ValidateFullPath(path keychain.Path, scriptType ScriptType,
	params *Params) error {

	var purpose uint32
	switch scriptType {
	case SpendAddress:
		purpose = 44

	case SpendP2SHWitness:
		purpose = 49

	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedScriptType,
			scriptType)
	}

	const (
		maxAccount      = 20
		maxAddressIndex = 1000000
	)

	h := keychain.HardenedKeyStart
	switch {
	case len(path) != 5:
		return fmt.Errorf("%w: %v has %d levels", ErrInvalidFullPath,
			path, len(path))

	case path[0] != h|purpose:
		return fmt.Errorf("%w: %v does not use purpose %d'",
			ErrInvalidFullPath, path, purpose)

	case path[1] != h|params.CoinType:
		return fmt.Errorf("%w: %v does not use coin type %d'",
			ErrInvalidFullPath, path, params.CoinType)

	case path[2] < h || path[2] > h|maxAccount:
		return fmt.Errorf("%w: %v has invalid account",
			ErrInvalidFullPath, path)

	case path[3] > 1:
		return fmt.Errorf("%w: %v has invalid change level",
			ErrInvalidFullPath, path)

	case path[4] > maxAddressIndex:
		return fmt.Errorf("%w: %v has invalid address index",
			ErrInvalidFullPath, path)
	}

	return nil
}
