// Package liquid serves the confidential transaction requests of a device.
// Every handler builds a keychain restricted to the namespaces registered for
// its message type, validates untrusted paths before deriving and wipes the
// keychain before returning.
package liquid

import (
	"context"
	"fmt"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lqwallet/lqkeys/address"
	"github.com/lqwallet/lqkeys/confidential"
	"github.com/lqwallet/lqkeys/keychain"
	"github.com/lqwallet/lqkeys/lnutils"
	"github.com/lqwallet/lqkeys/session"
	"github.com/lqwallet/lqkeys/slip77"
	"github.com/lqwallet/lqkeys/zkp"
)

// Config holds the dependencies of the handlers.
type Config struct {
	// Session provides the keychains.
	Session *session.Session

	// Engine is the commitment engine used for blinding.
	Engine zkp.Engine

	// Params is the network used when a request names none.
	Params *address.Params
}

// Handlers serves the liquid messages.
type Handlers struct {
	cfg *Config
}

// New creates the liquid handlers.
func New(cfg *Config) *Handlers {
	return &Handlers{cfg: cfg}
}

// GetBlindedAddressRequest asks for the confidential address at a BIP-0044
// path.
type GetBlindedAddressRequest struct {
	// AddressN is the full derivation path of the spending key.
	AddressN keychain.Path

	// ScriptType selects the output script.
	ScriptType address.ScriptType

	// Network optionally overrides the configured network.
	Network fn.Option[string]
}

// GetBlindingPubKeyRequest asks for the SLIP-0077 blinding key of a script.
type GetBlindingPubKeyRequest struct {
	ScriptPubkey []byte
}

// GetRangeProofNonceRequest asks for the nonce shared with the creator of
// an output paying to ScriptPubkey.
type GetRangeProofNonceRequest struct {
	// EcdhPubkey is the ephemeral public key published with the output.
	EcdhPubkey []byte

	// ScriptPubkey selects the wallet blinding key.
	ScriptPubkey []byte
}

// BlindTxRequest lists the inputs and the outputs to blind against them.
type BlindTxRequest struct {
	Inputs  []confidential.ConfidentialAmount
	Outputs []confidential.OutputToBlind
}

// UnblindOutputRequest asks for the cleartext of a blinded output. Without
// an ECDH private key the wallet blinding key of the output script is used.
type UnblindOutputRequest struct {
	Blinded     confidential.BlindedOutput
	EcdhPrivkey fn.Option[[32]byte]
}

// VerifyBalanceRequest holds both sides of a transaction. Explicit outputs,
// such as the fee, count on the output side.
type VerifyBalanceRequest struct {
	Inputs          []confidential.ConfidentialAmount
	Outputs         []confidential.BlindedOutput
	ExplicitOutputs []confidential.ExplicitAmount
}

// withKeychain runs f with a keychain granted the namespaces of msg and
// wipes it afterwards.
func (h *Handlers) withKeychain(ctx context.Context, msg MessageType,
	f func(*keychain.Keychain) error) error {

	nss, err := Namespaces(msg)
	if err != nil {
		return err
	}

	k, err := h.cfg.Session.Keychain(ctx, nss)
	if err != nil {
		return err
	}
	defer k.Zero()

	log.Tracef("Serving %v with namespaces %v", msg,
		lnutils.NewLogClosure(func() string {
			names := lnutils.Map(nss, keychain.Namespace.String)
			return strings.Join(names, ", ")
		}))

	if err := f(k); err != nil {
		log.Debugf("%v failed: %v", msg, err)
		return err
	}

	return nil
}

// withEngine runs f with a blinding engine whose wallet deriver is taken
// from a keychain granted the namespaces of msg.
func (h *Handlers) withEngine(ctx context.Context, msg MessageType,
	f func(*confidential.Engine) error) error {

	return h.withKeychain(ctx, msg, func(k *keychain.Keychain) error {
		deriver, err := slip77.FromKeychain(k)
		if err != nil {
			return err
		}
		defer deriver.Zero()

		return f(confidential.New(confidential.Config{
			Engine:  h.cfg.Engine,
			Deriver: deriver,
		}))
	})
}

// params resolves the network of a request.
func (h *Handlers) params(network fn.Option[string]) (*address.Params,
	error) {

	if network.IsNone() {
		return h.cfg.Params, nil
	}

	return address.ParamsByName(network.UnsafeFromSome())
}

// GetBlindedAddress returns the confidential address of the key at the
// requested path.
func (h *Handlers) GetBlindedAddress(ctx context.Context,
	req *GetBlindedAddressRequest) (string, error) {

	params, err := h.params(req.Network)
	if err != nil {
		return "", err
	}

	if err := address.ValidateFullPath(
		req.AddressN, req.ScriptType, params,
	); err != nil {
		return "", err
	}

	var addr string
	err = h.withKeychain(ctx, MsgGetBlindedAddress,
		func(k *keychain.Keychain) error {
			curve := keychain.CurveSecp256k1
			if err := k.ValidatePath(req.AddressN, curve); err != nil {
				return err
			}

			node, err := k.Derive(req.AddressN, curve)
			if err != nil {
				return err
			}
			defer node.Zero()

			pub, err := node.PublicKey()
			if err != nil {
				return err
			}

			deriver, err := slip77.FromKeychain(k)
			if err != nil {
				return err
			}
			defer deriver.Zero()

			addr, err = address.Build(
				pub, req.ScriptType, deriver, params,
			)

			return err
		},
	)
	if err != nil {
		return "", err
	}

	log.Infof("Returned %v address at %v", req.ScriptType, req.AddressN)

	return addr, nil
}

// GetBlindingPubKey returns the wallet blinding public key of a script.
func (h *Handlers) GetBlindingPubKey(ctx context.Context,
	req *GetBlindingPubKeyRequest) ([33]byte, error) {

	var pub [33]byte
	err := h.withKeychain(ctx, MsgGetBlindingPubKey,
		func(k *keychain.Keychain) error {
			deriver, err := slip77.FromKeychain(k)
			if err != nil {
				return err
			}
			defer deriver.Zero()

			pub, err = deriver.PubKey(req.ScriptPubkey)
			if err != nil {
				return err
			}

			log.DebugS(ctx, "Derived blinding key",
				lnutils.LogScript("script", req.ScriptPubkey),
				lnutils.LogPubKey("pubkey", pub[:]))

			return nil
		},
	)

	return pub, err
}

// GetRangeProofNonce returns the range proof nonce of an output paying to
// the wallet.
func (h *Handlers) GetRangeProofNonce(ctx context.Context,
	req *GetRangeProofNonceRequest) ([32]byte, error) {

	var nonce [32]byte
	err := h.withKeychain(ctx, MsgGetRangeProofNonce,
		func(k *keychain.Keychain) error {
			deriver, err := slip77.FromKeychain(k)
			if err != nil {
				return err
			}
			defer deriver.Zero()

			nonce, err = deriver.RangeProofNonce(
				req.EcdhPubkey, req.ScriptPubkey,
			)

			return err
		},
	)

	return nonce, err
}

// BlindTx blinds every output of the request. The request's blinds and ECDH
// keys are wiped once the outputs are built.
func (h *Handlers) BlindTx(ctx context.Context,
	req *BlindTxRequest) ([]confidential.BlindedOutput, error) {

	defer wipeBlindRequest(req)

	var blinded []confidential.BlindedOutput
	err := h.withEngine(ctx, MsgBlindTx, func(e *confidential.Engine) error {
		var err error
		blinded, err = e.Blind(req.Inputs, req.Outputs)

		return err
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Blinded %d outputs", len(blinded))

	return blinded, nil
}

// UnblindOutput recovers the cleartext of a blinded output.
func (h *Handlers) UnblindOutput(ctx context.Context,
	req *UnblindOutputRequest) (confidential.ConfidentialAmount, error) {

	var amount confidential.ConfidentialAmount
	err := h.withEngine(ctx, MsgUnblindOutput,
		func(e *confidential.Engine) error {
			var err error
			amount, err = e.Unblind(&req.Blinded, req.EcdhPrivkey)

			return err
		},
	)

	return amount, err
}

// VerifyBalance checks that the commitments of both sides sum up.
func (h *Handlers) VerifyBalance(ctx context.Context,
	req *VerifyBalanceRequest) (bool, error) {

	inputs := lnutils.Map(req.Inputs,
		func(in confidential.ConfidentialAmount) confidential.Committer {
			return in
		},
	)

	outputs := make(
		[]confidential.Committer, 0,
		len(req.Outputs)+len(req.ExplicitOutputs),
	)
	for i := range req.Outputs {
		outputs = append(outputs, &req.Outputs[i])
	}
	for _, out := range req.ExplicitOutputs {
		outputs = append(outputs, out)
	}

	var ok bool
	err := h.withEngine(ctx, MsgVerifyBalance,
		func(e *confidential.Engine) error {
			var err error
			ok, err = e.VerifyBalance(inputs, outputs)
			if err != nil {
				return fmt.Errorf("unable to verify balance: %w",
					err)
			}

			return nil
		},
	)

	return ok, err
}

// wipeBlindRequest clears every secret of a blind request in place.
func wipeBlindRequest(req *BlindTxRequest) {
	for i := range req.Inputs {
		req.Inputs[i].Zero()
	}
	for i := range req.Outputs {
		req.Outputs[i].Amount.Zero()
		lnutils.Zero32(&req.Outputs[i].EcdhPrivkey)
		lnutils.Zero32(&req.Outputs[i].RandomSeed)
	}
}
