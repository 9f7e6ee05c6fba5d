package liquid

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lqwallet/lqkeys/address"
	"github.com/lqwallet/lqkeys/confidential"
	"github.com/lqwallet/lqkeys/errorcodes"
	"github.com/lqwallet/lqkeys/keychain"
	"github.com/lqwallet/lqkeys/session"
	"github.com/lqwallet/lqkeys/slip77"
	"github.com/lqwallet/lqkeys/zkp"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon about"

var testPath = keychain.Path{
	keychain.HardenedKeyStart | 44, keychain.HardenedKeyStart | 1,
	keychain.HardenedKeyStart, 0, 0,
}

type harness struct {
	handlers *Handlers
	session  *session.Session
}

func newHarness(t *testing.T, mnemonic string) *harness {
	t.Helper()

	backend, err := zkp.NewSecp256k1ZKP()
	require.NoError(t, err)
	t.Cleanup(backend.Close)

	s := session.New(&session.Config{
		Storage:    session.NewMnemonicStorage(mnemonic),
		Passphrase: session.StaticPassphrase(""),
	})
	t.Cleanup(s.Close)

	return &harness{
		handlers: New(&Config{
			Session: s,
			Engine:  backend,
			Params:  &address.RegtestParams,
		}),
		session: s,
	}
}

func (h *harness) pubKeyAt(t *testing.T, path keychain.Path) []byte {
	t.Helper()

	nss, err := Namespaces(MsgGetBlindedAddress)
	require.NoError(t, err)

	k, err := h.session.Keychain(context.Background(), nss)
	require.NoError(t, err)
	defer k.Zero()

	node, err := k.Derive(path, keychain.CurveSecp256k1)
	require.NoError(t, err)
	defer node.Zero()

	pub, err := node.PublicKey()
	require.NoError(t, err)

	return pub
}

// TestRegistry asserts every message type is registered and handed a copy of
// its namespaces.
func TestRegistry(t *testing.T) {
	t.Parallel()

	for _, msg := range MessageTypes() {
		nss, err := Namespaces(msg)
		require.NoError(t, err, msg.String())
		require.Len(t, nss, 1)
		require.Equal(t, keychain.CurveSecp256k1, nss[0].Curve)

		nss[0].Curve = keychain.CurveEd25519
	}

	nss, err := Namespaces(MsgBlindTx)
	require.NoError(t, err)
	require.Equal(t, keychain.CurveSecp256k1, nss[0].Curve)

	_, err = Namespaces(MessageType(999))
	require.ErrorIs(t, err, errorcodes.ErrInvalidInput)
}

// TestGetBlindedAddress decodes the returned address and checks it carries
// the blinding key of its own output script.
func TestGetBlindedAddress(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testMnemonic)
	ctx := context.Background()

	for _, st := range []address.ScriptType{
		address.SpendAddress, address.SpendP2SHWitness,
	} {
		path := append(keychain.Path{}, testPath...)
		if st == address.SpendP2SHWitness {
			path[0] = keychain.HardenedKeyStart | 49
		}

		addr, err := h.handlers.GetBlindedAddress(
			ctx, &GetBlindedAddressRequest{
				AddressN:   path,
				ScriptType: st,
				Network:    fn.None[string](),
			},
		)
		require.NoError(t, err)

		payload, version, err := base58.CheckDecode(addr)
		require.NoError(t, err)
		require.Equal(t, address.RegtestParams.Confidential, version)
		require.Len(t, payload, 1+33+20)

		script, err := address.OutputScript(h.pubKeyAt(t, path), st)
		require.NoError(t, err)
		require.Equal(t, script.Hash, payload[34:])

		blindingPub, err := h.handlers.GetBlindingPubKey(
			ctx, &GetBlindingPubKeyRequest{
				ScriptPubkey: script.BlindingScript(),
			},
		)
		require.NoError(t, err)
		require.Equal(t, blindingPub[:], payload[1:34])
	}
}

// TestGetBlindedAddressRejects covers the requests refused before any key
// is derived.
func TestGetBlindedAddressRejects(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testMnemonic)

	liquidPath := append(keychain.Path{}, testPath...)
	liquidPath[1] = keychain.HardenedKeyStart | 1776

	testCases := []struct {
		name string
		req  *GetBlindedAddressRequest
		err  error
	}{{
		name: "coin type of other network",
		req: &GetBlindedAddressRequest{
			AddressN:   liquidPath,
			ScriptType: address.SpendAddress,
		},
		err: errorcodes.ErrAccessDenied,
	}, {
		name: "purpose of other script type",
		req: &GetBlindedAddressRequest{
			AddressN:   testPath,
			ScriptType: address.SpendP2SHWitness,
		},
		err: errorcodes.ErrAccessDenied,
	}, {
		name: "network override",
		req: &GetBlindedAddressRequest{
			AddressN:   testPath,
			ScriptType: address.SpendAddress,
			Network:    fn.Some("liquid"),
		},
		err: errorcodes.ErrAccessDenied,
	}, {
		name: "unknown network",
		req: &GetBlindedAddressRequest{
			AddressN:   testPath,
			ScriptType: address.SpendAddress,
			Network:    fn.Some("bitcoin"),
		},
		err: address.ErrUnknownNetwork,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.handlers.GetBlindedAddress(
				context.Background(), tc.req,
			)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

// TestUninitializedDevice asserts every handler fails without a mnemonic.
func TestUninitializedDevice(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	ctx := context.Background()

	_, err := h.handlers.GetBlindedAddress(ctx, &GetBlindedAddressRequest{
		AddressN:   testPath,
		ScriptType: address.SpendAddress,
	})
	require.ErrorIs(t, err, errorcodes.ErrUninitializedDevice)

	_, err = h.handlers.GetBlindingPubKey(ctx, &GetBlindingPubKeyRequest{
		ScriptPubkey: []byte{0x51},
	})
	require.ErrorIs(t, err, errorcodes.ErrUninitializedDevice)

	_, err = h.handlers.GetRangeProofNonce(
		ctx, &GetRangeProofNonceRequest{ScriptPubkey: []byte{0x51}},
	)
	require.ErrorIs(t, err, errorcodes.ErrUninitializedDevice)

	_, err = h.handlers.BlindTx(ctx, &BlindTxRequest{})
	require.ErrorIs(t, err, errorcodes.ErrUninitializedDevice)

	_, err = h.handlers.UnblindOutput(ctx, &UnblindOutputRequest{})
	require.ErrorIs(t, err, errorcodes.ErrUninitializedDevice)

	_, err = h.handlers.VerifyBalance(ctx, &VerifyBalanceRequest{})
	require.ErrorIs(t, err, errorcodes.ErrUninitializedDevice)
}

func scalar(b byte) [32]byte {
	var s [32]byte
	s[31] = b
	s[0] = 0x01

	return s
}

// TestBlindToWallet blinds an output to the wallet's own blinding key and
// recovers it with the wallet key, then checks the transaction balances.
func TestBlindToWallet(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testMnemonic)
	ctx := context.Background()

	script := []byte{0x00, 0x14, 0x01, 0x02, 0x03}

	walletPub, err := h.handlers.GetBlindingPubKey(
		ctx, &GetBlindingPubKeyRequest{ScriptPubkey: script},
	)
	require.NoError(t, err)

	asset := scalar(0xaa)
	input := confidential.ConfidentialAmount{
		Value:      100000,
		Asset:      asset,
		ValueBlind: scalar(1),
		AssetBlind: scalar(2),
	}
	output := confidential.ConfidentialAmount{
		Value:      90000,
		Asset:      asset,
		ValueBlind: scalar(3),
		AssetBlind: scalar(4),
	}
	ephemeral := scalar(5)
	fee := confidential.ExplicitAmount{Value: 10000, Asset: asset}

	blinded, err := h.handlers.BlindTx(ctx, &BlindTxRequest{
		Inputs: []confidential.ConfidentialAmount{input},
		Outputs: []confidential.OutputToBlind{{
			Amount:       output,
			EcdhPrivkey:  ephemeral,
			EcdhPubkey:   walletPub,
			ScriptPubkey: script,
			RandomSeed:   scalar(6),
		}},
	})
	require.NoError(t, err)
	require.Len(t, blinded, 1)

	// The sender and the wallet agree on the nonce.
	ephemeralPriv, _ := btcec.PrivKeyFromBytes(ephemeral[:])
	want, err := slip77.RangeProofNonce(ephemeralPriv, walletPub[:])
	require.NoError(t, err)

	nonce, err := h.handlers.GetRangeProofNonce(
		ctx, &GetRangeProofNonceRequest{
			EcdhPubkey:   blinded[0].EcdhPubkey[:],
			ScriptPubkey: script,
		},
	)
	require.NoError(t, err)
	require.Equal(t, want, nonce)

	got, err := h.handlers.UnblindOutput(ctx, &UnblindOutputRequest{
		Blinded:     blinded[0],
		EcdhPrivkey: fn.None[[32]byte](),
	})
	require.NoError(t, err)
	require.Equal(t, output.Value, got.Value)
	require.Equal(t, output.Asset, got.Asset)
	require.Equal(t, output.AssetBlind, got.AssetBlind)

	// The single output carries the solved value blind, so the balance
	// only holds with the recovered blind and the fee.
	ok, err := h.handlers.VerifyBalance(ctx, &VerifyBalanceRequest{
		Inputs:          []confidential.ConfidentialAmount{input},
		Outputs:         blinded,
		ExplicitOutputs: []confidential.ExplicitAmount{fee},
	})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.handlers.VerifyBalance(ctx, &VerifyBalanceRequest{
		Inputs:  []confidential.ConfidentialAmount{input},
		Outputs: blinded,
	})
	require.NoError(t, err)
	require.False(t, ok)

	// A wallet with another seed cannot unblind the output.
	other := newHarness(t, "legal winner thank year wave sausage worth "+
		"useful legal winner thank yellow")
	_, err = other.handlers.UnblindOutput(ctx, &UnblindOutputRequest{
		Blinded:     blinded[0],
		EcdhPrivkey: fn.None[[32]byte](),
	})
	require.ErrorIs(t, err, errorcodes.ErrProofFailure)
}
