package confidential

import (
	"encoding/hex"
	"os"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lqwallet/lqkeys/errorcodes"
	"github.com/lqwallet/lqkeys/slip77"
	"github.com/lqwallet/lqkeys/zkp"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// blindVectors is the reference blinding scenario: one input, two blinded
// outputs and two explicit outputs of the same asset.
type blindVectors struct {
	inputs          []ConfidentialAmount
	outputs         []OutputToBlind
	explicit        []ExplicitAmount
	blinded         []BlindedOutput
	unblindPrivkeys [][32]byte
}

func hex32(t *testing.T, r gjson.Result) [32]byte {
	t.Helper()

	b, err := hex.DecodeString(r.String())
	require.NoError(t, err)
	require.Len(t, b, 32)

	return [32]byte(b)
}

func hex33(t *testing.T, r gjson.Result) [33]byte {
	t.Helper()

	b, err := hex.DecodeString(r.String())
	require.NoError(t, err)
	require.Len(t, b, 33)

	return [33]byte(b)
}

func hexBytes(t *testing.T, r gjson.Result) []byte {
	t.Helper()

	b, err := hex.DecodeString(r.String())
	require.NoError(t, err)

	return b
}

func loadBlindVectors(t *testing.T) *blindVectors {
	t.Helper()

	raw, err := os.ReadFile("testdata/blind_vectors.json")
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(raw))

	doc := gjson.ParseBytes(raw)
	asset := hex32(t, doc.Get("asset"))

	var v blindVectors
	for _, in := range doc.Get("inputs").Array() {
		v.inputs = append(v.inputs, ConfidentialAmount{
			Value:      in.Get("value").Uint(),
			Asset:      asset,
			ValueBlind: hex32(t, in.Get("value_blind")),
			AssetBlind: hex32(t, in.Get("asset_blind")),
		})
	}

	for _, out := range doc.Get("outputs").Array() {
		v.outputs = append(v.outputs, OutputToBlind{
			Amount: ConfidentialAmount{
				Value:      out.Get("value").Uint(),
				Asset:      asset,
				ValueBlind: hex32(t, out.Get("value_blind")),
				AssetBlind: hex32(t, out.Get("asset_blind")),
			},
			EcdhPrivkey:  hex32(t, out.Get("ecdh_privkey")),
			EcdhPubkey:   hex33(t, out.Get("ecdh_pubkey")),
			ScriptPubkey: hexBytes(t, out.Get("script_pubkey")),
			RandomSeed:   hex32(t, out.Get("random_seed")),
		})

		blinded := out.Get("blinded")
		v.blinded = append(v.blinded, BlindedOutput{
			ConfValue:       hex33(t, blinded.Get("conf_value")),
			ConfAsset:       hex33(t, blinded.Get("conf_asset")),
			EcdhPubkey:      hex33(t, blinded.Get("ecdh_pubkey")),
			ScriptPubkey:    hexBytes(t, out.Get("script_pubkey")),
			RangeProof:      hexBytes(t, blinded.Get("range_proof")),
			SurjectionProof: hexBytes(t, blinded.Get("surjection_proof")),
		})

		v.unblindPrivkeys = append(
			v.unblindPrivkeys, hex32(t, out.Get("unblind_privkey")),
		)
	}

	for _, x := range doc.Get("explicit_outputs").Array() {
		v.explicit = append(v.explicit, ExplicitAmount{
			Value: x.Get("value").Uint(),
			Asset: asset,
		})
	}

	return &v
}

func newTestEngine(t *testing.T, deriver *slip77.Deriver) *Engine {
	t.Helper()

	backend, err := zkp.NewSecp256k1ZKP()
	require.NoError(t, err)
	t.Cleanup(backend.Close)

	return New(Config{Engine: backend, Deriver: deriver})
}

func inputGenerators(t *testing.T, e *Engine,
	inputs []ConfidentialAmount) [][33]byte {

	t.Helper()

	gens := make([][33]byte, 0, len(inputs))
	for _, in := range inputs {
		gen, err := in.Generator(e.cfg.Engine)
		require.NoError(t, err)
		gens = append(gens, gen)
	}

	return gens
}

// balanceSides assembles the committers of a blinded transaction: inputs on
// one side, explicit and blinded outputs on the other.
func balanceSides(inputs []ConfidentialAmount, explicit []ExplicitAmount,
	blinded []BlindedOutput) ([]Committer, []Committer) {

	ins := make([]Committer, 0, len(inputs))
	for _, in := range inputs {
		ins = append(ins, in)
	}

	outs := make([]Committer, 0, len(explicit)+len(blinded))
	for _, x := range explicit {
		outs = append(outs, x)
	}
	for i := range blinded {
		outs = append(outs, &blinded[i])
	}

	return ins, outs
}

// TestBlindReferenceVectors blinds the reference scenario and compares every
// output against the published bytes.
func TestBlindReferenceVectors(t *testing.T) {
	t.Parallel()

	v := loadBlindVectors(t)
	e := newTestEngine(t, nil)

	blinded, err := e.Blind(v.inputs, v.outputs)
	require.NoError(t, err)
	require.Len(t, blinded, len(v.blinded))

	gens := inputGenerators(t, e, v.inputs)
	for i := range blinded {
		want := v.blinded[i]
		got := blinded[i]

		require.Equal(t, want.ConfValue, got.ConfValue, "output %d", i)
		require.Equal(t, want.ConfAsset, got.ConfAsset, "output %d", i)
		require.Equal(t, want.EcdhPubkey, got.EcdhPubkey, "output %d", i)
		require.Equal(t, want.ScriptPubkey, got.ScriptPubkey)
		require.Equal(t, want.RangeProof, got.RangeProof, "output %d", i)
		require.Equal(
			t, want.SurjectionProof, got.SurjectionProof,
			"output %d", i,
		)

		require.NoError(t, e.VerifyOutput(&got, gens), "output %d", i)
	}

	ins, outs := balanceSides(v.inputs, v.explicit, blinded)
	ok, err := e.VerifyBalance(ins, outs)
	require.NoError(t, err)
	require.True(t, ok)

	// Dropping the fee breaks the balance.
	ins, outs = balanceSides(v.inputs, v.explicit[:1], blinded)
	ok, err = e.VerifyBalance(ins, outs)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestUnblindReferenceVectors unblinds the published outputs with the
// recipients' keys.
func TestUnblindReferenceVectors(t *testing.T) {
	t.Parallel()

	v := loadBlindVectors(t)
	e := newTestEngine(t, nil)

	gens := inputGenerators(t, e, v.inputs)
	last := len(v.blinded) - 1

	for i := range v.blinded {
		out := &v.blinded[i]
		require.NoError(t, e.VerifyOutput(out, gens), "output %d", i)

		amount, err := e.Unblind(out, fn.Some(v.unblindPrivkeys[i]))
		require.NoError(t, err, "output %d", i)

		want := v.outputs[i].Amount
		require.Equal(t, want.Value, amount.Value)
		require.Equal(t, want.Asset, amount.Asset)
		require.Equal(t, want.AssetBlind, amount.AssetBlind)
		if i != last {
			require.Equal(t, want.ValueBlind, amount.ValueBlind)
		}

		// Recommitting the cleartext reproduces the published value
		// commitment.
		commit, err := amount.Commitment(e.cfg.Engine)
		require.NoError(t, err)
		require.Equal(t, fn.Some(out.ConfValue), commit)
	}
}

// TestUnblindWrongKey asserts an output cannot be unblinded by anybody but
// its recipient, and that nothing is returned on failure.
func TestUnblindWrongKey(t *testing.T) {
	t.Parallel()

	v := loadBlindVectors(t)
	e := newTestEngine(t, nil)

	amount, err := e.Unblind(&v.blinded[0], fn.Some(v.unblindPrivkeys[1]))
	require.ErrorIs(t, err, ErrUnblind)
	require.ErrorIs(t, err, errorcodes.ErrProofFailure)
	require.Equal(t, ConfidentialAmount{}, amount)

	// Proofs are bound to their script.
	moved := v.blinded[0]
	moved.ScriptPubkey = v.blinded[1].ScriptPubkey
	_, err = e.Unblind(&moved, fn.Some(v.unblindPrivkeys[0]))
	require.ErrorIs(t, err, errorcodes.ErrProofFailure)

	// Without a deriver there is no key to unblind for the wallet.
	_, err = e.Unblind(&v.blinded[0], fn.None[[32]byte]())
	require.ErrorIs(t, err, ErrNoDeriver)
}

// TestUnblindForWallet blinds to the wallet's own blinding key and unblinds
// without an explicit key.
func TestUnblindForWallet(t *testing.T) {
	t.Parallel()

	v := loadBlindVectors(t)

	deriver := slip77.NewDeriver([32]byte{0x77})
	defer deriver.Zero()

	e := newTestEngine(t, deriver)

	outputs := append([]OutputToBlind(nil), v.outputs...)
	for i := range outputs {
		pub, err := deriver.PubKey(outputs[i].ScriptPubkey)
		require.NoError(t, err)
		outputs[i].EcdhPubkey = pub
	}

	blinded, err := e.Blind(v.inputs, outputs)
	require.NoError(t, err)

	for i := range blinded {
		amount, err := e.Unblind(&blinded[i], fn.None[[32]byte]())
		require.NoError(t, err)
		require.Equal(t, outputs[i].Amount.Value, amount.Value)
		require.Equal(t, outputs[i].Amount.AssetBlind, amount.AssetBlind)
	}
}

// TestBlindAllOrNothing asserts malformed requests fail as a whole.
func TestBlindAllOrNothing(t *testing.T) {
	t.Parallel()

	v := loadBlindVectors(t)
	e := newTestEngine(t, nil)

	mutate := func(f func(outs []OutputToBlind)) []OutputToBlind {
		outs := append([]OutputToBlind(nil), v.outputs...)
		f(outs)
		return outs
	}

	testCases := []struct {
		name    string
		inputs  []ConfidentialAmount
		outputs []OutputToBlind
		err     error
	}{{
		name:    "no inputs",
		outputs: v.outputs,
		err:     ErrNoInputs,
	}, {
		name:   "no outputs",
		inputs: v.inputs,
		err:    ErrNoOutputs,
	}, {
		name:   "zero value",
		inputs: v.inputs,
		outputs: mutate(func(outs []OutputToBlind) {
			outs[1].Amount.Value = 0
		}),
		err: ErrValueOutOfRange,
	}, {
		name:   "value too large",
		inputs: v.inputs,
		outputs: mutate(func(outs []OutputToBlind) {
			outs[0].Amount.Value = MaxValue
		}),
		err: ErrValueOutOfRange,
	}, {
		name:   "foreign asset",
		inputs: v.inputs,
		outputs: mutate(func(outs []OutputToBlind) {
			outs[0].Amount.Asset[0] ^= 0xff
		}),
		err: ErrUnknownAsset,
	}, {
		name:   "asset blind reused from input",
		inputs: v.inputs,
		outputs: mutate(func(outs []OutputToBlind) {
			outs[1].Amount.AssetBlind = v.inputs[0].AssetBlind
		}),
		err: ErrDegenerateBlind,
	}, {
		name:   "zero ecdh key",
		inputs: v.inputs,
		outputs: mutate(func(outs []OutputToBlind) {
			outs[1].EcdhPrivkey = [32]byte{}
		}),
		err: ErrInvalidScalar,
	}, {
		name:   "malformed recipient key",
		inputs: v.inputs,
		outputs: mutate(func(outs []OutputToBlind) {
			outs[0].EcdhPubkey[0] = 0x05
		}),
		err: slip77.ErrInvalidPubKey,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			blinded, err := e.Blind(tc.inputs, tc.outputs)
			require.ErrorIs(t, err, tc.err)
			require.ErrorIs(t, err, errorcodes.ErrInvalidInput)
			require.Nil(t, blinded)
		})
	}
}

// TestBlindSmallValues blinds outputs at the bottom of the value range and
// checks they verify, unblind and balance.
func TestBlindSmallValues(t *testing.T) {
	t.Parallel()

	v := loadBlindVectors(t)
	e := newTestEngine(t, nil)
	gens := inputGenerators(t, e, v.inputs)

	var total uint64
	for _, in := range v.inputs {
		total += in.Value
	}

	for value := uint64(MinValue); value <= 5; value++ {
		outputs := append([]OutputToBlind(nil), v.outputs...)
		outputs[0].Amount.Value = value
		outputs[1].Amount.Value = MinValue

		blinded, err := e.Blind(v.inputs, outputs)
		require.NoError(t, err, "value %d", value)

		for i := range blinded {
			require.NoError(t, e.VerifyOutput(&blinded[i], gens))

			amount, err := e.Unblind(
				&blinded[i], fn.Some(v.unblindPrivkeys[i]),
			)
			require.NoError(t, err)
			require.Equal(t, outputs[i].Amount.Value, amount.Value)
		}

		fee := []ExplicitAmount{{
			Value: total - value - MinValue,
			Asset: v.inputs[0].Asset,
		}}
		ins, outs := balanceSides(v.inputs, fee, blinded)
		ok, err := e.VerifyBalance(ins, outs)
		require.NoError(t, err)
		require.True(t, ok, "value %d", value)
	}
}

// TestVerifyOutputRejectsTampering asserts both proofs are checked.
func TestVerifyOutputRejectsTampering(t *testing.T) {
	t.Parallel()

	v := loadBlindVectors(t)
	e := newTestEngine(t, nil)
	gens := inputGenerators(t, e, v.inputs)

	rangeTampered := v.blinded[0]
	rangeTampered.RangeProof = append([]byte(nil),
		rangeTampered.RangeProof...)
	rangeTampered.RangeProof[100] ^= 0x01
	require.ErrorIs(
		t, e.VerifyOutput(&rangeTampered, gens), ErrInvalidRangeProof,
	)

	// A surjection proof over a different input set does not verify.
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	foreign := ConfidentialAmount{Asset: [32]byte{1}}
	foreign.AssetBlind = [32]byte(other.Serialize())
	foreignGens := inputGenerators(t, e, []ConfidentialAmount{foreign})

	err = e.VerifyOutput(&v.blinded[0], foreignGens)
	require.ErrorIs(t, err, ErrInvalidSurjectionProof)
}
