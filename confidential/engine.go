// Package confidential blinds transaction outputs, unblinds outputs addressed
// to the wallet and checks that confidential transactions balance.
package confidential

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lqwallet/lqkeys/errorcodes"
	"github.com/lqwallet/lqkeys/lnutils"
	"github.com/lqwallet/lqkeys/slip77"
	"github.com/lqwallet/lqkeys/zkp"
	"golang.org/x/sync/errgroup"
)

const (
	// MinValue is the smallest value a blinded output may carry.
	MinValue = 1

	// MaxValue is the exclusive upper bound of a blinded output's value.
	MaxValue = 1 << 51

	// messageLen is the size of the range proof message: asset followed
	// by asset blind.
	messageLen = 64

	// rangeProofMinBits gives small values a proof with enough rings to
	// carry the message.
	rangeProofMinBits = 32
)

var (
	// ErrNoInputs is returned when blinding without inputs.
	ErrNoInputs = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "no inputs to blind against",
	)

	// ErrNoOutputs is returned when blinding without outputs.
	ErrNoOutputs = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "no outputs to blind",
	)

	// ErrValueOutOfRange is returned for a zero value or a value the
	// range proof cannot cover.
	ErrValueOutOfRange = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "value out of range",
	)

	// ErrUnknownAsset is returned when an output asset is not spent by
	// any input.
	ErrUnknownAsset = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "output asset not among inputs",
	)

	// ErrDegenerateBlind is returned when an output reuses the asset blind
	// of an input of the same asset. Its generator would equal the input's
	// and no surjection proof exists for it.
	ErrDegenerateBlind = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "output asset blind reused from "+
			"input",
	)

	// ErrInvalidScalar is returned when a blind or private key is not a
	// valid secp256k1 scalar.
	ErrInvalidScalar = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "invalid scalar",
	)

	// ErrNoDeriver is returned when unblinding for the wallet without a
	// configured blinding key deriver.
	ErrNoDeriver = errorcodes.New(
		errorcodes.ErrCodeUninitializedDevice, "no blinding key deriver",
	)

	// ErrUnblind is returned when an output cannot be unblinded with the
	// given key.
	ErrUnblind = errorcodes.New(
		errorcodes.ErrCodeProofFailure, "unable to unblind output",
	)

	// ErrInvalidRangeProof is returned by VerifyOutput for a range proof
	// that does not verify or covers values out of range.
	ErrInvalidRangeProof = errorcodes.New(
		errorcodes.ErrCodeProofFailure, "invalid range proof",
	)

	// ErrInvalidSurjectionProof is returned by VerifyOutput for a
	// surjection proof that does not verify.
	ErrInvalidSurjectionProof = errorcodes.New(
		errorcodes.ErrCodeProofFailure, "invalid surjection proof",
	)
)

// OutputToBlind describes an output to be blinded.
type OutputToBlind struct {
	// Amount is the cleartext of the output. The value blind of the last
	// output is ignored and solved for.
	Amount ConfidentialAmount

	// EcdhPrivkey is the sender's ephemeral key for this output.
	EcdhPrivkey [32]byte

	// EcdhPubkey is the recipient's blinding public key.
	EcdhPubkey [33]byte

	// ScriptPubkey is the output script.
	ScriptPubkey []byte

	// RandomSeed seeds the surjection proof.
	RandomSeed [32]byte
}

// Config holds the collaborators of an Engine.
type Config struct {
	// Engine provides the commitment primitives.
	Engine zkp.Engine

	// Deriver derives the wallet's blinding keys. It is only needed to
	// unblind outputs without an explicit key.
	Deriver *slip77.Deriver
}

// Engine blinds, unblinds and balances confidential outputs. It holds no
// state of its own and is safe for concurrent use if its collaborators are.
type Engine struct {
	cfg Config
}

// New creates a blinding engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Blind blinds the outputs against the inputs. Every output gets a blinded
// asset generator, a value commitment, a range proof bound to its script and a
// surjection proof over the input assets. The value blind of the last output
// is solved so that inputs and outputs balance. Either every output is blinded
// or an error is returned.
func (e *Engine) Blind(inputs []ConfidentialAmount,
	outputs []OutputToBlind) ([]BlindedOutput, error) {

	if err := validateBlindRequest(inputs, outputs); err != nil {
		return nil, err
	}

	numOutputs := len(outputs)
	last := numOutputs - 1

	// Solve the last value blind over every input and output blind. This
	// is the only step that depends on all outputs at once.
	var (
		values      = make([]uint64, 0, len(inputs)+numOutputs)
		assetBlinds = make([][32]byte, 0, len(inputs)+numOutputs)
		valueBlinds = make([][32]byte, 0, len(inputs)+numOutputs)
	)
	for _, in := range inputs {
		values = append(values, in.Value)
		assetBlinds = append(assetBlinds, in.AssetBlind)
		valueBlinds = append(valueBlinds, in.ValueBlind)
	}
	for _, out := range outputs {
		values = append(values, out.Amount.Value)
		assetBlinds = append(assetBlinds, out.Amount.AssetBlind)
		valueBlinds = append(valueBlinds, out.Amount.ValueBlind)
	}
	defer zeroBlinds(assetBlinds)
	defer zeroBlinds(valueBlinds)

	lastBlind, err := e.cfg.Engine.BlindGeneratorBlindSum(
		values, assetBlinds, valueBlinds, len(inputs),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to balance blinds: %w", err)
	}
	defer lnutils.Zero32(&lastBlind)

	inputAssets := make([][32]byte, 0, len(inputs))
	inputAssetBlinds := make([][32]byte, 0, len(inputs))
	for _, in := range inputs {
		inputAssets = append(inputAssets, in.Asset)
		inputAssetBlinds = append(inputAssetBlinds, in.AssetBlind)
	}
	defer zeroBlinds(inputAssetBlinds)

	// With every blind fixed the outputs are independent of each other.
	blinded := make([]BlindedOutput, numOutputs)

	var g errgroup.Group
	for i := range outputs {
		valueBlind := outputs[i].Amount.ValueBlind
		if i == last {
			valueBlind = lastBlind
		}

		g.Go(func() error {
			defer lnutils.Zero32(&valueBlind)

			out, err := e.blindOutput(
				&outputs[i], valueBlind, inputAssets,
				inputAssetBlinds,
			)
			if err != nil {
				return fmt.Errorf("output %d: %w", i, err)
			}
			blinded[i] = *out

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debugf("Blinded %d outputs against %d inputs", numOutputs,
		len(inputs))
	log.Tracef("Blinded outputs: %v", lnutils.SpewLogClosure(blinded))

	return blinded, nil
}

// blindOutput commits to a single output and creates its proofs.
func (e *Engine) blindOutput(out *OutputToBlind, valueBlind [32]byte,
	inputAssets, inputAssetBlinds [][32]byte) (*BlindedOutput, error) {

	amount := out.Amount

	gen, err := amount.Generator(e.cfg.Engine)
	if err != nil {
		return nil, err
	}

	commit, err := e.cfg.Engine.Commit(amount.Value, valueBlind, gen)
	if err != nil {
		return nil, err
	}

	ephemeral := secp256k1.PrivKeyFromBytes(out.EcdhPrivkey[:])
	defer ephemeral.Zero()

	nonce, err := slip77.RangeProofNonce(ephemeral, out.EcdhPubkey[:])
	if err != nil {
		return nil, err
	}
	defer lnutils.Zero32(&nonce)

	message := make([]byte, 0, messageLen)
	message = append(message, amount.Asset[:]...)
	message = append(message, amount.AssetBlind[:]...)
	defer lnutils.Zero(message)

	rangeProof, err := e.cfg.Engine.RangeProofSign(&zkp.RangeProofParams{
		MinValue:    MinValue,
		Commitment:  commit,
		ValueBlind:  valueBlind,
		Nonce:       nonce,
		MinBits:     rangeProofMinBits,
		Value:       amount.Value,
		Message:     message,
		ExtraCommit: out.ScriptPubkey,
		Generator:   gen,
	})
	if err != nil {
		return nil, err
	}

	surjectionProof, err := e.cfg.Engine.SurjectionProofGenerate(
		&zkp.SurjectionProofParams{
			InputAssets:      inputAssets,
			InputAssetBlinds: inputAssetBlinds,
			OutputAsset:      amount.Asset,
			OutputAssetBlind: amount.AssetBlind,
			Seed:             out.RandomSeed,
		},
	)
	if err != nil {
		return nil, err
	}

	blinded := &BlindedOutput{
		ConfValue:       commit,
		ConfAsset:       gen,
		ScriptPubkey:    append([]byte(nil), out.ScriptPubkey...),
		RangeProof:      rangeProof,
		SurjectionProof: surjectionProof,
	}
	copy(blinded.EcdhPubkey[:], ephemeral.PubKey().SerializeCompressed())

	return blinded, nil
}

// Unblind recovers the cleartext of an output. If no ECDH private key is
// given, the wallet's blinding key for the output script is used. No partial
// result is returned on failure.
func (e *Engine) Unblind(out *BlindedOutput,
	ecdhPrivkey fn.Option[[32]byte]) (ConfidentialAmount, error) {

	key, err := ecdhPrivkey.UnwrapOrFuncErr(func() ([32]byte, error) {
		return e.walletBlindingKey(out.ScriptPubkey)
	})
	if err != nil {
		return ConfidentialAmount{}, err
	}
	defer lnutils.Zero32(&key)

	var scalar secp256k1.ModNScalar
	overflow := scalar.SetBytes(&key)
	if overflow != 0 || scalar.IsZero() {
		return ConfidentialAmount{}, fmt.Errorf("%w: ecdh private key",
			ErrInvalidScalar)
	}
	priv := secp256k1.NewPrivateKey(&scalar)
	scalar.Zero()
	defer priv.Zero()

	nonce, err := slip77.RangeProofNonce(priv, out.EcdhPubkey[:])
	if err != nil {
		return ConfidentialAmount{}, err
	}
	defer lnutils.Zero32(&nonce)

	res, err := e.cfg.Engine.RangeProofRewind(
		out.RangeProof, out.ConfValue, nonce, out.ScriptPubkey,
		out.ConfAsset,
	)
	if err != nil {
		return ConfidentialAmount{}, fmt.Errorf("%w: %v", ErrUnblind,
			err)
	}
	defer lnutils.Zero(res.Message)

	if len(res.Message) < messageLen {
		return ConfidentialAmount{}, fmt.Errorf("%w: short message",
			ErrUnblind)
	}

	amount := ConfidentialAmount{
		Value:      res.Value,
		ValueBlind: res.ValueBlind,
	}
	copy(amount.Asset[:], res.Message[:32])
	copy(amount.AssetBlind[:], res.Message[32:messageLen])

	// The asset is only trusted once it reproduces the output generator.
	gen, err := amount.Generator(e.cfg.Engine)
	if err != nil || !bytes.Equal(gen[:], out.ConfAsset[:]) {
		amount.Zero()
		return ConfidentialAmount{}, fmt.Errorf("%w: asset does not "+
			"match generator", ErrUnblind)
	}

	return amount, nil
}

// walletBlindingKey derives the wallet's blinding private key for script.
func (e *Engine) walletBlindingKey(script []byte) ([32]byte, error) {
	if e.cfg.Deriver == nil {
		return [32]byte{}, ErrNoDeriver
	}

	priv, err := e.cfg.Deriver.PrivKey(script)
	if err != nil {
		return [32]byte{}, err
	}
	defer priv.Zero()

	var key [32]byte
	priv.Key.PutBytes(&key)

	return key, nil
}

// VerifyBalance returns true if the commitments of inputs and outputs sum to
// the same point. Cleartext and blinded amounts may be mixed freely on both
// sides.
func (e *Engine) VerifyBalance(inputs, outputs []Committer) (bool, error) {
	ins, err := e.commitments(inputs)
	if err != nil {
		return false, fmt.Errorf("inputs: %w", err)
	}
	outs, err := e.commitments(outputs)
	if err != nil {
		return false, fmt.Errorf("outputs: %w", err)
	}

	ok, err := e.cfg.Engine.VerifyTally(ins, outs)
	if err != nil {
		return false, err
	}

	log.Debugf("Balance of %d inputs and %d outputs verified: %v",
		len(inputs), len(outputs), ok)

	return ok, nil
}

func (e *Engine) commitments(cs []Committer) ([][33]byte, error) {
	commits := make([][33]byte, 0, len(cs))
	for i, c := range cs {
		commit, err := c.Commitment(e.cfg.Engine)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		commit.WhenSome(func(p [33]byte) {
			commits = append(commits, p)
		})
	}

	return commits, nil
}

// VerifyOutput checks the proofs of a blinded output: the range proof must
// verify against the output script and cover only values in [1, 2^51], and the
// surjection proof must show the output asset blinds one of the inputs'
// asset generators.
func (e *Engine) VerifyOutput(out *BlindedOutput,
	inputGenerators [][33]byte) error {

	minValue, maxValue, ok := e.cfg.Engine.RangeProofVerify(
		out.RangeProof, out.ConfValue, out.ScriptPubkey, out.ConfAsset,
	)
	if !ok {
		return ErrInvalidRangeProof
	}
	if minValue < MinValue || maxValue > MaxValue {
		return fmt.Errorf("%w: covers [%d, %d]", ErrInvalidRangeProof,
			minValue, maxValue)
	}

	if !e.cfg.Engine.SurjectionProofVerify(
		out.SurjectionProof, inputGenerators, out.ConfAsset,
	) {

		return ErrInvalidSurjectionProof
	}

	return nil
}

// validateBlindRequest rejects requests that cannot yield valid proofs before
// any work is done.
func validateBlindRequest(inputs []ConfidentialAmount,
	outputs []OutputToBlind) error {

	if len(inputs) == 0 {
		return ErrNoInputs
	}
	if len(outputs) == 0 {
		return ErrNoOutputs
	}

	assets := make(map[[32]byte]struct{}, len(inputs))
	for i, in := range inputs {
		if err := checkScalars(in.ValueBlind, in.AssetBlind); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		assets[in.Asset] = struct{}{}
	}

	for i, out := range outputs {
		amount := out.Amount
		if amount.Value < MinValue || amount.Value >= MaxValue {
			return fmt.Errorf("output %d: %w: %d", i,
				ErrValueOutOfRange, amount.Value)
		}
		if _, ok := assets[amount.Asset]; !ok {
			return fmt.Errorf("output %d: %w", i, ErrUnknownAsset)
		}
		for j, in := range inputs {
			if in.Asset == amount.Asset &&
				in.AssetBlind == amount.AssetBlind {

				return fmt.Errorf("output %d: %w %d", i,
					ErrDegenerateBlind, j)
			}
		}
		if err := checkScalars(
			amount.ValueBlind, amount.AssetBlind,
		); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
		if err := checkPrivKey(out.EcdhPrivkey); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
		if _, err := btcec.ParsePubKey(out.EcdhPubkey[:]); err != nil {
			return fmt.Errorf("output %d: %w", i,
				slip77.ErrInvalidPubKey)
		}
	}

	return nil
}

// checkScalars fails if any blind overflows the group order. Zero blinds are
// allowed, they mark explicit amounts.
func checkScalars(blinds ...[32]byte) error {
	for _, b := range blinds {
		var s secp256k1.ModNScalar
		overflow := s.SetBytes(&b)
		s.Zero()
		if overflow != 0 {
			return fmt.Errorf("%w: blind overflows group order",
				ErrInvalidScalar)
		}
	}

	return nil
}

// checkPrivKey fails if the key is not a usable private key.
func checkPrivKey(key [32]byte) error {
	var s secp256k1.ModNScalar
	defer s.Zero()

	if s.SetBytes(&key) != 0 || s.IsZero() {
		return fmt.Errorf("%w: ecdh private key", ErrInvalidScalar)
	}

	return nil
}

// zeroBlinds clears every blind of the slice in place.
func zeroBlinds(blinds [][32]byte) {
	for i := range blinds {
		lnutils.Zero32(&blinds[i])
	}
}
