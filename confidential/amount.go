package confidential

import (
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lqwallet/lqkeys/lnutils"
	"github.com/lqwallet/lqkeys/zkp"
)

// ConfidentialAmount is the cleartext of a confidential output: its value and
// asset together with the blinding factors that hide them.
type ConfidentialAmount struct {
	// Value is the amount in the asset's base unit.
	Value uint64

	// Asset is the asset tag.
	Asset [32]byte

	// ValueBlind blinds the value commitment.
	ValueBlind [32]byte

	// AssetBlind blinds the asset generator.
	AssetBlind [32]byte
}

// Generator returns the blinded asset generator of the amount.
func (c ConfidentialAmount) Generator(e zkp.Engine) ([33]byte, error) {
	return e.GeneratorGenerateBlinded(c.Asset, c.AssetBlind)
}

// Commitment returns the value commitment of the amount. An amount of zero
// with a zero value blind is the identity and yields None.
//
// NOTE: This is part of the Committer interface.
func (c ConfidentialAmount) Commitment(
	e zkp.Engine) (fn.Option[[33]byte], error) {

	if c.Value == 0 && c.ValueBlind == ([32]byte{}) {
		return fn.None[[33]byte](), nil
	}

	gen, err := c.Generator(e)
	if err != nil {
		return fn.None[[33]byte](), err
	}

	commit, err := e.Commit(c.Value, c.ValueBlind, gen)
	if err != nil {
		return fn.None[[33]byte](), err
	}

	return fn.Some(commit), nil
}

// Zero clears the blinding factors of the amount.
func (c *ConfidentialAmount) Zero() {
	lnutils.Zero32(&c.ValueBlind, &c.AssetBlind)
}

// ExplicitAmount is an unblinded amount, such as a fee output. It commits with
// the unblinded asset generator and a zero blind.
type ExplicitAmount struct {
	// Value is the amount in the asset's base unit.
	Value uint64

	// Asset is the asset tag.
	Asset [32]byte
}

// Commitment returns the value commitment of the amount. A zero amount is the
// identity and yields None.
//
// NOTE: This is part of the Committer interface.
func (x ExplicitAmount) Commitment(e zkp.Engine) (fn.Option[[33]byte], error) {
	if x.Value == 0 {
		return fn.None[[33]byte](), nil
	}

	gen, err := e.GeneratorGenerate(x.Asset)
	if err != nil {
		return fn.None[[33]byte](), err
	}

	commit, err := e.Commit(x.Value, [32]byte{}, gen)
	if err != nil {
		return fn.None[[33]byte](), err
	}

	return fn.Some(commit), nil
}

// BlindedOutput is the on-chain form of a confidential output.
type BlindedOutput struct {
	// ConfValue is the Pedersen commitment to the value.
	ConfValue [33]byte

	// ConfAsset is the blinded asset generator.
	ConfAsset [33]byte

	// EcdhPubkey is the sender's ephemeral public key. Together with the
	// recipient's blinding key it yields the range proof nonce.
	EcdhPubkey [33]byte

	// ScriptPubkey is the output script, committed to by the range
	// proof.
	ScriptPubkey []byte

	// RangeProof proves the value lies in [1, 2^51) and carries the
	// asset and asset blind for the recipient.
	RangeProof []byte

	// SurjectionProof proves ConfAsset blinds one of the input assets.
	SurjectionProof []byte
}

// Commitment returns the value commitment of the output after checking it is
// well formed.
//
// NOTE: This is part of the Committer interface.
func (b *BlindedOutput) Commitment(e zkp.Engine) (fn.Option[[33]byte], error) {
	commit, err := e.CommitmentParse(b.ConfValue[:])
	if err != nil {
		return fn.None[[33]byte](), err
	}

	return fn.Some(commit), nil
}

// Committer is anything that contributes a value commitment to a balance
// check.
type Committer interface {
	// Commitment returns the value commitment, or None if the committer
	// contributes the identity.
	Commitment(e zkp.Engine) (fn.Option[[33]byte], error)
}

var _ Committer = ConfidentialAmount{}
var _ Committer = ExplicitAmount{}
var _ Committer = (*BlindedOutput)(nil)
