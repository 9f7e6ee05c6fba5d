// Package zkp exposes the commitment primitives confidential transactions are
// built from: blinded asset generators, Pedersen commitments, range proofs and
// asset surjection proofs. Every value crossing the Engine interface is in its
// 32 or 33 byte wire form.
package zkp

import (
	"github.com/lqwallet/lqkeys/errorcodes"
)

var (
	// ErrInvalidGenerator is returned when bytes do not encode a valid
	// asset generator or asset tag.
	ErrInvalidGenerator = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "invalid asset generator",
	)

	// ErrInvalidCommitment is returned when bytes do not encode a valid
	// Pedersen commitment, or a commitment cannot be formed.
	ErrInvalidCommitment = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "invalid commitment",
	)

	// ErrInvalidBlind is returned when a blinding factor is not a valid
	// scalar, or the blind sum cannot be solved.
	ErrInvalidBlind = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "invalid blinding factor",
	)

	// ErrRangeProof is returned when a range proof cannot be created,
	// verified or rewound.
	ErrRangeProof = errorcodes.New(
		errorcodes.ErrCodeProofFailure, "range proof failure",
	)

	// ErrSurjectionProof is returned when a surjection proof cannot be
	// created or verified.
	ErrSurjectionProof = errorcodes.New(
		errorcodes.ErrCodeProofFailure, "surjection proof failure",
	)
)

// RangeProofParams holds the arguments of a range proof over a Pedersen
// commitment.
type RangeProofParams struct {
	// MinValue is the publicly revealed lower bound of the value.
	MinValue uint64

	// Commitment is the commitment the proof is made for.
	Commitment [33]byte

	// ValueBlind is the blinding factor of the commitment.
	ValueBlind [32]byte

	// Nonce seeds the proof and allows the holder of the nonce to rewind
	// it.
	Nonce [32]byte

	// Exp is the base 10 exponent of the proven value, 0 for exact
	// proofs.
	Exp int

	// MinBits is the minimum number of bits the proof covers, 0 to pick
	// the smallest covering the value. The proof must have enough rings
	// to carry Message.
	MinBits int

	// Value is the committed value.
	Value uint64

	// Message is embedded in the proof and recovered on rewind.
	Message []byte

	// ExtraCommit is additional data the proof is bound to.
	ExtraCommit []byte

	// Generator is the asset generator the commitment was made with.
	Generator [33]byte
}

// RewindResult holds what a range proof reveals to the holder of its nonce.
type RewindResult struct {
	// ValueBlind is the blinding factor of the commitment.
	ValueBlind [32]byte

	// Value is the committed value.
	Value uint64

	// MinValue and MaxValue are the bounds the proof covers.
	MinValue uint64
	MaxValue uint64

	// Message is the message embedded at signing time.
	Message []byte
}

// SurjectionProofParams holds the arguments of an asset surjection proof.
type SurjectionProofParams struct {
	// InputAssets are the unblinded asset tags of the inputs.
	InputAssets [][32]byte

	// InputAssetBlinds are the asset blinding factors of the inputs.
	InputAssetBlinds [][32]byte

	// OutputAsset is the unblinded asset tag of the output.
	OutputAsset [32]byte

	// OutputAssetBlind is the asset blinding factor of the output.
	OutputAssetBlind [32]byte

	// Seed makes the choice of proven inputs deterministic.
	Seed [32]byte
}

// Engine is the set of commitment primitives confidential outputs are built
// and checked with. Implementations must be safe for concurrent use.
type Engine interface {
	// GeneratorGenerate returns the unblinded generator of an asset.
	GeneratorGenerate(asset [32]byte) ([33]byte, error)

	// GeneratorGenerateBlinded returns the generator of an asset blinded
	// with assetBlind.
	GeneratorGenerateBlinded(asset, assetBlind [32]byte) ([33]byte,
		error)

	// Commit returns the Pedersen commitment value·generator + blind·G.
	Commit(value uint64, blind [32]byte, generator [33]byte) ([33]byte,
		error)

	// CommitmentParse checks that the bytes encode a valid commitment.
	CommitmentParse(commit []byte) ([33]byte, error)

	// VerifyTally returns true if the commitments of both sides sum to
	// the same point.
	VerifyTally(inputs, outputs [][33]byte) (bool, error)

	// BlindGeneratorBlindSum returns the value blinding factor of the last
	// output that makes inputs and outputs balance. The first nInputs
	// entries of each slice belong to inputs. The entry for the last
	// output in valueBlinds is ignored.
	BlindGeneratorBlindSum(values []uint64, assetBlinds,
		valueBlinds [][32]byte, nInputs int) ([32]byte, error)

	// RangeProofSign creates a range proof.
	RangeProofSign(params *RangeProofParams) ([]byte, error)

	// RangeProofVerify checks a range proof against the commitment it was
	// made for. On success it returns the inclusive bounds the proof
	// covers.
	RangeProofVerify(proof []byte, commit [33]byte, extraCommit []byte,
		generator [33]byte) (minValue, maxValue uint64, ok bool)

	// RangeProofRewind recovers the secrets of a range proof using the
	// nonce it was created with.
	RangeProofRewind(proof []byte, commit [33]byte, nonce [32]byte,
		extraCommit []byte, generator [33]byte) (*RewindResult, error)

	// SurjectionProofGenerate proves the output generator is a blinding
	// of one of the input assets.
	SurjectionProofGenerate(params *SurjectionProofParams) ([]byte, error)

	// SurjectionProofVerify checks a surjection proof against the blinded
	// generators of the inputs and the output.
	SurjectionProofVerify(proof []byte, inputGenerators [][33]byte,
		outputGenerator [33]byte) bool
}
