package zkp

import (
	"fmt"

	"github.com/vulpemventures/go-secp256k1-zkp"
)

const (
	// maxSurjectionInputs is the number of inputs a surjection proof
	// hides the spent asset among.
	maxSurjectionInputs = 3

	// maxSurjectionIterations bounds the attempts to pick the proven
	// input subset.
	maxSurjectionIterations = 100
)

// Secp256k1ZKP implements Engine on top of libsecp256k1-zkp. A single context
// is shared by all calls, the library only reads from it after creation.
type Secp256k1ZKP struct {
	ctx *secp256k1.Context
}

// NewSecp256k1ZKP creates an engine with a fresh signing and verification
// context. Close must be called to release it.
func NewSecp256k1ZKP() (*Secp256k1ZKP, error) {
	ctx, err := secp256k1.ContextCreate(secp256k1.ContextBoth)
	if err != nil {
		return nil, fmt.Errorf("unable to create zkp context: %w", err)
	}

	return &Secp256k1ZKP{ctx: ctx}, nil
}

// Close releases the underlying context.
func (s *Secp256k1ZKP) Close() {
	if s.ctx != nil {
		secp256k1.ContextDestroy(s.ctx)
		s.ctx = nil
	}
}

// GeneratorGenerate returns the unblinded generator of an asset.
func (s *Secp256k1ZKP) GeneratorGenerate(asset [32]byte) ([33]byte, error) {
	gen, err := secp256k1.GeneratorGenerate(s.ctx, asset[:])
	if err != nil {
		return [33]byte{}, fmt.Errorf("%w: %v", ErrInvalidGenerator, err)
	}

	return secp256k1.GeneratorSerialize(s.ctx, gen), nil
}

// GeneratorGenerateBlinded returns the generator of an asset blinded with
// assetBlind.
func (s *Secp256k1ZKP) GeneratorGenerateBlinded(asset,
	assetBlind [32]byte) ([33]byte, error) {

	gen, err := secp256k1.GeneratorGenerateBlinded(
		s.ctx, asset[:], assetBlind[:],
	)
	if err != nil {
		return [33]byte{}, fmt.Errorf("%w: %v", ErrInvalidGenerator, err)
	}

	return secp256k1.GeneratorSerialize(s.ctx, gen), nil
}

// Commit returns the Pedersen commitment value·generator + blind·G.
func (s *Secp256k1ZKP) Commit(value uint64, blind [32]byte,
	generator [33]byte) ([33]byte, error) {

	gen, err := s.parseGenerator(generator)
	if err != nil {
		return [33]byte{}, err
	}

	commit, err := secp256k1.Commit(s.ctx, blind[:], value, gen)
	if err != nil {
		return [33]byte{}, fmt.Errorf("%w: %v", ErrInvalidCommitment,
			err)
	}

	return s.serializeCommitment(commit)
}

// CommitmentParse checks that the bytes encode a valid commitment.
func (s *Secp256k1ZKP) CommitmentParse(commit []byte) ([33]byte, error) {
	if len(commit) != 33 {
		return [33]byte{}, fmt.Errorf("%w: length %d",
			ErrInvalidCommitment, len(commit))
	}

	parsed, err := secp256k1.CommitmentParse(s.ctx, commit)
	if err != nil {
		return [33]byte{}, fmt.Errorf("%w: %v", ErrInvalidCommitment,
			err)
	}

	return s.serializeCommitment(parsed)
}

// VerifyTally returns true if the commitments of both sides sum to the same
// point. The library keeps its tally check private, so the sum is taken over
// the decoded curve points.
func (s *Secp256k1ZKP) VerifyTally(inputs, outputs [][33]byte) (bool,
	error) {

	for _, cs := range [][][33]byte{inputs, outputs} {
		for _, c := range cs {
			if _, err := s.parseCommitment(c); err != nil {
				return false, err
			}
		}
	}

	return verifyTally(inputs, outputs)
}

// BlindGeneratorBlindSum solves the value blinding factor of the last output.
func (s *Secp256k1ZKP) BlindGeneratorBlindSum(values []uint64, assetBlinds,
	valueBlinds [][32]byte, nInputs int) ([32]byte, error) {

	if len(values) != len(assetBlinds) ||
		len(values) != len(valueBlinds) ||
		nInputs < 0 || nInputs >= len(values) {

		return [32]byte{}, fmt.Errorf("%w: mismatched blind sum "+
			"arguments", ErrInvalidBlind)
	}

	abfs := make([][]byte, len(assetBlinds))
	for i := range assetBlinds {
		abfs[i] = assetBlinds[i][:]
	}

	// The library solves for the last blind itself and only takes the
	// ones before it.
	vbfs := make([][]byte, len(valueBlinds)-1)
	for i := range vbfs {
		vbfs[i] = valueBlinds[i][:]
	}

	sum, err := secp256k1.BlindGeneratorBlindSum(
		s.ctx, values, abfs, vbfs, nInputs,
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: %v", ErrInvalidBlind, err)
	}

	return sum, nil
}

// RangeProofSign creates a range proof.
func (s *Secp256k1ZKP) RangeProofSign(params *RangeProofParams) ([]byte,
	error) {

	gen, err := s.parseGenerator(params.Generator)
	if err != nil {
		return nil, err
	}
	commit, err := s.parseCommitment(params.Commitment)
	if err != nil {
		return nil, err
	}

	proof, err := secp256k1.RangeProofSign(
		s.ctx, params.MinValue, commit, params.ValueBlind,
		params.Nonce, params.Exp, params.MinBits, params.Value,
		params.Message, params.ExtraCommit, gen,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRangeProof, err)
	}

	return proof, nil
}

// RangeProofVerify checks a range proof against the commitment it was made
// for and returns the bounds it proves.
func (s *Secp256k1ZKP) RangeProofVerify(proof []byte, commit [33]byte,
	extraCommit []byte, generator [33]byte) (uint64, uint64, bool) {

	gen, err := s.parseGenerator(generator)
	if err != nil {
		return 0, 0, false
	}
	c, err := s.parseCommitment(commit)
	if err != nil {
		return 0, 0, false
	}

	ok, minValue, maxValue := secp256k1.RangeProofVerify(
		s.ctx, proof, c, extraCommit, gen,
	)
	if !ok {
		return 0, 0, false
	}

	// The binding reports the 64 bit bounds through int.
	return uint64(minValue), uint64(maxValue), true
}

// RangeProofRewind recovers the secrets of a range proof.
func (s *Secp256k1ZKP) RangeProofRewind(proof []byte, commit [33]byte,
	nonce [32]byte, extraCommit []byte,
	generator [33]byte) (*RewindResult, error) {

	gen, err := s.parseGenerator(generator)
	if err != nil {
		return nil, err
	}
	c, err := s.parseCommitment(commit)
	if err != nil {
		return nil, err
	}

	blind, value, minValue, maxValue, message, err :=
		secp256k1.RangeProofRewind(
			s.ctx, c, proof, nonce, extraCommit, gen,
		)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRangeProof, err)
	}

	return &RewindResult{
		ValueBlind: blind,
		Value:      value,
		MinValue:   minValue,
		MaxValue:   maxValue,
		Message:    message,
	}, nil
}

// SurjectionProofGenerate proves the output generator is a blinding of one of
// the input assets.
func (s *Secp256k1ZKP) SurjectionProofGenerate(
	params *SurjectionProofParams) ([]byte, error) {

	numInputs := len(params.InputAssets)
	if numInputs == 0 || numInputs != len(params.InputAssetBlinds) {
		return nil, fmt.Errorf("%w: mismatched inputs",
			ErrSurjectionProof)
	}

	fixedInputTags := make([]*secp256k1.FixedAssetTag, 0, numInputs)
	ephemeralInputTags := make([]*secp256k1.Generator, 0, numInputs)
	for i, asset := range params.InputAssets {
		tag, err := secp256k1.FixedAssetTagParse(asset[:])
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %v",
				ErrInvalidGenerator, i, err)
		}
		fixedInputTags = append(fixedInputTags, tag)

		gen, err := secp256k1.GeneratorGenerateBlinded(
			s.ctx, asset[:], params.InputAssetBlinds[i][:],
		)
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %v",
				ErrInvalidGenerator, i, err)
		}
		ephemeralInputTags = append(ephemeralInputTags, gen)
	}

	fixedOutputTag, err := secp256k1.FixedAssetTagParse(
		params.OutputAsset[:],
	)
	if err != nil {
		return nil, fmt.Errorf("%w: output: %v", ErrInvalidGenerator, err)
	}
	ephemeralOutputTag, err := secp256k1.GeneratorGenerateBlinded(
		s.ctx, params.OutputAsset[:], params.OutputAssetBlind[:],
	)
	if err != nil {
		return nil, fmt.Errorf("%w: output: %v", ErrInvalidGenerator, err)
	}

	proof, inputIndex, err := secp256k1.SurjectionProofInitialize(
		s.ctx, fixedInputTags, min(maxSurjectionInputs, numInputs),
		fixedOutputTag, maxSurjectionIterations, params.Seed[:],
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSurjectionProof, err)
	}

	err = secp256k1.SurjectionProofGenerate(
		s.ctx, proof, ephemeralInputTags, ephemeralOutputTag,
		inputIndex, params.InputAssetBlinds[inputIndex][:],
		params.OutputAssetBlind[:],
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSurjectionProof, err)
	}

	if !secp256k1.SurjectionProofVerify(
		s.ctx, proof, ephemeralInputTags, ephemeralOutputTag,
	) {

		return nil, fmt.Errorf("%w: generated proof does not verify",
			ErrSurjectionProof)
	}

	return proof.Bytes(), nil
}

// SurjectionProofVerify checks a surjection proof against the blinded
// generators of the inputs and the output.
func (s *Secp256k1ZKP) SurjectionProofVerify(proof []byte,
	inputGenerators [][33]byte, outputGenerator [33]byte) bool {

	parsed, err := secp256k1.SurjectionProofParse(s.ctx, proof)
	if err != nil {
		log.Debugf("Unable to parse surjection proof: %v", err)
		return false
	}

	inputTags := make([]*secp256k1.Generator, 0, len(inputGenerators))
	for _, g := range inputGenerators {
		gen, err := s.parseGenerator(g)
		if err != nil {
			return false
		}
		inputTags = append(inputTags, gen)
	}

	outputTag, err := s.parseGenerator(outputGenerator)
	if err != nil {
		return false
	}

	return secp256k1.SurjectionProofVerify(
		s.ctx, parsed, inputTags, outputTag,
	)
}

func (s *Secp256k1ZKP) parseGenerator(g [33]byte) (*secp256k1.Generator,
	error) {

	gen, err := secp256k1.GeneratorParse(s.ctx, g[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGenerator, err)
	}

	return gen, nil
}

func (s *Secp256k1ZKP) parseCommitment(c [33]byte) (*secp256k1.Commitment,
	error) {

	commit, err := secp256k1.CommitmentParse(s.ctx, c[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommitment, err)
	}

	return commit, nil
}

func (s *Secp256k1ZKP) serializeCommitment(
	commit *secp256k1.Commitment) ([33]byte, error) {

	c, err := secp256k1.CommitmentSerialize(s.ctx, commit)
	if err != nil {
		return [33]byte{}, fmt.Errorf("%w: %v", ErrInvalidCommitment,
			err)
	}

	return c, nil
}

var _ Engine = (*Secp256k1ZKP)(nil)
