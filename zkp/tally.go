package zkp

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	// commitmentPrefixQuad marks a commitment whose y coordinate is a
	// quadratic residue. commitmentPrefixNonQuad marks its negation.
	commitmentPrefixQuad    = 0x08
	commitmentPrefixNonQuad = 0x09
)

// commitmentPoint decodes a serialized Pedersen commitment into its curve
// point. The x coordinate follows the prefix byte, the y coordinate is the
// quadratic residue square root of x³+7, negated when the low bit of the
// prefix is set.
func commitmentPoint(c [33]byte) (btcec.JacobianPoint, error) {
	var p btcec.JacobianPoint

	if c[0] != commitmentPrefixQuad && c[0] != commitmentPrefixNonQuad {
		return p, fmt.Errorf("%w: prefix %#x", ErrInvalidCommitment, c[0])
	}

	var x btcec.FieldVal
	if overflow := x.SetByteSlice(c[1:]); overflow {
		return p, fmt.Errorf("%w: x overflows", ErrInvalidCommitment)
	}

	// y² = x³ + 7
	var ySquared, y btcec.FieldVal
	ySquared.SquareVal(&x).Mul(&x).AddInt(7).Normalize()

	// For p ≡ 3 mod 4 the computed root is itself a square, which is the
	// root the prefix 0x08 refers to.
	if !y.SquareRootVal(&ySquared) {
		return p, fmt.Errorf("%w: x not on curve", ErrInvalidCommitment)
	}
	y.Normalize()
	if c[0]&1 == 1 {
		y.Negate(1).Normalize()
	}

	p.X.Set(&x)
	p.Y.Set(&y)
	p.Z.SetInt(1)

	return p, nil
}

// verifyTally sums the input commitments minus the output commitments and
// reports whether the result is the point at infinity.
func verifyTally(inputs, outputs [][33]byte) (bool, error) {
	var sum btcec.JacobianPoint

	add := func(c [33]byte, negate bool) error {
		p, err := commitmentPoint(c)
		if err != nil {
			return err
		}
		if negate {
			p.Y.Negate(1).Normalize()
		}

		var next btcec.JacobianPoint
		btcec.AddNonConst(&sum, &p, &next)
		sum.Set(&next)

		return nil
	}

	for _, c := range inputs {
		if err := add(c, false); err != nil {
			return false, err
		}
	}
	for _, c := range outputs {
		if err := add(c, true); err != nil {
			return false, err
		}
	}

	return sum.Z.IsZero() || (sum.X.IsZero() && sum.Y.IsZero()), nil
}
