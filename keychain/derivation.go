package keychain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lqwallet/lqkeys/errorcodes"
)

const (
	// HardenedKeyStart is the index at which a hardened key starts. Each
	// extended key has 2^31 normal child keys and 2^31 hardened child keys.
	// Thus the range for normal child keys is [0, 2^31 - 1] and the range
	// for hardened child keys is [2^31, 2^32 - 1].
	HardenedKeyStart uint32 = 0x80000000

	// MasterBlindingKeyIndex is the hardened index, directly below the
	// root, of the node whose private key seeds every per-script blinding
	// key of a wallet: m/10077'.
	//
	// NOTE: an older address builder derived the blinding master from
	// m/77' instead. Both conventions yield different keys for the same
	// seed, only this one is supported.
	MasterBlindingKeyIndex = HardenedKeyStart | 10077
)

var (
	// ErrForbiddenPath is returned when a path/curve pair does not fall
	// within any namespace granted to the keychain.
	ErrForbiddenPath = errorcodes.New(
		errorcodes.ErrCodeAccessDenied, "forbidden key path",
	)

	// ErrUnhardenedPath is returned when a path for an EdDSA-like curve
	// contains a non-hardened element. Public child derivation is unsafe
	// for those curves.
	ErrUnhardenedPath = errorcodes.New(
		errorcodes.ErrCodeAccessDenied, "non-hardened derivation "+
			"forbidden for curve",
	)

	// ErrUnknownCurve is returned when a namespace names a curve we
	// cannot derive keys for.
	ErrUnknownCurve = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "unknown curve",
	)

	// ErrInvalidNamespace is returned when a namespace prefix contains a
	// non-hardened element.
	ErrInvalidNamespace = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "namespace path must be "+
			"hardened",
	)

	// ErrInvalidSeed is returned when the seed handed to a keychain cannot
	// be used to create a master node.
	ErrInvalidSeed = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "invalid seed",
	)

	// ErrInvalidPath is returned when a textual path cannot be parsed.
	ErrInvalidPath = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "invalid key path",
	)

	// ErrKeychainZeroed is returned by every method of a keychain after
	// its secrets have been wiped.
	ErrKeychainZeroed = errorcodes.New(
		errorcodes.ErrCodeUninitializedDevice, "keychain has been "+
			"zeroed",
	)
)

// Curve names the elliptic curve a key tree is derived under.
type Curve string

const (
	// CurveSecp256k1 derives BIP-0032 key trees.
	CurveSecp256k1 Curve = "secp256k1"

	// CurveEd25519 derives SLIP-0010 key trees. Only hardened children
	// exist on this curve.
	CurveEd25519 Curve = "ed25519"
)

// IsEdDSA returns true for curves of the EdDSA family, which only allow
// hardened derivation.
func (c Curve) IsEdDSA() bool {
	return strings.Contains(string(c), "ed25519")
}

// IsKnown returns true if key trees can be derived under the curve.
func (c Curve) IsKnown() bool {
	return c == CurveSecp256k1 || c == CurveEd25519
}

// Path is a sequence of child indexes walked from the root of a key tree.
type Path []uint32

// ParsePath parses a path of the form m/44'/1'/0'/0/0. Both ' and h mark a
// hardened element. The leading m is optional.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "m")
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return Path{}, nil
	}

	parts := strings.Split(s, "/")
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		hardened := strings.HasSuffix(part, "'") ||
			strings.HasSuffix(part, "h")
		if hardened {
			part = part[:len(part)-1]
		}

		index, err := strconv.ParseUint(part, 10, 32)
		if err != nil || uint32(index) >= HardenedKeyStart {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, s)
		}

		if hardened {
			index |= uint64(HardenedKeyStart)
		}
		path = append(path, uint32(index))
	}

	return path, nil
}

// String returns the path in m/44'/0'/0 notation.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, index := range p {
		b.WriteString("/")
		if index >= HardenedKeyStart {
			b.WriteString(strconv.FormatUint(
				uint64(index-HardenedKeyStart), 10,
			))
			b.WriteString("'")
			continue
		}
		b.WriteString(strconv.FormatUint(uint64(index), 10))
	}

	return b.String()
}

// IsHardened returns true if every element of the path is hardened. The
// empty path is hardened.
func (p Path) IsHardened() bool {
	for _, index := range p {
		if index < HardenedKeyStart {
			return false
		}
	}

	return true
}

// HasPrefix returns true if prefix is a leading sub-sequence of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}

	return true
}

// Namespace grants a keychain access to every key below Path on Curve.
type Namespace struct {
	// Curve is the curve keys of the namespace are derived under.
	Curve Curve

	// Path is the hardened prefix every granted path starts with.
	Path Path
}

// String returns a human readable description of the namespace.
func (n Namespace) String() string {
	return fmt.Sprintf("%v:%v", n.Curve, n.Path)
}

// matches returns true if the namespace grants access to path on curve.
func (n Namespace) matches(path Path, curve Curve) bool {
	return n.Curve == curve && path.HasPrefix(n.Path)
}
