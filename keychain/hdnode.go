package keychain

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lqwallet/lqkeys/errorcodes"
	"github.com/lqwallet/lqkeys/lnutils"
)

// ed25519SeedKey is the HMAC key SLIP-0010 uses to create an ed25519 master
// node from a seed.
var ed25519SeedKey = []byte("ed25519 seed")

var (
	// errNodeZeroed is returned when a node is used after its secrets
	// were wiped.
	errNodeZeroed = errorcodes.New(
		errorcodes.ErrCodeUninitializedDevice, "hd node has been zeroed",
	)

	// ErrNoPrivateKey is returned when a node that should hold a private
	// key does not.
	ErrNoPrivateKey = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "hd node holds no private key",
	)
)

// HDNode is a single point in a hierarchical deterministic key tree. A node is
// owned by whoever obtained it and must be zeroed once it is no longer needed.
// Nodes are not safe for concurrent use.
type HDNode interface {
	// Curve returns the curve the key tree is derived under.
	Curve() Curve

	// Derive replaces the node with its child at the given index. The
	// parent's secrets are wiped.
	Derive(index uint32) error

	// DerivePath walks every index of the path in turn.
	DerivePath(path Path) error

	// Clone returns an independent deep copy of the node. Zeroing the clone
	// does not affect the original.
	Clone() (HDNode, error)

	// PrivateKey returns a copy of the 32 byte private key of the node. The
	// caller owns and must clear the returned slice.
	PrivateKey() ([]byte, error)

	// PublicKey returns the serialized public key of the node. For
	// secp256k1 this is the 33 byte compressed encoding, for ed25519 the
	// 32 byte key.
	PublicKey() ([]byte, error)

	// Zero wipes all secret material held by the node.
	Zero()
}

// newMasterNode creates the root node of the key tree for the curve.
func newMasterNode(seed []byte, curve Curve) (HDNode, error) {
	switch curve {
	case CurveSecp256k1:
		return newSecp256k1Master(seed)

	case CurveEd25519:
		return newEd25519Master(seed)

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCurve, curve)
	}
}

// secp256k1Node is a BIP-0032 node backed by an extended private key.
type secp256k1Node struct {
	key *hdkeychain.ExtendedKey
}

// newSecp256k1Master derives the BIP-0032 master node of the seed.
func newSecp256k1Master(seed []byte) (*secp256k1Node, error) {
	// The network only selects the serialization version bytes of the
	// extended key, which are never exported.
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	switch {
	case errors.Is(err, hdkeychain.ErrInvalidSeedLen):
		return nil, fmt.Errorf("%w: %v bytes", ErrInvalidSeed, len(seed))

	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}

	return &secp256k1Node{key: key}, nil
}

// Curve returns the curve the key tree is derived under.
func (n *secp256k1Node) Curve() Curve {
	return CurveSecp256k1
}

// Derive replaces the node with its child at the given index.
func (n *secp256k1Node) Derive(index uint32) error {
	if n.key == nil {
		return errNodeZeroed
	}

	child, err := n.key.Derive(index)
	if err != nil {
		return fmt.Errorf("unable to derive child %d: %w", index, err)
	}

	n.key.Zero()
	n.key = child

	return nil
}

// DerivePath walks every index of the path in turn.
func (n *secp256k1Node) DerivePath(path Path) error {
	for _, index := range path {
		if err := n.Derive(index); err != nil {
			return err
		}
	}

	return nil
}

// Clone returns an independent deep copy of the node.
func (n *secp256k1Node) Clone() (HDNode, error) {
	if n.key == nil {
		return nil, errNodeZeroed
	}

	// The extended key shares its backing arrays with whatever was handed
	// to it, so we rebuild it from fresh copies.
	priv, err := n.key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPrivateKey, err)
	}
	defer priv.Zero()

	var parentFP [4]byte
	binary.BigEndian.PutUint32(parentFP[:], n.key.ParentFingerprint())

	version := append([]byte(nil), n.key.Version()...)
	clone := hdkeychain.NewExtendedKey(
		version, priv.Serialize(), n.key.ChainCode(), parentFP[:],
		n.key.Depth(), n.key.ChildIndex(), true,
	)

	return &secp256k1Node{key: clone}, nil
}

// PrivateKey returns a copy of the 32 byte private key of the node.
func (n *secp256k1Node) PrivateKey() ([]byte, error) {
	if n.key == nil {
		return nil, errNodeZeroed
	}

	priv, err := n.key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	defer priv.Zero()

	return priv.Serialize(), nil
}

// PublicKey returns the 33 byte compressed public key of the node.
func (n *secp256k1Node) PublicKey() ([]byte, error) {
	if n.key == nil {
		return nil, errNodeZeroed
	}

	pub, err := n.key.ECPubKey()
	if err != nil {
		return nil, err
	}

	return pub.SerializeCompressed(), nil
}

// Zero wipes all secret material held by the node.
func (n *secp256k1Node) Zero() {
	if n.key != nil {
		n.key.Zero()
		n.key = nil
	}
}

// ed25519Node is a SLIP-0010 ed25519 node. Only hardened children exist.
type ed25519Node struct {
	key       [32]byte
	chainCode [32]byte
	zeroed    bool
}

// newEd25519Master derives the SLIP-0010 ed25519 master node of the seed.
func newEd25519Master(seed []byte) (*ed25519Node, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: empty seed", ErrInvalidSeed)
	}

	mac := hmac.New(sha512.New, ed25519SeedKey)
	mac.Write(seed)

	return ed25519NodeFromDigest(mac.Sum(nil)), nil
}

// ed25519NodeFromDigest splits a 64 byte HMAC-SHA512 digest into key and
// chain code and clears the digest.
func ed25519NodeFromDigest(digest []byte) *ed25519Node {
	var n ed25519Node
	copy(n.key[:], digest[:32])
	copy(n.chainCode[:], digest[32:])
	lnutils.Zero(digest)

	return &n
}

// Curve returns the curve the key tree is derived under.
func (n *ed25519Node) Curve() Curve {
	return CurveEd25519
}

// Derive replaces the node with its hardened child at the given index.
func (n *ed25519Node) Derive(index uint32) error {
	if n.zeroed {
		return errNodeZeroed
	}
	if index < HardenedKeyStart {
		return fmt.Errorf("%w: index %d", ErrUnhardenedPath, index)
	}

	// I = HMAC-SHA512(c_par, 0x00 || k_par || ser32(i))
	var data [1 + 32 + 4]byte
	copy(data[1:33], n.key[:])
	binary.BigEndian.PutUint32(data[33:], index)

	mac := hmac.New(sha512.New, n.chainCode[:])
	mac.Write(data[:])
	lnutils.Zero(data[:])

	child := ed25519NodeFromDigest(mac.Sum(nil))
	n.key, n.chainCode = child.key, child.chainCode
	child.Zero()

	return nil
}

// DerivePath walks every index of the path in turn.
func (n *ed25519Node) DerivePath(path Path) error {
	for _, index := range path {
		if err := n.Derive(index); err != nil {
			return err
		}
	}

	return nil
}

// Clone returns an independent deep copy of the node.
func (n *ed25519Node) Clone() (HDNode, error) {
	if n.zeroed {
		return nil, errNodeZeroed
	}

	clone := *n
	return &clone, nil
}

// PrivateKey returns a copy of the 32 byte private key of the node.
func (n *ed25519Node) PrivateKey() ([]byte, error) {
	if n.zeroed {
		return nil, errNodeZeroed
	}

	return append([]byte(nil), n.key[:]...), nil
}

// PublicKey returns the 32 byte ed25519 public key of the node.
func (n *ed25519Node) PublicKey() ([]byte, error) {
	if n.zeroed {
		return nil, errNodeZeroed
	}

	priv := ed25519.NewKeyFromSeed(n.key[:])
	defer lnutils.Zero(priv)

	pub, _ := priv.Public().(ed25519.PublicKey)

	return append([]byte(nil), pub...), nil
}

// Zero wipes all secret material held by the node.
func (n *ed25519Node) Zero() {
	lnutils.Zero32(&n.key, &n.chainCode)
	n.zeroed = true
}

var _ HDNode = (*secp256k1Node)(nil)
var _ HDNode = (*ed25519Node)(nil)
