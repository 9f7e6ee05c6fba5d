package keychain

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lqwallet/lqkeys/lnutils"
	"github.com/lqwallet/lqkeys/multimutex"
)

// Keychain derives keys from a seed, restricted to the namespaces it was
// created with. It is the exclusive owner of its copy of the seed and of the
// root nodes it caches. Zero must be called once the keychain is no longer
// needed, after which every method fails with ErrKeychainZeroed.
//
// A Keychain is safe for concurrent use.
type Keychain struct {
	// lifeMtx is held for reading by every derivation and for writing by
	// Zero, so secrets cannot be wiped from under a running derivation.
	lifeMtx sync.RWMutex

	seed       []byte
	namespaces []Namespace

	// roots holds, per namespace, the node reached by deriving the seed
	// along the namespace path. A slot is populated once and never
	// recomputed. rootMtx serializes population of a slot.
	roots   []HDNode
	rootMtx *multimutex.Mutex[int]

	zeroed bool
}

// New creates a keychain granting access to the given namespaces. The seed is
// copied, the caller remains responsible for clearing its own buffer.
func New(seed []byte, namespaces []Namespace) (*Keychain, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: empty seed", ErrInvalidSeed)
	}

	nss := make([]Namespace, 0, len(namespaces))
	for i, ns := range namespaces {
		if !ns.Curve.IsKnown() {
			return nil, fmt.Errorf("namespace %d: %w: %q", i,
				ErrUnknownCurve, ns.Curve)
		}
		if !ns.Path.IsHardened() {
			return nil, fmt.Errorf("namespace %d: %w: %v", i,
				ErrInvalidNamespace, ns.Path)
		}

		nss = append(nss, Namespace{
			Curve: ns.Curve,
			Path:  append(Path{}, ns.Path...),
		})
	}

	log.Tracef("Created keychain with namespaces %v", nss)

	return &Keychain{
		seed:       append([]byte(nil), seed...),
		namespaces: nss,
		roots:      make([]HDNode, len(nss)),
		rootMtx:    multimutex.NewMutex[int](),
	}, nil
}

// Namespaces returns a copy of the namespaces the keychain grants access to.
func (k *Keychain) Namespaces() []Namespace {
	nss := make([]Namespace, 0, len(k.namespaces))
	for _, ns := range k.namespaces {
		nss = append(nss, Namespace{
			Curve: ns.Curve,
			Path:  append(Path{}, ns.Path...),
		})
	}

	return nss
}

// ValidatePath checks that the path/curve pair lies within one of the
// keychain's namespaces. Namespaces are scanned in order and the first match
// decides. For EdDSA-like curves a match is only accepted if every element of
// the path is hardened.
func (k *Keychain) ValidatePath(path Path, curve Curve) error {
	k.lifeMtx.RLock()
	defer k.lifeMtx.RUnlock()

	if k.zeroed {
		return ErrKeychainZeroed
	}

	for _, ns := range k.namespaces {
		if !ns.matches(path, curve) {
			continue
		}

		if curve.IsEdDSA() && !path.IsHardened() {
			log.Debugf("Rejected non-hardened %v path %v", curve,
				path)

			return fmt.Errorf("%w: %v", ErrUnhardenedPath, path)
		}

		return nil
	}

	log.Debugf("Rejected %v path %v outside of namespaces", curve, path)

	return fmt.Errorf("%w: %v on %v", ErrForbiddenPath, path, curve)
}

// Derive returns a fresh node at path on curve. The path must lie below one
// of the keychain's namespaces; it is not checked for hardened elements, so
// callers handling untrusted paths call ValidatePath first. The returned node
// is owned by the caller and must be zeroed.
func (k *Keychain) Derive(path Path, curve Curve) (HDNode, error) {
	k.lifeMtx.RLock()
	defer k.lifeMtx.RUnlock()

	if k.zeroed {
		return nil, ErrKeychainZeroed
	}

	idx := k.match(path, curve)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %v on %v", ErrForbiddenPath, path,
			curve)
	}

	node, err := k.root(idx)
	if err != nil {
		return nil, err
	}

	suffix := path[len(k.namespaces[idx].Path):]
	if err := node.DerivePath(suffix); err != nil {
		node.Zero()
		return nil, err
	}

	return node, nil
}

// MasterBlindingKey returns the SHA-256 of the private key at m/10077'. The
// key is not cached, the intermediate node is wiped before returning.
func (k *Keychain) MasterBlindingKey(curve Curve) ([32]byte, error) {
	node, err := k.Derive(Path{MasterBlindingKeyIndex}, curve)
	if err != nil {
		return [32]byte{}, err
	}
	defer node.Zero()

	priv, err := node.PrivateKey()
	if err != nil {
		return [32]byte{}, err
	}
	defer lnutils.Zero(priv)

	return [32]byte(chainhash.HashH(priv)), nil
}

// Zero wipes the seed and every cached root. It is safe to call more than
// once.
func (k *Keychain) Zero() {
	k.lifeMtx.Lock()
	defer k.lifeMtx.Unlock()

	if k.zeroed {
		return
	}

	lnutils.Zero(k.seed)
	k.seed = nil

	for i, root := range k.roots {
		if root != nil {
			root.Zero()
		}
		k.roots[i] = nil
	}
	k.zeroed = true

	log.Tracef("Keychain zeroed")
}

// match returns the index of the first namespace granting path on curve, or
// -1.
func (k *Keychain) match(path Path, curve Curve) int {
	for i, ns := range k.namespaces {
		if ns.matches(path, curve) {
			return i
		}
	}

	return -1
}

// root returns a clone of the cached root of namespace idx, deriving it first
// if needed. The caller must hold lifeMtx.
func (k *Keychain) root(idx int) (HDNode, error) {
	k.rootMtx.Lock(idx)
	defer k.rootMtx.Unlock(idx)

	if k.roots[idx] == nil {
		ns := k.namespaces[idx]

		node, err := newMasterNode(k.seed, ns.Curve)
		if err != nil {
			return nil, err
		}
		if err := node.DerivePath(ns.Path); err != nil {
			node.Zero()
			return nil, err
		}

		k.roots[idx] = node

		log.Debugf("Cached root node for namespace %v", ns)
	}

	node, err := k.roots[idx].Clone()
	if err != nil {
		return nil, fmt.Errorf("unable to clone root of namespace "+
			"%v: %w", k.namespaces[idx], err)
	}

	return node, nil
}
