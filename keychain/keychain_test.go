package keychain

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lqwallet/lqkeys/errorcodes"
	"github.com/stretchr/testify/require"
)

var (
	// testSeed is the seed of BIP-0032 and SLIP-0010 test vector 1.
	testSeed, _ = hex.DecodeString("000102030405060708090a0b0c0d0e0f")

	h = HardenedKeyStart
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

// newTestKeychain creates a keychain over testSeed that is zeroed once the
// test finishes.
func newTestKeychain(t *testing.T, nss ...Namespace) *Keychain {
	t.Helper()

	k, err := New(testSeed, nss)
	require.NoError(t, err)
	t.Cleanup(k.Zero)

	return k
}

// TestNewRejectsInvalidNamespaces asserts that malformed namespaces and seeds
// are rejected at construction.
func TestNewRejectsInvalidNamespaces(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		seed []byte
		nss  []Namespace
		err  error
	}{{
		name: "unknown curve",
		seed: testSeed,
		nss:  []Namespace{{Curve: "nist256p1"}},
		err:  ErrUnknownCurve,
	}, {
		name: "unhardened namespace",
		seed: testSeed,
		nss: []Namespace{{
			Curve: CurveSecp256k1, Path: Path{h | 44, 0},
		}},
		err: ErrInvalidNamespace,
	}, {
		name: "empty seed",
		nss:  []Namespace{{Curve: CurveSecp256k1}},
		err:  ErrInvalidSeed,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.seed, tc.nss)
			require.ErrorIs(t, err, tc.err)
			require.ErrorIs(t, err, errorcodes.ErrInvalidInput)
		})
	}
}

// TestValidatePath exercises the namespace matching rules.
func TestValidatePath(t *testing.T) {
	t.Parallel()

	k := newTestKeychain(t,
		Namespace{Curve: CurveSecp256k1, Path: Path{h | 44, h | 1}},
		Namespace{Curve: CurveEd25519, Path: Path{h | 10016}},
		Namespace{Curve: CurveSecp256k1, Path: Path{h | 49}},
	)

	testCases := []struct {
		name  string
		path  Path
		curve Curve
		err   error
	}{{
		name:  "prefix match",
		path:  Path{h | 44, h | 1, h, 0, 5},
		curve: CurveSecp256k1,
	}, {
		name:  "exact namespace",
		path:  Path{h | 49},
		curve: CurveSecp256k1,
	}, {
		name:  "wrong coin",
		path:  Path{h | 44, h, h, 0, 0},
		curve: CurveSecp256k1,
		err:   ErrForbiddenPath,
	}, {
		name:  "shorter than namespace",
		path:  Path{h | 44},
		curve: CurveSecp256k1,
		err:   ErrForbiddenPath,
	}, {
		name:  "wrong curve",
		path:  Path{h | 10016, h},
		curve: CurveSecp256k1,
		err:   ErrForbiddenPath,
	}, {
		name:  "ed25519 hardened",
		path:  Path{h | 10016, h | 7},
		curve: CurveEd25519,
	}, {
		name:  "ed25519 unhardened",
		path:  Path{h | 10016, 7},
		curve: CurveEd25519,
		err:   ErrUnhardenedPath,
	}, {
		name:  "unknown curve",
		path:  Path{h | 49},
		curve: "nist256p1",
		err:   ErrForbiddenPath,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := k.ValidatePath(tc.path, tc.curve)
			if tc.err == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tc.err)
			require.ErrorIs(t, err, errorcodes.ErrAccessDenied)
		})
	}
}

// TestDeriveSecp256k1Vectors checks derivation against BIP-0032 test vector
// 1.
func TestDeriveSecp256k1Vectors(t *testing.T) {
	t.Parallel()

	k := newTestKeychain(t, Namespace{Curve: CurveSecp256k1})

	vectors := []struct {
		path   string
		pubKey string
	}{{
		path:   "m",
		pubKey: "0339a36013301597daef41fbe593a02cc513d0b55527ec2df1050e2e8ff49c85c2",
	}, {
		path:   "m/0'",
		pubKey: "035a784662a4a20a65bf6aab9ae98a6c068a81c52e4b032c0fb5400c706cfccc56",
	}, {
		path:   "m/0'/1",
		pubKey: "03501e454bf00751f24b1b489aa925215d66af2234e3891c3b21a52bedb3cd711c",
	}}

	for _, v := range vectors {
		path, err := ParsePath(v.path)
		require.NoError(t, err)

		node, err := k.Derive(path, CurveSecp256k1)
		require.NoError(t, err)

		pub, err := node.PublicKey()
		require.NoError(t, err)
		require.Equal(t, v.pubKey, hex.EncodeToString(pub), v.path)

		node.Zero()
	}
}

// TestDeriveEd25519Vectors checks derivation against SLIP-0010 ed25519 test
// vector 1.
func TestDeriveEd25519Vectors(t *testing.T) {
	t.Parallel()

	k := newTestKeychain(t, Namespace{Curve: CurveEd25519})

	vectors := []struct {
		path    string
		privKey string
		pubKey  string
	}{{
		path:    "m",
		privKey: "2b4be7f19ee27bbf30c667b642d5f4aa69fd169872f8fc3059c08ebae2eb19e7",
		pubKey:  "a4b2856bfec510abab89753fac1ac0e1112364e7d250545963f135f2a33188ed",
	}, {
		path:    "m/0'",
		privKey: "68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3",
		pubKey:  "8c8a13df77a28f3445213a0f432fde644acaa215fc72dcdf300d5efaa85d350c",
	}, {
		path:    "m/0'/1'",
		privKey: "b1d0bad404bf35da785a64ca1ac54b2617211d2777696fbffaf208f746ae84f2",
		pubKey:  "1932a5270f335bed617d5b935c80aedb1a35bd9fc1e31acafd5372c30f5c1187",
	}}

	for _, v := range vectors {
		path, err := ParsePath(v.path)
		require.NoError(t, err)

		node, err := k.Derive(path, CurveEd25519)
		require.NoError(t, err)

		priv, err := node.PrivateKey()
		require.NoError(t, err)
		require.Equal(t, v.privKey, hex.EncodeToString(priv), v.path)

		pub, err := node.PublicKey()
		require.NoError(t, err)
		require.Equal(t, v.pubKey, hex.EncodeToString(pub), v.path)

		node.Zero()
	}

	// Derive does not re-check hardening, but the curve itself has no
	// public children.
	_, err := k.Derive(Path{h, 1}, CurveEd25519)
	require.ErrorIs(t, err, ErrUnhardenedPath)
}

// TestDeriveUsesCachedRoot asserts that the cached root is never mutated by
// the nodes handed out from it.
func TestDeriveUsesCachedRoot(t *testing.T) {
	t.Parallel()

	k := newTestKeychain(t, Namespace{
		Curve: CurveSecp256k1, Path: Path{h | 44, h | 1},
	})

	path := Path{h | 44, h | 1, h, 0, 3}

	first, err := k.Derive(path, CurveSecp256k1)
	require.NoError(t, err)
	firstPub, err := first.PublicKey()
	require.NoError(t, err)

	// Wiping the handed out node must leave the cache intact.
	first.Zero()
	_, err = first.PublicKey()
	require.Error(t, err)

	second, err := k.Derive(path, CurveSecp256k1)
	require.NoError(t, err)
	defer second.Zero()

	secondPub, err := second.PublicKey()
	require.NoError(t, err)
	require.Equal(t, firstPub, secondPub)

	// The result must match a derivation from scratch.
	master, err := hdkeychain.NewMaster(testSeed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	for _, index := range path {
		master, err = master.Derive(index)
		require.NoError(t, err)
	}
	want, err := master.ECPubKey()
	require.NoError(t, err)
	require.Equal(t, want.SerializeCompressed(), secondPub)
}

// TestDeriveForbidden asserts that Derive refuses paths outside of every
// namespace.
func TestDeriveForbidden(t *testing.T) {
	t.Parallel()

	k := newTestKeychain(t, Namespace{
		Curve: CurveSecp256k1, Path: Path{h | 44},
	})

	_, err := k.Derive(Path{h | 49, h, h}, CurveSecp256k1)
	require.ErrorIs(t, err, ErrForbiddenPath)

	_, err = k.Derive(Path{h | 44}, CurveEd25519)
	require.ErrorIs(t, err, errorcodes.ErrAccessDenied)
}

// TestMasterBlindingKey asserts the master blinding key is the SHA-256 of the
// private key at m/10077'.
func TestMasterBlindingKey(t *testing.T) {
	t.Parallel()

	k := newTestKeychain(t, Namespace{Curve: CurveSecp256k1})

	mbk, err := k.MasterBlindingKey(CurveSecp256k1)
	require.NoError(t, err)

	master, err := hdkeychain.NewMaster(testSeed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	child, err := master.Derive(MasterBlindingKeyIndex)
	require.NoError(t, err)
	priv, err := child.ECPrivKey()
	require.NoError(t, err)

	require.Equal(t, sha256.Sum256(priv.Serialize()), mbk)

	// A keychain only granted a narrower namespace may not read it.
	narrow := newTestKeychain(t, Namespace{
		Curve: CurveSecp256k1, Path: Path{h | 44},
	})
	_, err = narrow.MasterBlindingKey(CurveSecp256k1)
	require.ErrorIs(t, err, ErrForbiddenPath)
}

// TestZero asserts a zeroed keychain refuses to be used.
func TestZero(t *testing.T) {
	t.Parallel()

	seed := append([]byte(nil), testSeed...)
	k, err := New(seed, []Namespace{{Curve: CurveSecp256k1}})
	require.NoError(t, err)

	node, err := k.Derive(Path{h}, CurveSecp256k1)
	require.NoError(t, err)
	node.Zero()

	k.Zero()
	k.Zero()

	// The caller's seed buffer is not owned by the keychain.
	require.Equal(t, testSeed, seed)

	_, err = k.Derive(Path{h}, CurveSecp256k1)
	require.ErrorIs(t, err, ErrKeychainZeroed)
	require.ErrorIs(t, err, errorcodes.ErrUninitializedDevice)

	err = k.ValidatePath(Path{h}, CurveSecp256k1)
	require.ErrorIs(t, err, ErrKeychainZeroed)

	_, err = k.MasterBlindingKey(CurveSecp256k1)
	require.ErrorIs(t, err, ErrKeychainZeroed)
}

// TestConcurrentDerive derives from many goroutines at once, racing the
// population of the root cache.
func TestConcurrentDerive(t *testing.T) {
	t.Parallel()

	k := newTestKeychain(t,
		Namespace{Curve: CurveSecp256k1, Path: Path{h | 44, h | 1}},
		Namespace{Curve: CurveEd25519, Path: Path{h | 10016}},
	)

	const numWorkers = 16

	var (
		wg   sync.WaitGroup
		pubs = make([][]byte, numWorkers)
		errs = make([]error, numWorkers)
	)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			curve, path := CurveSecp256k1, Path{h | 44, h | 1, h, 0, 0}
			if i%2 == 1 {
				curve, path = CurveEd25519, Path{h | 10016, h}
			}

			node, err := k.Derive(path, curve)
			if err != nil {
				errs[i] = err
				return
			}
			defer node.Zero()

			pubs[i], errs[i] = node.PublicKey()
		}(i)
	}
	wg.Wait()

	for i := 0; i < numWorkers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, pubs[i%2], pubs[i])
	}
}

// TestCloneFailures asserts a node that cannot be copied reports why instead
// of handing out an empty node.
func TestCloneFailures(t *testing.T) {
	t.Parallel()

	master, err := newSecp256k1Master(testSeed)
	require.NoError(t, err)
	defer master.Zero()

	neutered, err := master.key.Neuter()
	require.NoError(t, err)

	_, err = (&secp256k1Node{key: neutered}).Clone()
	require.ErrorIs(t, err, ErrNoPrivateKey)

	_, err = (&secp256k1Node{}).Clone()
	require.ErrorIs(t, err, errNodeZeroed)

	edMaster, err := newEd25519Master(testSeed)
	require.NoError(t, err)
	edMaster.Zero()
	_, err = edMaster.Clone()
	require.ErrorIs(t, err, errNodeZeroed)

	// A cached root that cannot be cloned fails the derivation with the
	// clone error.
	k := newTestKeychain(t, Namespace{Curve: CurveSecp256k1})
	if k.roots[0] != nil {
		k.roots[0].Zero()
	}
	k.roots[0] = &secp256k1Node{key: neutered}

	node, err := k.Derive(Path{h | 44, h, h, 0, 0}, CurveSecp256k1)
	require.ErrorIs(t, err, ErrNoPrivateKey)
	require.ErrorIs(t, err, errorcodes.ErrInvalidInput)
	require.Nil(t, node)
}
