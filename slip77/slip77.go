// Package slip77 derives deterministic per-script blinding keys from a
// wallet's master blinding key, and the range proof nonces shared between the
// sender and the recipient of a confidential output.
package slip77

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lqwallet/lqkeys/errorcodes"
	"github.com/lqwallet/lqkeys/keychain"
	"github.com/lqwallet/lqkeys/lnutils"
)

var (
	// ErrInvalidBlindingKey is returned in the negligible case that the
	// HMAC output is not a valid secp256k1 scalar.
	ErrInvalidBlindingKey = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "derived blinding key is not "+
			"a valid scalar",
	)

	// ErrInvalidPubKey is returned when an ECDH public key cannot be
	// parsed.
	ErrInvalidPubKey = errorcodes.New(
		errorcodes.ErrCodeInvalidInput, "invalid ecdh public key",
	)

	// ErrDeriverZeroed is returned once the deriver's master key has been
	// wiped.
	ErrDeriverZeroed = errorcodes.New(
		errorcodes.ErrCodeUninitializedDevice, "blinding key deriver "+
			"has been zeroed",
	)
)

// BlindingPrivKey derives the blinding private key of an output script:
// HMAC-SHA256(key = mbk, msg = script). The caller must zero the returned key.
func BlindingPrivKey(mbk [32]byte, script []byte) (*btcec.PrivateKey, error) {
	mac := hmac.New(sha256.New, mbk[:])
	mac.Write(script)
	sum := mac.Sum(nil)
	defer lnutils.Zero(sum)

	var scalar secp256k1.ModNScalar
	defer scalar.Zero()

	if overflow := scalar.SetByteSlice(sum); overflow || scalar.IsZero() {
		return nil, ErrInvalidBlindingKey
	}

	return secp256k1.NewPrivateKey(&scalar), nil
}

// BlindingPubKey returns the compressed public key of BlindingPrivKey.
func BlindingPubKey(mbk [32]byte, script []byte) ([33]byte, error) {
	var pub [33]byte

	priv, err := BlindingPrivKey(mbk, script)
	if err != nil {
		return pub, err
	}
	defer priv.Zero()

	copy(pub[:], priv.PubKey().SerializeCompressed())

	return pub, nil
}

// RangeProofNonce returns the nonce a range proof is rewound with:
// SHA256(SHA256(compressed(k·P))). Sender and recipient arrive at the same
// nonce from either side of the key exchange.
func RangeProofNonce(priv *btcec.PrivateKey, ecdhPub []byte) ([32]byte,
	error) {

	pub, err := btcec.ParsePubKey(ecdhPub)
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: %v", ErrInvalidPubKey, err)
	}

	ecdh := keychain.PrivKeyECDH{PrivKey: priv}
	shared, err := ecdh.ECDH(pub)
	if err != nil {
		return [32]byte{}, err
	}
	defer lnutils.Zero32(&shared)

	return [32]byte(chainhash.HashH(shared[:])), nil
}

// Deriver derives blinding keys and nonces from a single master blinding key.
// It must be zeroed once it is no longer needed.
type Deriver struct {
	mbk    [32]byte
	zeroed bool
}

// NewDeriver creates a deriver around a copy of the master blinding key.
func NewDeriver(mbk [32]byte) *Deriver {
	return &Deriver{mbk: mbk}
}

// FromKeychain creates a deriver from the master blinding key of the
// keychain, which must have been granted m/10077' on secp256k1.
func FromKeychain(k *keychain.Keychain) (*Deriver, error) {
	mbk, err := k.MasterBlindingKey(keychain.CurveSecp256k1)
	if err != nil {
		return nil, err
	}
	defer lnutils.Zero32(&mbk)

	return NewDeriver(mbk), nil
}

// PrivKey returns the blinding private key of the output script.
func (d *Deriver) PrivKey(script []byte) (*btcec.PrivateKey, error) {
	if d.zeroed {
		return nil, ErrDeriverZeroed
	}

	return BlindingPrivKey(d.mbk, script)
}

// PubKey returns the blinding public key of the output script.
func (d *Deriver) PubKey(script []byte) ([33]byte, error) {
	if d.zeroed {
		return [33]byte{}, ErrDeriverZeroed
	}

	pub, err := BlindingPubKey(d.mbk, script)
	if err != nil {
		return pub, err
	}

	log.Tracef("Derived blinding pubkey %x for script %x", pub, script)

	return pub, nil
}

// RangeProofNonce returns the nonce for an output locked to script whose
// sender published ecdhPub.
func (d *Deriver) RangeProofNonce(ecdhPub, script []byte) ([32]byte, error) {
	priv, err := d.PrivKey(script)
	if err != nil {
		return [32]byte{}, err
	}
	defer priv.Zero()

	return RangeProofNonce(priv, ecdhPub)
}

// Zero wipes the master blinding key.
func (d *Deriver) Zero() {
	lnutils.Zero32(&d.mbk)
	d.zeroed = true
}
