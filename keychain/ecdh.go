package keychain

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// SingleKeyECDH computes shared secrets against one private key without
// exposing it.
type SingleKeyECDH interface {
	// PubKey returns the public half of the hidden key.
	PubKey() *btcec.PublicKey

	// ECDH returns sha256(compressed(k*P)) for the hidden key k and the
	// remote key P.
	ECDH(pubKey *btcec.PublicKey) ([32]byte, error)
}

// PrivKeyECDH wraps a blinding or ephemeral output key so range proof nonces
// can be derived from it.
type PrivKeyECDH struct {
	PrivKey *btcec.PrivateKey
}

// PubKey returns the public key of the wrapped key.
func (p *PrivKeyECDH) PubKey() *btcec.PublicKey {
	return p.PrivKey.PubKey()
}

// ECDH multiplies the remote key by the wrapped scalar and hashes the
// compressed result:
//
//	s := sha256(compressed(k*P))
//
// The intermediate point is cleared before returning.
func (p *PrivKeyECDH) ECDH(pub *btcec.PublicKey) ([32]byte, error) {
	var remote, shared btcec.JacobianPoint
	pub.AsJacobian(&remote)

	btcec.ScalarMultNonConst(&p.PrivKey.Key, &remote, &shared)
	shared.ToAffine()

	point := btcec.NewPublicKey(&shared.X, &shared.Y)
	secret := chainhash.HashB(point.SerializeCompressed())

	shared.X.Zero()
	shared.Y.Zero()
	shared.Z.Zero()

	return [32]byte(secret), nil
}

// Zero wipes the wrapped private key.
func (p *PrivKeyECDH) Zero() {
	if p.PrivKey != nil {
		p.PrivKey.Zero()
	}
}

var _ SingleKeyECDH = (*PrivKeyECDH)(nil)
