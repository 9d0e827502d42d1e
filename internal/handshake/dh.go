package handshake

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"golang.org/x/crypto/curve25519"
)

// fieldPrime is 2^255-19, the field curve25519/edwards25519 operate over.
var fieldPrime = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(19))

// edwardsYToMontgomeryU applies the standard birational map from an
// edwards25519 y-coordinate to the corresponding curve25519 Montgomery u
// coordinate: u = (1+y)/(1-y) mod p. The map is independent of x's sign,
// so a compressed Ed25519 public key (which only needs its top sign bit
// cleared to recover y) converts without reconstructing the full point.
func edwardsYToMontgomeryU(pub []byte) ([32]byte, error) {
	if len(pub) != 32 {
		return [32]byte{}, fmt.Errorf("handshake: ed25519 public key must be 32 bytes")
	}
	yLE := make([]byte, 32)
	copy(yLE, pub)
	yLE[31] &= 0x7f // clear the x-sign bit; only y survives into u

	yBE := reverse(yLE)
	y := new(big.Int).SetBytes(yBE)

	one := big.NewInt(1)
	numerator := new(big.Int).Add(one, y)
	numerator.Mod(numerator, fieldPrime)
	denominator := new(big.Int).Sub(one, y)
	denominator.Mod(denominator, fieldPrime)
	denomInv := new(big.Int).ModInverse(denominator, fieldPrime)
	if denomInv == nil {
		return [32]byte{}, fmt.Errorf("handshake: edwards point has no montgomery image")
	}
	u := new(big.Int).Mul(numerator, denomInv)
	u.Mod(u, fieldPrime)

	var out [32]byte
	uBytes := u.Bytes()
	copy(out[32-len(uBytes):], uBytes)
	return [32]byte(reverse(out[:])), nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// ed25519SeedToX25519Scalar is the standard clamped-hash conversion of an
// Ed25519 signing seed into its corresponding X25519 private scalar
// (the same construction libsodium's crypto_sign_ed25519_sk_to_curve25519
// uses): hash the 32-byte seed with SHA-512 and keep the clamped low half.
func ed25519SeedToX25519Scalar(seed []byte) [32]byte {
	h := sha512.Sum512(seed)
	var scalar [32]byte
	copy(scalar[:], h[:32])
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
	return scalar
}

// ed25519DHSecret computes an X25519 shared secret between our Ed25519
// signing key and the peer's Ed25519 public key.
func ed25519DHSecret(mySeed []byte, peerPub []byte) ([]byte, error) {
	scalar := ed25519SeedToX25519Scalar(mySeed)
	peerU, err := edwardsYToMontgomeryU(peerPub)
	if err != nil {
		return nil, err
	}
	secret, err := curve25519.X25519(scalar[:], peerU[:])
	if err != nil {
		return nil, fmt.Errorf("handshake: x25519: %w", err)
	}
	return secret, nil
}

// secp256k1DHSecret computes the x-coordinate of (ourPriv * peerPub), the
// standard ECDH construction over secp256k1.
func secp256k1DHSecret(myRaw []byte, peerRaw []byte) ([]byte, error) {
	priv := secp256k1.PrivKeyFromBytes(myRaw)
	defer priv.Zero()
	pub, err := secp256k1.ParsePubKey(peerRaw)
	if err != nil {
		return nil, fmt.Errorf("handshake: parse peer pubkey: %w", err)
	}
	var result secp256k1.JacobianPoint
	pub.AsJacobian(&result)
	var product secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&priv.Key, &result, &product)
	product.ToAffine()
	x := product.X.Bytes()
	return x[:], nil
}

// deriveSharedKey computes a 32-byte symmetric key from mySigner/peer if
// the suite supports DH, or reports that it does not (degraded mode).
func deriveSharedKey(mySigner claimmodel.PrivateKey, peerPub claimmodel.PublicKey) (key [32]byte, ok bool, err error) {
	if mySigner.Suite() != peerPub.Suite() {
		return key, false, nil
	}
	var secret []byte
	switch mySigner.Suite() {
	case claimmodel.SuiteEd25519:
		secret, err = ed25519DHSecret(mySigner.Bytes()[:32], peerPub.Bytes())
	case claimmodel.SuiteSecp256k1:
		secret, err = secp256k1DHSecret(mySigner.Bytes(), peerPub.Bytes())
	default:
		return key, false, nil
	}
	if err != nil {
		return key, false, err
	}
	key = sha256.Sum256(secret)
	return key, true, nil
}
