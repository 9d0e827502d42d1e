package claimmodel

import (
	"crypto/ed25519"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/multiformats/go-multibase"
)

// PublicKey is a type-erased key over the supported suites. The suite tag
// is checked before the body on every comparison, parse, and dispatch.
type PublicKey struct {
	suite Suite
	raw   []byte // 32 bytes (ed25519) or 33 bytes compressed (secp256k1)
}

// PrivateKey mirrors PublicKey but is never serialized to text (§3).
type PrivateKey struct {
	suite Suite
	raw   []byte
}

func (k PublicKey) Suite() Suite  { return k.suite }
func (k PrivateKey) Suite() Suite { return k.suite }

// Bytes returns the raw key material (copy).
func (k PublicKey) Bytes() []byte {
	out := make([]byte, len(k.raw))
	copy(out, k.raw)
	return out
}

func (k PrivateKey) Bytes() []byte {
	out := make([]byte, len(k.raw))
	copy(out, k.raw)
	return out
}

func (k PublicKey) IsZero() bool { return k.suite == SuiteUnknown }

func (k PublicKey) Equal(other PublicKey) bool {
	if k.suite != other.suite || len(k.raw) != len(other.raw) {
		return false
	}
	for i := range k.raw {
		if k.raw[i] != other.raw[i] {
			return false
		}
	}
	return true
}

// KeyID returns the ProfileId this public key hashes to: k.KeyID().Suite()
// == k.Suite() always holds.
func (k PublicKey) KeyID() (ProfileId, error) {
	return profileIdFromPublicKeyBytes(k.suite, k.raw)
}

// NewPublicKey constructs a PublicKey from suite-tagged raw bytes,
// validating the expected length for the suite.
func NewPublicKey(suite Suite, raw []byte) (PublicKey, error) {
	switch suite {
	case SuiteEd25519:
		if len(raw) != ed25519.PublicKeySize {
			return PublicKey{}, fmt.Errorf("claimmodel: %w: ed25519 public key must be %d bytes", mercuryerr.ErrMalformed, ed25519.PublicKeySize)
		}
	case SuiteSecp256k1:
		if len(raw) != 33 {
			return PublicKey{}, fmt.Errorf("claimmodel: %w: secp256k1 public key must be 33 bytes compressed", mercuryerr.ErrMalformed)
		}
		if _, err := secp256k1.ParsePubKey(raw); err != nil {
			return PublicKey{}, fmt.Errorf("claimmodel: %w: %v", mercuryerr.ErrMalformed, err)
		}
	default:
		return PublicKey{}, mercuryerr.ErrUnsupportedSuite
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return PublicKey{suite: suite, raw: out}, nil
}

// Verify checks sig over msg under k. It never panics on malformed input.
func (k PublicKey) Verify(msg []byte, sig Signature) bool {
	if k.suite == SuiteUnknown || k.suite != sig.suite {
		return false
	}
	switch k.suite {
	case SuiteEd25519:
		if len(sig.raw) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(k.raw), msg, sig.raw)
	case SuiteSecp256k1:
		pk, err := secp256k1.ParsePubKey(k.raw)
		if err != nil {
			return false
		}
		s, err := ecdsa.ParseDERSignature(sig.raw)
		if err != nil {
			return false
		}
		digest := sha256Sum(msg)
		return s.Verify(digest[:], pk)
	default:
		return false
	}
}

// String renders "p" + suite + multibase(raw).
func (k PublicKey) String() string {
	if k.IsZero() {
		return ""
	}
	body, err := multibase.Encode(multibase.Base58BTC, k.raw)
	if err != nil {
		panic(fmt.Sprintf("claimmodel: multibase encode: %v", err))
	}
	return string(prefixPublicKey) + string(byte(k.suite)) + body
}

func (k PublicKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParsePublicKey parses the textual form produced by PublicKey.String.
func ParsePublicKey(s string) (PublicKey, error) {
	if len(s) < 2 || s[0] != prefixPublicKey {
		return PublicKey{}, fmt.Errorf("claimmodel: %w: not a public key", mercuryerr.ErrMalformed)
	}
	suite, err := suiteFromByte(s[1])
	if err != nil {
		return PublicKey{}, err
	}
	_, raw, err := multibase.Decode(s[2:])
	if err != nil {
		return PublicKey{}, fmt.Errorf("claimmodel: %w: %v", mercuryerr.ErrMalformed, err)
	}
	return NewPublicKey(suite, raw)
}

// NewPrivateKey wraps suite-tagged raw secret bytes. No length validation
// beyond what Sign/PublicKey need, since private keys only ever come from
// KeyVault derivation, which already guarantees well-formed material.
func NewPrivateKey(suite Suite, raw []byte) PrivateKey {
	out := make([]byte, len(raw))
	copy(out, raw)
	return PrivateKey{suite: suite, raw: out}
}

// PublicKey derives the matching public key.
func (k PrivateKey) PublicKey() (PublicKey, error) {
	switch k.suite {
	case SuiteEd25519:
		sk := ed25519.PrivateKey(k.raw)
		return NewPublicKey(SuiteEd25519, sk.Public().(ed25519.PublicKey))
	case SuiteSecp256k1:
		sk := secp256k1.PrivKeyFromBytes(k.raw)
		defer sk.Zero()
		return NewPublicKey(SuiteSecp256k1, sk.PubKey().SerializeCompressed())
	default:
		return PublicKey{}, mercuryerr.ErrUnsupportedSuite
	}
}

// Sign produces a Signature over msg.
func (k PrivateKey) Sign(msg []byte) (Signature, error) {
	switch k.suite {
	case SuiteEd25519:
		if len(k.raw) != ed25519.PrivateKeySize {
			return Signature{}, fmt.Errorf("claimmodel: %w: ed25519 private key must be %d bytes", mercuryerr.ErrMalformed, ed25519.PrivateKeySize)
		}
		sig := ed25519.Sign(ed25519.PrivateKey(k.raw), msg)
		return newSignature(SuiteEd25519, sig), nil
	case SuiteSecp256k1:
		sk := secp256k1.PrivKeyFromBytes(k.raw)
		defer sk.Zero()
		digest := sha256Sum(msg)
		sig := ecdsa.Sign(sk, digest[:])
		return newSignature(SuiteSecp256k1, sig.Serialize()), nil
	default:
		return Signature{}, mercuryerr.ErrUnsupportedSuite
	}
}
