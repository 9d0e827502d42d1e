package claimmodel

import (
	"crypto/sha256"
	"fmt"

	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/multiformats/go-multibase"
)

// Signature is a type-erased signature over the supported suites.
type Signature struct {
	suite Suite
	raw   []byte
}

func newSignature(s Suite, raw []byte) Signature {
	out := make([]byte, len(raw))
	copy(out, raw)
	return Signature{suite: s, raw: out}
}

func (s Signature) Suite() Suite { return s.suite }
func (s Signature) IsZero() bool { return s.suite == SuiteUnknown }

func (s Signature) Bytes() []byte {
	out := make([]byte, len(s.raw))
	copy(out, s.raw)
	return out
}

// String renders "s" + suite + multibase(raw).
func (s Signature) String() string {
	if s.IsZero() {
		return ""
	}
	body, err := multibase.Encode(multibase.Base58BTC, s.raw)
	if err != nil {
		panic(fmt.Sprintf("claimmodel: multibase encode: %v", err))
	}
	return string(prefixSignature) + string(byte(s.suite)) + body
}

func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Signature) UnmarshalText(text []byte) error {
	parsed, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSignature parses the textual form produced by Signature.String.
func ParseSignature(str string) (Signature, error) {
	if len(str) < 2 || str[0] != prefixSignature {
		return Signature{}, fmt.Errorf("claimmodel: %w: not a signature", mercuryerr.ErrMalformed)
	}
	suite, err := suiteFromByte(str[1])
	if err != nil {
		return Signature{}, err
	}
	_, raw, err := multibase.Decode(str[2:])
	if err != nil {
		return Signature{}, fmt.Errorf("claimmodel: %w: %v", mercuryerr.ErrMalformed, err)
	}
	return newSignature(suite, raw), nil
}

// SignedMessage pairs a message with the public key and signature that
// authenticate it, as returned by KeyVault.Sign.
type SignedMessage struct {
	PublicKey PublicKey
	Message   []byte
	Signature Signature
}

// Validate reports whether Signature verifies over Message under PublicKey.
func (m SignedMessage) Validate() bool {
	if m.PublicKey.IsZero() || m.Signature.IsZero() {
		return false
	}
	return m.PublicKey.Verify(m.Message, m.Signature)
}

func sha256Sum(b []byte) [32]byte { return sha256.Sum256(b) }
