package claimmodel

import (
	"fmt"

	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
	"golang.org/x/crypto/sha3"
)

// idHashCode is the multihash function code used for profile ids. SHA3-256
// keeps it independent of the suite (Ed25519 vs secp256k1 keys hash the
// same way), matching the spec's "content-hash of a public key under a
// chosen hash algorithm".
const idHashCode = multihash.SHA3_256

// ProfileId is the content-hash of a public key, multihash-wrapped and
// multibase-encoded, tagged with the suite of the key it was derived from.
// Two ProfileIds are equal iff their multihash bytes are equal AND their
// suite tags match (§3).
type ProfileId struct {
	suite     Suite
	multihash []byte // full multihash envelope: <code varint><len varint><digest>
}

// profileIdFromPublicKeyBytes computes the ProfileId for a suite/raw-bytes
// pair without requiring a constructed PublicKey (used by both PublicKey.KeyID
// and vault derivation paths that only have raw bytes on hand).
func profileIdFromPublicKeyBytes(s Suite, raw []byte) (ProfileId, error) {
	digest := sha3.Sum256(raw)
	mh, err := multihash.Encode(digest[:], idHashCode)
	if err != nil {
		return ProfileId{}, fmt.Errorf("claimmodel: multihash encode: %w", err)
	}
	return ProfileId{suite: s, multihash: mh}, nil
}

// Suite returns the cipher suite this id was derived under.
func (id ProfileId) Suite() Suite { return id.suite }

// Bytes returns the raw multihash envelope (without the type/suite prefix
// characters used in the textual form).
func (id ProfileId) Bytes() []byte {
	out := make([]byte, len(id.multihash))
	copy(out, id.multihash)
	return out
}

// IsZero reports whether id is the zero value (no suite, no digest).
func (id ProfileId) IsZero() bool { return id.suite == SuiteUnknown && len(id.multihash) == 0 }

// Equal compares bytes and suite tag, per §3.
func (id ProfileId) Equal(other ProfileId) bool {
	if id.suite != other.suite {
		return false
	}
	if len(id.multihash) != len(other.multihash) {
		return false
	}
	for i := range id.multihash {
		if id.multihash[i] != other.multihash[i] {
			return false
		}
	}
	return true
}

// Less defines the canonical byte order used to pick the "A" role in a
// RelationProof: suite byte first, then multihash bytes, lexicographically.
func (id ProfileId) Less(other ProfileId) bool {
	if id.suite != other.suite {
		return id.suite < other.suite
	}
	n := len(id.multihash)
	if len(other.multihash) < n {
		n = len(other.multihash)
	}
	for i := 0; i < n; i++ {
		if id.multihash[i] != other.multihash[i] {
			return id.multihash[i] < other.multihash[i]
		}
	}
	return len(id.multihash) < len(other.multihash)
}

// String renders the canonical textual form: 'i' + suite byte + multibase
// body ('z' + base58btc of the multihash envelope), e.g. "iez..." for an
// Ed25519 key.
func (id ProfileId) String() string {
	if id.IsZero() {
		return ""
	}
	body, err := multibase.Encode(multibase.Base58BTC, id.multihash)
	if err != nil {
		// Base58BTC encoding never fails for well-formed input.
		panic(fmt.Sprintf("claimmodel: multibase encode: %v", err))
	}
	return string(prefixProfileId) + string(byte(id.suite)) + body
}

// MarshalText implements encoding.TextMarshaler so ProfileId can be used
// directly as a msgpack/JSON map key or value.
func (id ProfileId) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ProfileId) UnmarshalText(text []byte) error {
	parsed, err := ParseProfileId(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseProfileId parses the textual form produced by ProfileId.String.
func ParseProfileId(s string) (ProfileId, error) {
	if len(s) < 2 || s[0] != prefixProfileId {
		return ProfileId{}, fmt.Errorf("claimmodel: %w: not a profile id", mercuryerr.ErrMalformed)
	}
	suite, err := suiteFromByte(s[1])
	if err != nil {
		return ProfileId{}, err
	}
	_, mh, err := multibase.Decode(s[2:])
	if err != nil {
		return ProfileId{}, fmt.Errorf("claimmodel: %w: %v", mercuryerr.ErrMalformed, err)
	}
	if _, err := multihash.Decode(mh); err != nil {
		return ProfileId{}, fmt.Errorf("claimmodel: %w: invalid multihash: %v", mercuryerr.ErrMalformed, err)
	}
	return ProfileId{suite: suite, multihash: mh}, nil
}
