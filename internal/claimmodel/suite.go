// Package claimmodel implements the Mercury identity/claim data model: the
// multi-cipher key and signature wrapper, profile identifiers, relation
// proofs, and claims. The suite dispatch here is a tagged sum (switch on a
// one-byte discriminator), not an interface with runtime downcasts, per the
// "dynamic dispatch for suites" design note.
package claimmodel

import "github.com/mercury-network/mercury-go/internal/mercuryerr"

// Suite identifies a supported signature/key-agreement cipher. It is the
// single-byte discriminator carried in every textual key/signature/id form.
type Suite byte

const (
	SuiteUnknown   Suite = 0
	SuiteEd25519   Suite = 'e'
	SuiteSecp256k1 Suite = 'k'
)

func (s Suite) String() string {
	switch s {
	case SuiteEd25519:
		return "ed25519"
	case SuiteSecp256k1:
		return "secp256k1"
	default:
		return "unknown"
	}
}

func (s Suite) valid() bool {
	return s == SuiteEd25519 || s == SuiteSecp256k1
}

// Textual type-prefix characters, distinct from the suite byte that
// follows them in a serialized string.
const (
	prefixProfileId = 'i'
	prefixPublicKey = 'p'
	prefixSignature = 's'
)

func suiteFromByte(b byte) (Suite, error) {
	s := Suite(b)
	if !s.valid() {
		return SuiteUnknown, mercuryerr.ErrUnsupportedSuite
	}
	return s, nil
}
