package claimmodel

import (
	"fmt"
	"time"

	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
	"github.com/vmihailenco/msgpack/v5"
)

// SchemaId identifies a ClaimSchema by its content hash.
type SchemaId struct {
	multihash []byte
}

func (s SchemaId) String() string {
	body, _ := multibase.Encode(multibase.Base58BTC, s.multihash)
	return body
}

func (s SchemaId) Equal(other SchemaId) bool {
	if len(s.multihash) != len(other.multihash) {
		return false
	}
	for i := range s.multihash {
		if s.multihash[i] != other.multihash[i] {
			return false
		}
	}
	return true
}

func contentHash(b []byte) ([]byte, error) {
	digest := sha256Sum(b)
	return multihash.Encode(digest[:], multihash.SHA2_256)
}

// NewSchemaId computes the SchemaId for a schema's canonical content bytes.
func NewSchemaId(content []byte) (SchemaId, error) {
	mh, err := contentHash(content)
	if err != nil {
		return SchemaId{}, err
	}
	return SchemaId{multihash: mh}, nil
}

// ClaimId is the content hash of a claim's (subject, schema, content) tuple.
type ClaimId struct {
	multihash []byte
}

func (c ClaimId) String() string {
	body, _ := multibase.Encode(multibase.Base58BTC, c.multihash)
	return body
}

// Claim is a signed assertion about a profile, conforming to a schema.
type Claim struct {
	Subject ProfileId
	Schema  SchemaId
	Content []byte
	Proofs  []ClaimProof
}

// ClaimProof is one signer's attestation of a Claim.
type ClaimProof struct {
	SignerId      ProfileId
	SignedMessage SignedMessage
	IssuedAt      time.Time
	ValidUntil    time.Time
}

// Id computes the content-hash identity of the claim (subject+schema+content
// only; proofs are not part of the hash so additional signatures can attach
// without changing the claim's identity).
func (c Claim) Id() (ClaimId, error) {
	b, err := msgpack.Marshal([]any{c.Subject.String(), c.Schema.String(), c.Content})
	if err != nil {
		return ClaimId{}, fmt.Errorf("claimmodel: marshal claim: %w", err)
	}
	mh, err := contentHash(b)
	if err != nil {
		return ClaimId{}, err
	}
	return ClaimId{multihash: mh}, nil
}

// ValidateProof checks that a ClaimProof's signed message is internally
// consistent: the signature validates, and the signer id matches the
// signed message's public key (§4.2 "Claim signing").
func ValidateProof(p ClaimProof) error {
	if !p.SignedMessage.Validate() {
		return mercuryerr.ErrSignatureInvalid
	}
	keyID, err := p.SignedMessage.PublicKey.KeyID()
	if err != nil {
		return err
	}
	if !keyID.Equal(p.SignerId) {
		return mercuryerr.ErrProfileIdMismatch
	}
	return nil
}

// SignClaim produces a ClaimProof attesting to claim's content hash, valid
// from issuedAt to validUntil.
func SignClaim(claim Claim, signer PrivateKey, issuedAt, validUntil time.Time) (ClaimProof, error) {
	id, err := claim.Id()
	if err != nil {
		return ClaimProof{}, err
	}
	pub, err := signer.PublicKey()
	if err != nil {
		return ClaimProof{}, err
	}
	signerId, err := pub.KeyID()
	if err != nil {
		return ClaimProof{}, err
	}
	sig, err := signer.Sign(id.multihash)
	if err != nil {
		return ClaimProof{}, err
	}
	return ClaimProof{
		SignerId: signerId,
		SignedMessage: SignedMessage{
			PublicKey: pub,
			Message:   id.multihash,
			Signature: sig,
		},
		IssuedAt:   issuedAt,
		ValidUntil: validUntil,
	}, nil
}
