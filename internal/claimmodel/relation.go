package claimmodel

import (
	"fmt"

	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/vmihailenco/msgpack/v5"
)

// Reserved relation types (§3).
const (
	RelationHostedOnHome     = "hosted_on_home"
	RelationEnableCallBetween = "enable_call_between"
)

// RelationHalfProof is one party's signed half of a two-party relation.
type RelationHalfProof struct {
	RelationType string
	SignerId     ProfileId
	SignerPubkey PublicKey
	PeerId       ProfileId
	Signature    Signature
}

// halfProofMessage is the canonical byte string a half-proof's signature
// covers: (relation_type, signer_id, peer_id).
func halfProofMessage(relationType string, signerId, peerId ProfileId) []byte {
	b, err := msgpack.Marshal([]any{relationType, signerId.String(), peerId.String()})
	if err != nil {
		// msgpack marshaling of plain strings never fails.
		panic(fmt.Sprintf("claimmodel: marshal half-proof message: %v", err))
	}
	return b
}

// SignHalfProof produces a half-proof binding signer to peer under
// relationType, using signer's private key.
func SignHalfProof(relationType string, signer PrivateKey, peerId ProfileId) (RelationHalfProof, error) {
	signerPub, err := signer.PublicKey()
	if err != nil {
		return RelationHalfProof{}, err
	}
	signerId, err := signerPub.KeyID()
	if err != nil {
		return RelationHalfProof{}, err
	}
	sig, err := signer.Sign(halfProofMessage(relationType, signerId, peerId))
	if err != nil {
		return RelationHalfProof{}, err
	}
	return RelationHalfProof{
		RelationType: relationType,
		SignerId:     signerId,
		SignerPubkey: signerPub,
		PeerId:       peerId,
		Signature:    sig,
	}, nil
}

// ValidateHalfProof verifies half.Signature over the canonical message and
// that signerPK's key id matches half.SignerId (§4.2).
func ValidateHalfProof(half RelationHalfProof, signerPK PublicKey) error {
	keyID, err := signerPK.KeyID()
	if err != nil {
		return err
	}
	if !keyID.Equal(half.SignerId) {
		return mercuryerr.ErrProfileIdMismatch
	}
	msg := halfProofMessage(half.RelationType, half.SignerId, half.PeerId)
	if !signerPK.Verify(msg, half.Signature) {
		return mercuryerr.ErrSignatureInvalid
	}
	return nil
}

// CompleteHalfProof has the receiving party (the half-proof's peer) sign
// its own half and assemble the canonical two-party RelationProof.
func CompleteHalfProof(half RelationHalfProof, responder PrivateKey) (RelationProof, error) {
	if err := ValidateHalfProof(half, half.SignerPubkey); err != nil {
		return RelationProof{}, err
	}
	responderPub, err := responder.PublicKey()
	if err != nil {
		return RelationProof{}, err
	}
	responderId, err := responderPub.KeyID()
	if err != nil {
		return RelationProof{}, err
	}
	if !responderId.Equal(half.PeerId) {
		return RelationProof{}, mercuryerr.ErrProfileIdMismatch
	}
	responderSig, err := responder.Sign(halfProofMessage(half.RelationType, responderId, half.SignerId))
	if err != nil {
		return RelationProof{}, err
	}
	return canonicalizeProof(half.RelationType,
		half.SignerId, half.SignerPubkey, half.Signature,
		responderId, responderPub, responderSig)
}

// RelationProof is the canonical two-party form: a_id < b_id always.
type RelationProof struct {
	RelationType string
	AId          ProfileId
	APubkey      PublicKey
	ASignature   Signature
	BId          ProfileId
	BPubkey      PublicKey
	BSignature   Signature
}

func canonicalizeProof(
	relationType string,
	id1 ProfileId, pk1 PublicKey, sig1 Signature,
	id2 ProfileId, pk2 PublicKey, sig2 Signature,
) (RelationProof, error) {
	if id1.Less(id2) {
		return RelationProof{relationType, id1, pk1, sig1, id2, pk2, sig2}, nil
	}
	if id2.Less(id1) {
		return RelationProof{relationType, id2, pk2, sig2, id1, pk1, sig1}, nil
	}
	return RelationProof{}, fmt.Errorf("claimmodel: %w: relation parties must differ", mercuryerr.ErrInvalidRelationProof)
}

// ValidateRelationProof checks both signatures and that {proof.AId,
// proof.BId} == {id1, id2} as a set, with a_id < b_id (§4.2).
func ValidateRelationProof(proof RelationProof, id1 ProfileId, pk1 PublicKey, id2 ProfileId, pk2 PublicKey) error {
	if !proof.AId.Less(proof.BId) {
		return fmt.Errorf("claimmodel: %w: a_id must be < b_id", mercuryerr.ErrInvalidRelationProof)
	}

	var aPK, bPK PublicKey
	switch {
	case proof.AId.Equal(id1) && proof.BId.Equal(id2):
		aPK, bPK = pk1, pk2
	case proof.AId.Equal(id2) && proof.BId.Equal(id1):
		aPK, bPK = pk2, pk1
	default:
		return fmt.Errorf("claimmodel: %w: declared parties do not match {id1,id2}", mercuryerr.ErrInvalidRelationProof)
	}

	if !proof.APubkey.Equal(aPK) || !proof.BPubkey.Equal(bPK) {
		return fmt.Errorf("claimmodel: %w: public key mismatch", mercuryerr.ErrInvalidRelationProof)
	}

	aMsg := halfProofMessage(proof.RelationType, proof.AId, proof.BId)
	if !proof.APubkey.Verify(aMsg, proof.ASignature) {
		return fmt.Errorf("claimmodel: %w: a signature invalid", mercuryerr.ErrSignatureInvalid)
	}
	bMsg := halfProofMessage(proof.RelationType, proof.BId, proof.AId)
	if !proof.BPubkey.Verify(bMsg, proof.BSignature) {
		return fmt.Errorf("claimmodel: %w: b signature invalid", mercuryerr.ErrSignatureInvalid)
	}
	return nil
}

// Involves reports whether id is one of the two parties to proof.
func (p RelationProof) Involves(id ProfileId) bool {
	return p.AId.Equal(id) || p.BId.Equal(id)
}

// OtherParty returns the party opposite id, and whether id was a party at all.
func (p RelationProof) OtherParty(id ProfileId) (ProfileId, bool) {
	switch {
	case p.AId.Equal(id):
		return p.BId, true
	case p.BId.Equal(id):
		return p.AId, true
	default:
		return ProfileId{}, false
	}
}
