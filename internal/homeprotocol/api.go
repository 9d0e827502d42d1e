package homeprotocol

import (
	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/profilerepo"
)

// ClaimRequest/ClaimResponse implement Claim(profileId) (§4.5).
type ClaimRequest struct {
	ProfileId claimmodel.ProfileId `msgpack:"profile_id"`
}

type ClaimResponse struct {
	Profile profilerepo.PrivateProfileData `msgpack:"profile"`
}

// RegisterRequest/RegisterResponse implement Register(ownProfile, halfProof).
type RegisterRequest struct {
	OwnProfile profilerepo.PrivateProfileData `msgpack:"own_profile"`
	HalfProof  claimmodel.RelationHalfProof   `msgpack:"half_proof"`
}

type RegisterResponse struct {
	Profile profilerepo.PrivateProfileData `msgpack:"profile"`
}

// LoginRequest/LoginResponse implement Login(homeRelationProof) → Session.
type LoginRequest struct {
	Proof claimmodel.RelationProof `msgpack:"proof"`
}

type LoginResponse struct {
	SessionToken string `msgpack:"session_token"`
}

// PairRequestRequest implements PairRequest(halfProof).
type PairRequestRequest struct {
	HalfProof claimmodel.RelationHalfProof `msgpack:"half_proof"`
}

type PairRequestResponse struct{}

// PairResponseRequest implements PairResponse(relationProof).
type PairResponseRequest struct {
	Proof claimmodel.RelationProof `msgpack:"proof"`
}

type PairResponseResponse struct{}

// CallRequest/CallResponse implement Call(appId, callRequest).
type CallRequest struct {
	AppId    string                   `msgpack:"app_id"`
	Relation claimmodel.RelationProof `msgpack:"relation"`
	Init     []byte                   `msgpack:"init_payload"`
}

// CallResponse carries only the accept/reject outcome across the wire.
// AnswerResult.ToCallee's Sink cannot be encoded here: Sink is an
// in-process interface value (the concrete relay is whatever connection
// the answering side holds), so the post-accept bidirectional payload
// relay between two wire-connected parties is not implemented by this
// transport. See DESIGN.md's homeserver/listener.go entry.
type CallResponse struct {
	Accepted bool   `msgpack:"accepted"`
	Reason   string `msgpack:"reason,omitempty"`
}

// UpdateRequest implements Session.Update(ownProfile).
type UpdateRequest struct {
	Profile profilerepo.PrivateProfileData `msgpack:"profile"`
}

// UnregisterRequest implements Session.Unregister(newHome).
type UnregisterRequest struct {
	NewHome *claimmodel.ProfileId `msgpack:"new_home,omitempty"`
}

// PingRequest/PingResponse implement Session.Ping(text) (string, error).
type PingRequest struct {
	Text string `msgpack:"text"`
}

type PingResponse struct {
	Text string `msgpack:"text"`
}

// CheckinAppRequest implements Session.CheckinApp(appId).
type CheckinAppRequest struct {
	AppId string `msgpack:"app_id"`
}

// EventKind tags a ProfileEvent's concrete variant for wire encoding.
type EventKind string

const (
	EventUnknown         EventKind = "unknown"
	EventPairingRequest  EventKind = "pairing_request"
	EventPairingResponse EventKind = "pairing_response"
)

// ProfileEvent is the variant union Session.Events() delivers (§4.5).
// Exactly one of the typed fields is populated, selected by Kind; Bytes
// carries the raw payload for EventUnknown (forward compatibility).
type ProfileEvent struct {
	Kind      EventKind                    `msgpack:"kind"`
	Bytes     []byte                       `msgpack:"bytes,omitempty"`
	HalfProof claimmodel.RelationHalfProof `msgpack:"half_proof,omitempty"`
	Proof     claimmodel.RelationProof     `msgpack:"proof,omitempty"`
}

// UnknownEvent wraps an unrecognized wire payload (forward compat).
func UnknownEvent(b []byte) ProfileEvent { return ProfileEvent{Kind: EventUnknown, Bytes: b} }

// PairingRequestEvent wraps an incoming pairing half-proof.
func PairingRequestEvent(half claimmodel.RelationHalfProof) ProfileEvent {
	return ProfileEvent{Kind: EventPairingRequest, HalfProof: half}
}

// PairingResponseEvent wraps a completed relation proof delivered back to
// the original requester.
func PairingResponseEvent(proof claimmodel.RelationProof) ProfileEvent {
	return ProfileEvent{Kind: EventPairingResponse, Proof: proof}
}

// AnswerResult is what answering an IncomingCall resolves with: either a
// sink to relay traffic to the callee, or a rejection reason.
type AnswerResult struct {
	Accepted  bool
	ToCallee  Sink
	RejectMsg string
}

// Sink is an opaque bidirectional relay endpoint a Call leg writes to /
// reads from once two parties are connected. The concrete transport
// (encrypted PeerContext frames) is supplied by the caller; HomeServer
// only shuttles values, never interprets them.
type Sink interface {
	Send(b []byte) error
	Recv() ([]byte, error)
	Close() error
}

// IncomingCall is pushed onto an app's checkin channel when a caller's
// Call() targets it.
type IncomingCall struct {
	Request CallRequest
	Accept  chan AnswerResult
}

// Session is the live, authenticated handle Login returns.
type Session interface {
	Update(ownProfile profilerepo.PrivateProfileData) error
	Unregister(newHome *claimmodel.ProfileId) error
	Events() <-chan ProfileEvent
	CheckinApp(appId string) (<-chan IncomingCall, error)
	Ping(text string) (string, error)
	Close() error
}
