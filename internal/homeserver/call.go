package homeserver

import (
	"context"
	"fmt"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/homeprotocol"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
)

// Call implements §4.6 call routing: validate the caller is authorized by
// Relation for appId, find the callee's checkin channel, push an
// IncomingCall, and block for the answer. The AnswerResult is returned as
// is; the wire dispatcher forwards only its accept/reject outcome, not the
// Sink (see dispatch).
//
// callerId/callerPubkey come from the handshake, not from the request body:
// Relation itself carries a pubkey for callerId, but an unauthenticated
// field in the request is not proof of who sent it, so the signature check
// below is anchored on the identity the transport already authenticated.
func (s *Server) Call(ctx context.Context, callerId claimmodel.ProfileId, callerPubkey claimmodel.PublicKey, calleeId claimmodel.ProfileId, req homeprotocol.CallRequest) (homeprotocol.AnswerResult, error) {
	if req.Relation.RelationType != claimmodel.RelationEnableCallBetween {
		return homeprotocol.AnswerResult{}, mercuryerr.ErrRelationTypeMismatch
	}
	if !req.Relation.Involves(calleeId) || !req.Relation.Involves(callerId) {
		return homeprotocol.AnswerResult{}, mercuryerr.ErrInvalidRelationProof
	}

	s.mu.RLock()
	calleeProfile, calleeHosted := s.hosted[calleeId.String()]
	ch, ok := s.appCheckins[profileAppKey{profile: calleeId, appId: req.AppId}]
	s.mu.RUnlock()
	if !calleeHosted {
		return homeprotocol.AnswerResult{}, mercuryerr.ErrPeerNotHostedHere
	}
	if err := claimmodel.ValidateRelationProof(req.Relation, callerId, callerPubkey, calleeId, calleeProfile.Public.PublicKey); err != nil {
		return homeprotocol.AnswerResult{}, fmt.Errorf("homeserver: %w: %v", mercuryerr.ErrInvalidRelationProof, err)
	}
	if !ok {
		return homeprotocol.AnswerResult{}, mercuryerr.ErrCalleeUnavailable
	}

	call := homeprotocol.IncomingCall{Request: req, Accept: make(chan homeprotocol.AnswerResult, 1)}
	select {
	case ch <- call:
	case <-ctx.Done():
		return homeprotocol.AnswerResult{}, fmt.Errorf("homeserver: %w: %v", mercuryerr.ErrCallFailed, ctx.Err())
	}

	select {
	case answer, ok := <-call.Accept:
		if !ok {
			return homeprotocol.AnswerResult{}, mercuryerr.ErrCallFailed
		}
		return answer, nil
	case <-ctx.Done():
		return homeprotocol.AnswerResult{}, fmt.Errorf("homeserver: %w: %v", mercuryerr.ErrCallFailed, ctx.Err())
	}
}

// Answer is how a callee's app resolves an IncomingCall it pulled from its
// checkin channel: it hands toCallee back to the blocked Call as an accepted
// AnswerResult and closes the call's Accept channel. Nothing links the two
// legs afterwards: closing one sink does not close the other.
func Answer(call homeprotocol.IncomingCall, toCallee homeprotocol.Sink) {
	call.Accept <- homeprotocol.AnswerResult{Accepted: true, ToCallee: toCallee}
	close(call.Accept)
}

// Reject answers an IncomingCall with a rejection reason.
func Reject(call homeprotocol.IncomingCall, reason string) {
	call.Accept <- homeprotocol.AnswerResult{Accepted: false, RejectMsg: reason}
	close(call.Accept)
}
