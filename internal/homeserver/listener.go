package homeserver

import (
	"context"
	"fmt"
	"net"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/handshake"
	"github.com/mercury-network/mercury-go/internal/homeprotocol"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/vmihailenco/msgpack/v5"
)

// Listen accepts connections on ln, performs the handshake on each, and
// dispatches HomeProtocol envelopes to this Server until the connection (or
// ln itself) closes. Mirrors the teacher's accept-loop shape (node/p2p
// listener), one goroutine per peer, no shared mutable state outside Server.
func (s *Server) Listen(ln net.Listener, allowDegraded bool) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn, allowDegraded)
	}
}

func (s *Server) handleConn(conn net.Conn, allowDegraded bool) {
	defer conn.Close()
	pc, err := handshake.Perform(conn, s.signer, s.selfId, allowDegraded, s.log)
	if err != nil {
		s.log.WithError(err).Warn("homeserver: handshake failed")
		return
	}
	defer pc.Close()

	// ctx bounds calls blocked in Server.Call (awaiting an answer) to this
	// connection's lifetime: if the caller hangs up, the pending Call
	// unblocks instead of leaking a goroutine forever.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sess homeprotocol.Session
	defer func() {
		if sess != nil {
			_ = sess.Close()
		}
	}()

	for {
		frame, err := pc.ReadFrame()
		if err != nil {
			return
		}
		var env homeprotocol.Envelope
		if err := msgpack.Unmarshal(frame, &env); err != nil {
			s.log.WithError(err).Warn("homeserver: malformed envelope")
			return
		}

		replyBody, replyErr := s.dispatch(ctx, pc.PeerId, pc.PeerPubkey, env, &sess)
		var out homeprotocol.Envelope
		if replyErr != nil {
			errBody, _ := homeprotocol.EncodeBody(homeprotocol.ErrorBody{Kind: "error", Message: replyErr.Error()})
			out = homeprotocol.Envelope{Op: "error", Rid: env.Rid, Body: errBody}
		} else {
			out = homeprotocol.Envelope{Op: env.Op, Rid: env.Rid, Body: replyBody}
		}
		outBytes, err := msgpack.Marshal(out)
		if err != nil {
			s.log.WithError(err).Warn("homeserver: marshal response")
			return
		}
		if err := pc.WriteFrame(outBytes); err != nil {
			return
		}
	}
}

// dispatch routes one envelope to the matching Server/Session operation.
// CheckinApp/Events are intentionally not exposed here: pushing async
// session events over this same request/response multiplexed connection
// needs a frame-tagging scheme this transport doesn't implement yet: those
// two are exercised in-process (dappsession over a directly-held Session),
// not across this wire listener.
//
// Call is dispatched (the caller's accepted/rejected outcome travels over
// the wire as CallResponse), but the post-accept bidirectional data relay
// (AnswerResult.ToCallee's Sink) is not: Sink is an in-process interface
// value with no wire encoding, so a call answered by a callee that checked
// in over this same listener has no path to relay payload bytes back to a
// wire-connected caller yet. See DESIGN.md for this scope decision.
func (s *Server) dispatch(ctx context.Context, peerId claimmodel.ProfileId, peerPubkey claimmodel.PublicKey, env homeprotocol.Envelope, sess *homeprotocol.Session) (msgpack.RawMessage, error) {
	switch env.Op {
	case homeprotocol.OpClaim:
		var req homeprotocol.ClaimRequest
		if err := homeprotocol.DecodeBody(env.Body, &req); err != nil {
			return nil, err
		}
		if !req.ProfileId.Equal(peerId) {
			return nil, mercuryerr.ErrUnauthorized
		}
		profile, err := s.Claim(req.ProfileId)
		if err != nil {
			return nil, err
		}
		return homeprotocol.EncodeBody(homeprotocol.ClaimResponse{Profile: profile})

	case homeprotocol.OpRegister:
		var req homeprotocol.RegisterRequest
		if err := homeprotocol.DecodeBody(env.Body, &req); err != nil {
			return nil, err
		}
		profile, err := s.Register(req.OwnProfile, req.HalfProof)
		if err != nil {
			return nil, err
		}
		return homeprotocol.EncodeBody(homeprotocol.RegisterResponse{Profile: profile})

	case homeprotocol.OpLogin:
		var req homeprotocol.LoginRequest
		if err := homeprotocol.DecodeBody(env.Body, &req); err != nil {
			return nil, err
		}
		s2, err := s.Login(peerId, peerPubkey, req.Proof)
		if err != nil {
			return nil, err
		}
		*sess = s2
		return homeprotocol.EncodeBody(homeprotocol.LoginResponse{SessionToken: peerId.String()})

	case homeprotocol.OpPairRequest:
		var req homeprotocol.PairRequestRequest
		if err := homeprotocol.DecodeBody(env.Body, &req); err != nil {
			return nil, err
		}
		if err := s.PairRequest(req.HalfProof); err != nil {
			return nil, err
		}
		return homeprotocol.EncodeBody(homeprotocol.PairRequestResponse{})

	case homeprotocol.OpPairResponse:
		var req homeprotocol.PairResponseRequest
		if err := homeprotocol.DecodeBody(env.Body, &req); err != nil {
			return nil, err
		}
		if err := s.PairResponse(peerId, req.Proof); err != nil {
			return nil, err
		}
		return homeprotocol.EncodeBody(homeprotocol.PairResponseResponse{})

	case homeprotocol.OpCall:
		var req homeprotocol.CallRequest
		if err := homeprotocol.DecodeBody(env.Body, &req); err != nil {
			return nil, err
		}
		calleeId, ok := req.Relation.OtherParty(peerId)
		if !ok {
			return nil, mercuryerr.ErrInvalidRelationProof
		}
		answer, err := s.Call(ctx, peerId, peerPubkey, calleeId, req)
		if err != nil {
			return nil, err
		}
		return homeprotocol.EncodeBody(homeprotocol.CallResponse{Accepted: answer.Accepted, Reason: answer.RejectMsg})

	case homeprotocol.OpUpdate:
		if *sess == nil {
			return nil, mercuryerr.ErrLoginFailed
		}
		var req homeprotocol.UpdateRequest
		if err := homeprotocol.DecodeBody(env.Body, &req); err != nil {
			return nil, err
		}
		if err := (*sess).Update(req.Profile); err != nil {
			return nil, err
		}
		return homeprotocol.EncodeBody(struct{}{})

	case homeprotocol.OpUnregister:
		if *sess == nil {
			return nil, mercuryerr.ErrLoginFailed
		}
		var req homeprotocol.UnregisterRequest
		if err := homeprotocol.DecodeBody(env.Body, &req); err != nil {
			return nil, err
		}
		if err := (*sess).Unregister(req.NewHome); err != nil {
			return nil, err
		}
		return homeprotocol.EncodeBody(struct{}{})

	case homeprotocol.OpPing:
		if *sess == nil {
			return nil, mercuryerr.ErrLoginFailed
		}
		var req homeprotocol.PingRequest
		if err := homeprotocol.DecodeBody(env.Body, &req); err != nil {
			return nil, err
		}
		text, err := (*sess).Ping(req.Text)
		if err != nil {
			return nil, err
		}
		return homeprotocol.EncodeBody(homeprotocol.PingResponse{Text: text})

	default:
		return nil, fmt.Errorf("homeserver: %w: unsupported op %q over this listener", mercuryerr.ErrMalformed, env.Op)
	}
}
