// Package connectclient implements Mercury's ConnectClient: dialing and
// caching Home proxies, and the MyProfile façade that keeps a profile
// logged in across reconnects.
package connectclient

import (
	"context"
	"fmt"
	"net"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/handshake"
	"github.com/mercury-network/mercury-go/internal/homeprotocol"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/mercury-network/mercury-go/internal/profilerepo"
	"github.com/sirupsen/logrus"
)

// Home is the client-side RPC proxy to a home's HomeProtocol endpoint,
// built over a handshake PeerContext (§4.5 wire framing).
type Home struct {
	pc     *handshake.PeerContext
	nextId uint64
	log    *logrus.Entry
}

func newHome(pc *handshake.PeerContext, log *logrus.Entry) *Home {
	return &Home{pc: pc, log: log}
}

func (h *Home) call(op homeprotocol.Op, body interface{}, reply interface{}) error {
	h.nextId++
	encoded, err := homeprotocol.EncodeBody(body)
	if err != nil {
		return fmt.Errorf("connectclient: encode %s: %w", op, err)
	}
	env := homeprotocol.Envelope{Op: op, Rid: h.nextId, Body: encoded}
	frame, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	if err := h.pc.WriteFrame(frame); err != nil {
		return fmt.Errorf("connectclient: %w: %v", mercuryerr.ErrConnectionFailed, err)
	}
	respFrame, err := h.pc.ReadFrame()
	if err != nil {
		return fmt.Errorf("connectclient: %w: %v", mercuryerr.ErrConnectionFailed, err)
	}
	respEnv, err := decodeEnvelope(respFrame)
	if err != nil {
		return err
	}
	if respEnv.Op == "error" {
		var errBody homeprotocol.ErrorBody
		_ = homeprotocol.DecodeBody(respEnv.Body, &errBody)
		return fmt.Errorf("connectclient: remote error (%s): %s", errBody.Kind, errBody.Message)
	}
	if reply == nil {
		return nil
	}
	return homeprotocol.DecodeBody(respEnv.Body, reply)
}

// Register implements the client side of §4.5 Register.
func (h *Home) Register(ownProfile profilerepo.PrivateProfileData, halfProof claimmodel.RelationHalfProof) (profilerepo.PrivateProfileData, error) {
	var resp homeprotocol.RegisterResponse
	err := h.call(homeprotocol.OpRegister, homeprotocol.RegisterRequest{OwnProfile: ownProfile, HalfProof: halfProof}, &resp)
	return resp.Profile, err
}

// Login implements the client side of §4.5 Login, returning a Session
// bound to this connection (§4.5 Session operations: Update, Unregister,
// Ping work over the wire; Events/CheckinApp do not — see wireSession).
func (h *Home) Login(proof claimmodel.RelationProof) (homeprotocol.Session, error) {
	var resp homeprotocol.LoginResponse
	if err := h.call(homeprotocol.OpLogin, homeprotocol.LoginRequest{Proof: proof}, &resp); err != nil {
		return nil, err
	}
	return newWireSession(h, resp.SessionToken), nil
}

// Update implements the client side of Session.Update over the wire.
func (h *Home) Update(ownProfile profilerepo.PrivateProfileData) error {
	return h.call(homeprotocol.OpUpdate, homeprotocol.UpdateRequest{Profile: ownProfile}, &struct{}{})
}

// Unregister implements the client side of Session.Unregister over the wire.
func (h *Home) Unregister(newHome *claimmodel.ProfileId) error {
	return h.call(homeprotocol.OpUnregister, homeprotocol.UnregisterRequest{NewHome: newHome}, &struct{}{})
}

// Ping implements the client side of Session.Ping over the wire.
func (h *Home) Ping(text string) (string, error) {
	var resp homeprotocol.PingResponse
	err := h.call(homeprotocol.OpPing, homeprotocol.PingRequest{Text: text}, &resp)
	return resp.Text, err
}

// Call implements the client side of §4.6 Call: propose a call to
// relation's other party over appId, carrying an opaque init payload.
// Only the accept/reject outcome crosses the wire (see CallResponse).
func (h *Home) Call(appId string, relation claimmodel.RelationProof, init []byte) (homeprotocol.CallResponse, error) {
	var resp homeprotocol.CallResponse
	err := h.call(homeprotocol.OpCall, homeprotocol.CallRequest{AppId: appId, Relation: relation, Init: init}, &resp)
	return resp, err
}

// Claim implements the client side of §4.5 Claim.
func (h *Home) Claim(profileId claimmodel.ProfileId) (profilerepo.PrivateProfileData, error) {
	var resp homeprotocol.ClaimResponse
	err := h.call(homeprotocol.OpClaim, homeprotocol.ClaimRequest{ProfileId: profileId}, &resp)
	return resp.Profile, err
}

// PairRequest implements the client side of §4.5 PairRequest: submit a
// signed half-proof proposing a relation with half.PeerId.
func (h *Home) PairRequest(half claimmodel.RelationHalfProof) error {
	var resp homeprotocol.PairRequestResponse
	return h.call(homeprotocol.OpPairRequest, homeprotocol.PairRequestRequest{HalfProof: half}, &resp)
}

// PairResponse implements the client side of §4.5 PairResponse: submit the
// completed two-party proof back to the home so it can notify the requester.
func (h *Home) PairResponse(proof claimmodel.RelationProof) error {
	var resp homeprotocol.PairResponseResponse
	return h.call(homeprotocol.OpPairResponse, homeprotocol.PairResponseRequest{Proof: proof}, &resp)
}

// Close tears down the underlying handshake channel.
func (h *Home) Close() error { return h.pc.Close() }

// Signer is the minimal identity contract ConnectToHome needs from a
// caller's KeyVault: sign as a given profile.
type Signer interface {
	ProfileId() claimmodel.ProfileId
	PrivateKeyFor(id claimmodel.ProfileId) (claimmodel.PrivateKey, error)
}

// ConnectToHome dials homeProfileId, preferring cache, then addrHints,
// then a HomeFacet lookup via repo, racing all candidate addresses and
// keeping the first successful connection (§4.7).
func ConnectToHome(ctx context.Context, cache *HomeConnectionCache, repo profilerepo.Reader, homeProfileId claimmodel.ProfileId, addrHints []string, signer Signer, allowDegraded bool, log *logrus.Entry) (*Home, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	key := CacheKey{Caller: signer.ProfileId(), Home: homeProfileId}
	if cache != nil {
		if h, ok := cache.Get(key); ok {
			return h, nil
		}
	}

	addrs := addrHints
	if len(addrs) == 0 {
		pub, err := repo.GetPublic(homeProfileId)
		if err != nil {
			return nil, fmt.Errorf("connectclient: resolve home address: %w", err)
		}
		facet, err := profilerepo.DecodeHomeFacet(pub.Attributes[profilerepo.FacetHome])
		if err != nil || len(facet.Addresses) == 0 {
			return nil, fmt.Errorf("connectclient: %w: home advertises no addresses", mercuryerr.ErrConnectionFailed)
		}
		addrs = facet.Addresses
	}

	conn, err := dialFirstSuccess(ctx, addrs)
	if err != nil {
		return nil, err
	}

	mySigner, err := signer.PrivateKeyFor(signer.ProfileId())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	pc, err := handshake.Perform(conn, mySigner, signer.ProfileId(), allowDegraded, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !pc.PeerId.Equal(homeProfileId) {
		_ = pc.Close()
		return nil, fmt.Errorf("connectclient: %w: dialed peer is not the expected home", mercuryerr.ErrHandshakeFailed)
	}

	home := newHome(pc, log)
	if cache != nil {
		cache.Put(key, home)
	}
	return home, nil
}

// dialFirstSuccess dials every address concurrently and returns the first
// successful connection, canceling the rest (§4.7 fan-out-first-success).
func dialFirstSuccess(ctx context.Context, addrs []string) (net.Conn, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("connectclient: %w: no candidate addresses", mercuryerr.ErrConnectionFailed)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, len(addrs))
	var dialer net.Dialer
	for _, addr := range addrs {
		addr := addr
		go func() {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			results <- result{conn, err}
		}()
	}

	var lastErr error
	for range addrs {
		r := <-results
		if r.err == nil {
			cancel()
			go drainRemaining(results, len(addrs)-1)
			return r.conn, nil
		}
		lastErr = r.err
	}
	return nil, fmt.Errorf("connectclient: %w: %v", mercuryerr.ErrConnectionFailed, lastErr)
}

func drainRemaining(results <-chan result, n int) {
	for i := 0; i < n; i++ {
		r := <-results
		if r.err == nil && r.conn != nil {
			_ = r.conn.Close()
		}
	}
}

type result struct {
	conn net.Conn
	err  error
}
