// Package homeserver implements the Mercury home server: registration,
// login/session management, pairing, and call routing for profiles hosted
// on this home.
package homeserver

import (
	"fmt"
	"sync"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/homeprotocol"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/mercury-network/mercury-go/internal/profilerepo"
	"github.com/sirupsen/logrus"
)

type profileAppKey struct {
	profile claimmodel.ProfileId
	appId   string
}

// Server holds every profile hosted here plus live session/checkin state,
// guarded by one RWMutex — mirroring the teacher's single peerLock guarding
// its own connection table (node/p2p/peer.go).
type Server struct {
	mu sync.RWMutex

	selfId     claimmodel.ProfileId
	signer     claimmodel.PrivateKey
	local      profilerepo.Repository
	remote     profilerepo.Writer // nil if this home has no distributed peer
	schemas    *claimmodel.SchemaRegistry
	log        *logrus.Entry

	hosted             map[string]profilerepo.PrivateProfileData // key: ProfileId.String()
	sessions           map[string]map[*session]struct{}
	appCheckins        map[profileAppKey]chan homeprotocol.IncomingCall
	pendingPairByPeer  map[string][]claimmodel.RelationHalfProof
}

// New constructs a Server for the home identified by (selfId, signer),
// persisting accepted registrations to local (and, if non-nil, remote).
func New(selfId claimmodel.ProfileId, signer claimmodel.PrivateKey, local profilerepo.Repository, remote profilerepo.Writer, schemas *claimmodel.SchemaRegistry, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		selfId:            selfId,
		signer:            signer,
		local:             local,
		remote:            remote,
		schemas:           schemas,
		log:               log,
		hosted:            make(map[string]profilerepo.PrivateProfileData),
		sessions:          make(map[string]map[*session]struct{}),
		appCheckins:       make(map[profileAppKey]chan homeprotocol.IncomingCall),
		pendingPairByPeer: make(map[string][]claimmodel.RelationHalfProof),
	}
}

// Claim returns the current PrivateProfileData for a profile hosted here.
// It performs no authorization itself: callers must already have checked
// the requester (the RPC dispatcher only lets a peer claim its own profile).
func (s *Server) Claim(profileId claimmodel.ProfileId) (profilerepo.PrivateProfileData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.hosted[profileId.String()]
	if !ok {
		return profilerepo.PrivateProfileData{}, mercuryerr.ErrPeerNotHostedHere
	}
	return p, nil
}

// Register implements the §4.6 registration algorithm.
func (s *Server) Register(ownProfile profilerepo.PrivateProfileData, halfProof claimmodel.RelationHalfProof) (profilerepo.PrivateProfileData, error) {
	if halfProof.RelationType != claimmodel.RelationHostedOnHome {
		return profilerepo.PrivateProfileData{}, mercuryerr.ErrRelationTypeMismatch
	}
	if !halfProof.PeerId.Equal(s.selfId) {
		return profilerepo.PrivateProfileData{}, mercuryerr.ErrHomeIdMismatch
	}
	if err := claimmodel.ValidateHalfProof(halfProof, ownProfile.Public.PublicKey); err != nil {
		return profilerepo.PrivateProfileData{}, err
	}
	ownId, err := ownProfile.Public.Id()
	if err != nil {
		return profilerepo.PrivateProfileData{}, err
	}
	if !halfProof.SignerId.Equal(ownId) {
		return profilerepo.PrivateProfileData{}, mercuryerr.ErrProfileIdMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, already := s.hosted[ownId.String()]; already {
		return profilerepo.PrivateProfileData{}, mercuryerr.ErrAlreadyRegistered
	}

	proof, err := claimmodel.CompleteHalfProof(halfProof, s.signer)
	if err != nil {
		return profilerepo.PrivateProfileData{}, err
	}

	updated := ownProfile
	persona, _ := profilerepo.DecodePersonaFacet(ownProfile.Public.Attributes[profilerepo.FacetPersona])
	persona.Homes = append(persona.Homes, proof)
	facetBytes, err := persona.Encode()
	if err != nil {
		return profilerepo.PrivateProfileData{}, fmt.Errorf("homeserver: encode persona facet: %w", err)
	}
	if updated.Public.Attributes == nil {
		updated.Public.Attributes = make(map[string][]byte)
	} else {
		cp := make(map[string][]byte, len(updated.Public.Attributes))
		for k, v := range updated.Public.Attributes {
			cp[k] = v
		}
		updated.Public.Attributes = cp
	}
	updated.Public.Attributes[profilerepo.FacetPersona] = facetBytes
	updated.Public.Version++

	if err := s.local.Set(updated); err != nil {
		return profilerepo.PrivateProfileData{}, fmt.Errorf("homeserver: persist local: %w", err)
	}
	if s.remote != nil {
		if err := s.remote.Set(updated); err != nil {
			s.log.WithError(err).Warn("homeserver: register: remote persist failed")
		}
	}
	s.hosted[ownId.String()] = updated
	return updated, nil
}

// Login implements §4.6: validates the caller's hosted_on_home proof
// against this home, then opens a session, closing any prior sessions for
// the same profile.
func (s *Server) Login(callerId claimmodel.ProfileId, callerPubkey claimmodel.PublicKey, proof claimmodel.RelationProof) (homeprotocol.Session, error) {
	if err := claimmodel.ValidateRelationProof(proof, callerId, callerPubkey, s.selfId, s.mustSelfPubkey()); err != nil {
		return nil, fmt.Errorf("homeserver: %w: %v", mercuryerr.ErrLoginFailed, err)
	}
	if proof.RelationType != claimmodel.RelationHostedOnHome {
		return nil, mercuryerr.ErrInvalidRelationProof
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, hosted := s.hosted[callerId.String()]; !hosted {
		return nil, mercuryerr.ErrPeerNotHostedHere
	}

	key := callerId.String()
	for old := range s.sessions[key] {
		old.terminate()
	}
	delete(s.sessions, key)

	sess := newSession(s, callerId)
	if s.sessions[key] == nil {
		s.sessions[key] = make(map[*session]struct{})
	}
	s.sessions[key][sess] = struct{}{}
	return sess, nil
}

func (s *Server) mustSelfPubkey() claimmodel.PublicKey {
	pk, err := s.signer.PublicKey()
	if err != nil {
		panic(fmt.Sprintf("homeserver: signer has no public key: %v", err))
	}
	return pk
}

// PairRequest enqueues a PairingRequestEvent on every live session of the
// half-proof's target peer, provided that peer is hosted here.
func (s *Server) PairRequest(halfProof claimmodel.RelationHalfProof) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	peerKey := halfProof.PeerId.String()
	if _, hosted := s.hosted[peerKey]; !hosted {
		return mercuryerr.ErrPeerNotHostedHere
	}
	for sess := range s.sessions[peerKey] {
		sess.deliver(homeprotocol.PairingRequestEvent(halfProof))
	}
	return nil
}

// PairResponse forwards a completed relation proof to its other party's
// sessions, provided that party is hosted here.
func (s *Server) PairResponse(requesterId claimmodel.ProfileId, proof claimmodel.RelationProof) error {
	other, ok := proof.OtherParty(requesterId)
	if !ok {
		return mercuryerr.ErrInvalidRelationProof
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := other.String()
	if _, hosted := s.hosted[key]; !hosted {
		return mercuryerr.ErrPeerNotHostedHere
	}
	for sess := range s.sessions[key] {
		sess.deliver(homeprotocol.PairingResponseEvent(proof))
	}
	return nil
}
