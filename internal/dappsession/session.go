// Package dappsession implements DAppSession: the per-application façade an
// app built against Mercury actually programs to, pinning one selected
// profile and merging its home session's event and call-checkin channels
// into a single app-scoped stream.
package dappsession

import (
	"fmt"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/connectclient"
	"github.com/mercury-network/mercury-go/internal/homeprotocol"
	"github.com/mercury-network/mercury-go/internal/profilerepo"
)

// DAppEventKind tags a DAppEvent's concrete variant.
type DAppEventKind string

const (
	EventPairingResponse DAppEventKind = "pairing_response"
	EventCall            DAppEventKind = "call"
)

// DAppEvent is the union Checkin() delivers: exactly one of Relation/Call is
// populated, selected by Kind.
type DAppEvent struct {
	Kind     DAppEventKind
	Relation claimmodel.RelationProof
	Call     homeprotocol.IncomingCall
}

// Home is the subset of a logged-in ConnectClient home proxy DAppSession
// needs: the pairing RPCs. The live Session for events/checkins is passed
// to New separately.
type Home interface {
	PairRequest(half claimmodel.RelationHalfProof) error
	PairResponse(proof claimmodel.RelationProof) error
}

// DAppSession is pinned to one (dappId, selectedProfile) pair for its
// lifetime (§4.8): it never rebinds to a different profile.
type DAppSession struct {
	dappId          string
	selectedProfile claimmodel.ProfileId
	signer          connectclient.Signer
	repo            profilerepo.Reader
	home            Home
	session         homeprotocol.Session
}

// New builds a DAppSession for dappId, already logged in as selectedProfile
// via session (the value homeserver.Server.Login or connectclient's
// Home.Login returns), with home providing the pairing RPCs and repo resolving the
// profile's accumulated relations.
func New(dappId string, selectedProfile claimmodel.ProfileId, signer connectclient.Signer, repo profilerepo.Reader, home Home, session homeprotocol.Session) *DAppSession {
	return &DAppSession{
		dappId:          dappId,
		selectedProfile: selectedProfile,
		signer:          signer,
		repo:            repo,
		home:            home,
		session:         session,
	}
}

// SelectedProfile returns the profile this session is pinned to.
func (d *DAppSession) SelectedProfile() claimmodel.ProfileId { return d.selectedProfile }

// Relations returns every relation proof SelectedProfile has accumulated:
// its hosted_on_home persona facet entries plus whatever pairing results the
// app previously persisted to the relations facet via Session.Update.
func (d *DAppSession) Relations() ([]claimmodel.RelationProof, error) {
	pub, err := d.repo.GetPublic(d.selectedProfile)
	if err != nil {
		return nil, fmt.Errorf("dappsession: %w", err)
	}
	persona, err := profilerepo.DecodePersonaFacet(pub.Attributes[profilerepo.FacetPersona])
	if err != nil {
		return nil, fmt.Errorf("dappsession: decode persona facet: %w", err)
	}
	relations, err := profilerepo.DecodeRelationsFacet(pub.Attributes[profilerepo.FacetRelations])
	if err != nil {
		return nil, fmt.Errorf("dappsession: decode relations facet: %w", err)
	}
	out := make([]claimmodel.RelationProof, 0, len(persona.Homes)+len(relations.Relations))
	out = append(out, persona.Homes...)
	out = append(out, relations.Relations...)
	return out, nil
}

// Relation returns the relation proof between SelectedProfile and peer, if
// any exists.
func (d *DAppSession) Relation(peer claimmodel.ProfileId) (claimmodel.RelationProof, error) {
	all, err := d.Relations()
	if err != nil {
		return claimmodel.RelationProof{}, err
	}
	for _, r := range all {
		if r.Involves(peer) {
			return r, nil
		}
	}
	return claimmodel.RelationProof{}, fmt.Errorf("dappsession: no relation with %s", peer.String())
}

// InitiateRelation signs a half-proof proposing an enable_call_between
// relation with peer and submits it to the profile's home as a pairing
// request (§4.5 PairRequest). The peer answers out of band by calling
// RespondToRelation on their own DAppSession.
func (d *DAppSession) InitiateRelation(peer claimmodel.ProfileId) error {
	signer, err := d.signer.PrivateKeyFor(d.selectedProfile)
	if err != nil {
		return fmt.Errorf("dappsession: %w", err)
	}
	half, err := claimmodel.SignHalfProof(claimmodel.RelationEnableCallBetween, signer, peer)
	if err != nil {
		return fmt.Errorf("dappsession: %w", err)
	}
	return d.home.PairRequest(half)
}

// RespondToRelation completes a pairing half-proof received as a
// PairingRequestEvent and submits the resulting proof back to the home,
// which notifies the original requester (§4.5 PairResponse).
func (d *DAppSession) RespondToRelation(half claimmodel.RelationHalfProof) (claimmodel.RelationProof, error) {
	responder, err := d.signer.PrivateKeyFor(d.selectedProfile)
	if err != nil {
		return claimmodel.RelationProof{}, fmt.Errorf("dappsession: %w", err)
	}
	proof, err := claimmodel.CompleteHalfProof(half, responder)
	if err != nil {
		return claimmodel.RelationProof{}, fmt.Errorf("dappsession: %w", err)
	}
	if err := d.home.PairResponse(proof); err != nil {
		return claimmodel.RelationProof{}, err
	}
	return proof, nil
}

// Checkin opens this app's incoming-call channel and merges it with the
// session's pairing-response events into one DAppEvent stream, filtered to
// this dappId (§4.8). The returned channel closes when session closes.
func (d *DAppSession) Checkin() (<-chan DAppEvent, error) {
	calls, err := d.session.CheckinApp(d.dappId)
	if err != nil {
		return nil, fmt.Errorf("dappsession: %w", err)
	}
	events := d.session.Events()
	out := make(chan DAppEvent, 1)

	go func() {
		defer close(out)
		for {
			select {
			case call, ok := <-calls:
				if !ok {
					calls = nil
					if events == nil {
						return
					}
					continue
				}
				out <- DAppEvent{Kind: EventCall, Call: call}
			case ev, ok := <-events:
				if !ok {
					events = nil
					if calls == nil {
						return
					}
					continue
				}
				if ev.Kind != homeprotocol.EventPairingResponse {
					continue
				}
				if !ev.Proof.Involves(d.selectedProfile) {
					continue
				}
				out <- DAppEvent{Kind: EventPairingResponse, Relation: ev.Proof}
			}
		}
	}()

	return out, nil
}

// Close releases the underlying home session.
func (d *DAppSession) Close() error {
	if d.session == nil {
		return nil
	}
	return d.session.Close()
}
