package dappsession

import (
	"crypto/ed25519"
	"fmt"
	"testing"
	"time"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/homeprotocol"
	"github.com/mercury-network/mercury-go/internal/profilerepo"
)

func genProfile(t *testing.T) (claimmodel.PrivateKey, claimmodel.PublicKey, claimmodel.ProfileId) {
	t.Helper()
	_, seed, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	sk := claimmodel.NewPrivateKey(claimmodel.SuiteEd25519, seed)
	pk, err := sk.PublicKey()
	if err != nil {
		t.Fatal(err)
	}
	id, err := pk.KeyID()
	if err != nil {
		t.Fatal(err)
	}
	return sk, pk, id
}

// fakeSigner implements connectclient.Signer over a single in-memory key.
type fakeSigner struct {
	id claimmodel.ProfileId
	sk claimmodel.PrivateKey
}

func (f fakeSigner) ProfileId() claimmodel.ProfileId { return f.id }
func (f fakeSigner) PrivateKeyFor(id claimmodel.ProfileId) (claimmodel.PrivateKey, error) {
	if !id.Equal(f.id) {
		return claimmodel.PrivateKey{}, fmt.Errorf("no such key")
	}
	return f.sk, nil
}

// fakeReader serves a single fixed PublicProfileData.
type fakeReader struct {
	id  claimmodel.ProfileId
	pub profilerepo.PublicProfileData
}

func (f fakeReader) GetPublic(id claimmodel.ProfileId) (profilerepo.PublicProfileData, error) {
	if !id.Equal(f.id) {
		return profilerepo.PublicProfileData{}, fmt.Errorf("not found")
	}
	return f.pub, nil
}
func (f fakeReader) Followers(id claimmodel.ProfileId) ([]claimmodel.ProfileId, error) { return nil, nil }

// fakeHome records PairRequest/PairResponse calls.
type fakeHome struct {
	requests  []claimmodel.RelationHalfProof
	responses []claimmodel.RelationProof
}

func (f *fakeHome) PairRequest(half claimmodel.RelationHalfProof) error {
	f.requests = append(f.requests, half)
	return nil
}
func (f *fakeHome) PairResponse(proof claimmodel.RelationProof) error {
	f.responses = append(f.responses, proof)
	return nil
}

// fakeSession implements homeprotocol.Session with controllable channels.
type fakeSession struct {
	events chan homeprotocol.ProfileEvent
	calls  chan homeprotocol.IncomingCall
	closed chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan homeprotocol.ProfileEvent, 4),
		calls:  make(chan homeprotocol.IncomingCall, 4),
		closed: make(chan struct{}),
	}
}
func (f *fakeSession) Update(profilerepo.PrivateProfileData) error { return nil }
func (f *fakeSession) Unregister(*claimmodel.ProfileId) error      { return nil }
func (f *fakeSession) Events() <-chan homeprotocol.ProfileEvent    { return f.events }
func (f *fakeSession) CheckinApp(appId string) (<-chan homeprotocol.IncomingCall, error) {
	return f.calls, nil
}
func (f *fakeSession) Ping(text string) (string, error) { return text, nil }
func (f *fakeSession) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
		close(f.events)
		close(f.calls)
	}
	return nil
}

var _ homeprotocol.Session = (*fakeSession)(nil)

func TestRelationsMergesPersonaAndRelationsFacets(t *testing.T) {
	selfSK, _, selfId := genProfile(t)
	homeSK, _, homeId := genProfile(t)
	peerSK, _, peerId := genProfile(t)

	homeHalf, err := claimmodel.SignHalfProof(claimmodel.RelationHostedOnHome, selfSK, homeId)
	if err != nil {
		t.Fatal(err)
	}
	homeProof, err := claimmodel.CompleteHalfProof(homeHalf, homeSK)
	if err != nil {
		t.Fatal(err)
	}

	peerHalf, err := claimmodel.SignHalfProof(claimmodel.RelationEnableCallBetween, selfSK, peerId)
	if err != nil {
		t.Fatal(err)
	}
	peerProof, err := claimmodel.CompleteHalfProof(peerHalf, peerSK)
	if err != nil {
		t.Fatal(err)
	}

	persona := profilerepo.PersonaFacet{Homes: []claimmodel.RelationProof{homeProof}}
	relations := profilerepo.RelationsFacet{Relations: []claimmodel.RelationProof{peerProof}}

	pub := profilerepo.PublicProfileData{Attributes: map[string][]byte{}}
	personaBytes, err := persona.Encode()
	if err != nil {
		t.Fatal(err)
	}
	relationsBytes, err := relations.Encode()
	if err != nil {
		t.Fatal(err)
	}
	pub.Attributes[profilerepo.FacetPersona] = personaBytes
	pub.Attributes[profilerepo.FacetRelations] = relationsBytes

	repo := fakeReader{id: selfId, pub: pub}
	d := New("testapp", selfId, fakeSigner{}, repo, &fakeHome{}, newFakeSession())

	got, err := d.Relations()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 relations, got %d", len(got))
	}

	found, err := d.Relation(peerId)
	if err != nil {
		t.Fatalf("Relation(peer): %v", err)
	}
	if found.RelationType != claimmodel.RelationEnableCallBetween {
		t.Fatalf("relation type = %q, want enable_call_between", found.RelationType)
	}

	if _, err := d.Relation(homeId); err != nil {
		t.Fatalf("Relation(home): %v", err)
	}
}

func TestInitiateRelationSubmitsHalfProofToHome(t *testing.T) {
	sk, _, selfId := genProfile(t)
	_, _, peerId := genProfile(t)

	repo := fakeReader{id: selfId, pub: profilerepo.PublicProfileData{Attributes: map[string][]byte{}}}
	home := &fakeHome{}
	sess := newFakeSession()
	d := New("testapp", selfId, fakeSigner{id: selfId, sk: sk}, repo, home, sess)

	if err := d.InitiateRelation(peerId); err != nil {
		t.Fatalf("InitiateRelation: %v", err)
	}
	if len(home.requests) != 1 {
		t.Fatalf("expected 1 pair request, got %d", len(home.requests))
	}
	half := home.requests[0]
	if half.RelationType != claimmodel.RelationEnableCallBetween {
		t.Fatalf("relation type = %q, want enable_call_between", half.RelationType)
	}
	if !half.PeerId.Equal(peerId) {
		t.Fatalf("peer id mismatch")
	}
}

func TestRespondToRelationCompletesAndSubmits(t *testing.T) {
	requesterSK, _, requesterId := genProfile(t)
	responderSK, _, responderId := genProfile(t)

	half, err := claimmodel.SignHalfProof(claimmodel.RelationEnableCallBetween, requesterSK, responderId)
	if err != nil {
		t.Fatal(err)
	}

	repo := fakeReader{id: responderId, pub: profilerepo.PublicProfileData{Attributes: map[string][]byte{}}}
	home := &fakeHome{}
	sess := newFakeSession()
	d := New("testapp", responderId, fakeSigner{id: responderId, sk: responderSK}, repo, home, sess)

	proof, err := d.RespondToRelation(half)
	if err != nil {
		t.Fatalf("RespondToRelation: %v", err)
	}
	if !proof.Involves(requesterId) || !proof.Involves(responderId) {
		t.Fatalf("completed proof does not involve both parties")
	}
	if len(home.responses) != 1 {
		t.Fatalf("expected 1 pair response submitted, got %d", len(home.responses))
	}
}

func TestCheckinMergesEventsAndCalls(t *testing.T) {
	_, _, selfId := genProfile(t)
	_, _, otherId := genProfile(t)

	repo := fakeReader{id: selfId, pub: profilerepo.PublicProfileData{Attributes: map[string][]byte{}}}
	home := &fakeHome{}
	sess := newFakeSession()
	d := New("testapp", selfId, fakeSigner{}, repo, home, sess)

	out, err := d.Checkin()
	if err != nil {
		t.Fatalf("Checkin: %v", err)
	}

	proof := claimmodel.RelationProof{RelationType: claimmodel.RelationEnableCallBetween, AId: selfId, BId: otherId}
	if selfId.Less(otherId) {
		// already in a-before-b order
	} else {
		proof.AId, proof.BId = otherId, selfId
	}
	sess.events <- homeprotocol.PairingResponseEvent(proof)

	call := homeprotocol.IncomingCall{Accept: make(chan homeprotocol.AnswerResult, 1)}
	sess.calls <- call

	seenPairing, seenCall := false, false
	timeout := time.After(2 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case ev := <-out:
			switch ev.Kind {
			case EventPairingResponse:
				seenPairing = true
				if !ev.Relation.Involves(selfId) {
					t.Fatalf("delivered relation does not involve selected profile")
				}
			case EventCall:
				seenCall = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for merged events")
		}
	}
	if !seenPairing || !seenCall {
		t.Fatalf("expected both a pairing response and a call event, got pairing=%v call=%v", seenPairing, seenCall)
	}
}
