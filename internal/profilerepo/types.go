// Package profilerepo implements the Mercury profile repository: versioned
// storage of public and private profile documents, local/base bbolt-backed
// variants, and a remote variant speaking the msgpack/TCP "osg" protocol.
package profilerepo

import (
	"bytes"
	"sort"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/vmihailenco/msgpack/v5"
)

// Link is an outbound reference from one profile to another. Duplicate
// links coalesce (Links.Add is idempotent).
type Link struct {
	PeerProfile claimmodel.ProfileId
}

// Links is a deduplicated, order-stable set of Link values.
type Links []Link

// Add returns links with peer appended, unless already present.
func (l Links) Add(peer claimmodel.ProfileId) Links {
	for _, existing := range l {
		if existing.PeerProfile.Equal(peer) {
			return l
		}
	}
	return append(append(Links(nil), l...), Link{PeerProfile: peer})
}

// Contains reports whether peer is already linked.
func (l Links) Contains(peer claimmodel.ProfileId) bool {
	for _, existing := range l {
		if existing.PeerProfile.Equal(peer) {
			return true
		}
	}
	return false
}

const (
	// FacetHome marks attributes["home"] as a HomeFacet blob.
	FacetHome = "home"
	// FacetPersona marks attributes["persona"] as a PersonaFacet blob.
	FacetPersona = "persona"
	// FacetRelations marks attributes["relations"] as a RelationsFacet blob:
	// every non-hosted_on_home relation proof a profile has accumulated
	// through pairing, persisted by whatever app called Session.Update.
	FacetRelations = "relations"
)

// HomeFacet is the well-known attribute a home's own profile carries,
// advertising the addresses clients can dial to reach it.
type HomeFacet struct {
	Addresses []string `msgpack:"addresses"` // host:port, dialed over TCP by ConnectToHome
}

// PersonaFacet is the well-known attribute a persona's own profile carries:
// the hosted_on_home relation proofs for every home it is registered on.
type PersonaFacet struct {
	Homes []claimmodel.RelationProof `msgpack:"homes"`
}

// Encode marshals a facet to the opaque attribute bytes PublicProfileData
// stores it as.
func (f HomeFacet) Encode() ([]byte, error) { return msgpack.Marshal(f) }

// Encode marshals a facet to the opaque attribute bytes PublicProfileData
// stores it as.
func (f PersonaFacet) Encode() ([]byte, error) { return msgpack.Marshal(f) }

// RelationsFacet is the well-known attribute holding every relation proof a
// profile has collected outside of hosted_on_home (pairing results, call
// grants), keyed by nothing but scanned linearly by Relation/Relations.
type RelationsFacet struct {
	Relations []claimmodel.RelationProof `msgpack:"relations"`
}

// Encode marshals a facet to the opaque attribute bytes PublicProfileData
// stores it as.
func (f RelationsFacet) Encode() ([]byte, error) { return msgpack.Marshal(f) }

// DecodeHomeFacet reads back a HomeFacet from attribute bytes.
func DecodeHomeFacet(b []byte) (HomeFacet, error) {
	var f HomeFacet
	err := msgpack.Unmarshal(b, &f)
	return f, err
}

// DecodePersonaFacet reads back a PersonaFacet from attribute bytes.
func DecodePersonaFacet(b []byte) (PersonaFacet, error) {
	var f PersonaFacet
	err := msgpack.Unmarshal(b, &f)
	return f, err
}

// DecodeRelationsFacet reads back a RelationsFacet from attribute bytes. An
// empty/absent blob decodes to the zero value, not an error.
func DecodeRelationsFacet(b []byte) (RelationsFacet, error) {
	if len(b) == 0 {
		return RelationsFacet{}, nil
	}
	var f RelationsFacet
	err := msgpack.Unmarshal(b, &f)
	return f, err
}

// PublicProfileData is the versioned, publicly-readable half of a profile
// document. Id is derived, not stored: PublicKey.KeyID().
type PublicProfileData struct {
	PublicKey  claimmodel.PublicKey
	Version    uint64
	Links      Links
	Attributes map[string][]byte
}

// Id returns the profile id this document describes.
func (p PublicProfileData) Id() (claimmodel.ProfileId, error) {
	return p.PublicKey.KeyID()
}

// IsTombstone reports whether p is the empty-links/empty-attributes marker
// a Remote Client.Clear() leaves behind (Store.Clear deletes instead).
func (p PublicProfileData) IsTombstone() bool {
	return len(p.Links) == 0 && len(p.Attributes) == 0
}

// Equal compares two documents for Set()'s equal-version idempotency check:
// same public key, version, link set, and attributes.
func (p PublicProfileData) Equal(other PublicProfileData) bool {
	if !p.PublicKey.Equal(other.PublicKey) || p.Version != other.Version {
		return false
	}
	if len(p.Links) != len(other.Links) {
		return false
	}
	a := append(Links(nil), p.Links...)
	b := append(Links(nil), other.Links...)
	sort.Slice(a, func(i, j int) bool { return a[i].PeerProfile.Less(a[j].PeerProfile) })
	sort.Slice(b, func(i, j int) bool { return b[i].PeerProfile.Less(b[j].PeerProfile) })
	for i := range a {
		if !a[i].PeerProfile.Equal(b[i].PeerProfile) {
			return false
		}
	}
	if len(p.Attributes) != len(other.Attributes) {
		return false
	}
	for k, v := range p.Attributes {
		ov, ok := other.Attributes[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}

// PrivateProfileData adds an opaque, owner-only blob alongside the public
// document. The blob's interpretation (e.g. contact lists, local settings)
// is left to the caller.
type PrivateProfileData struct {
	Public      PublicProfileData
	PrivateBlob []byte
}

// wireProfile is the msgpack-serializable shape PrivateProfileData is
// persisted as, since claimmodel.PublicKey/ProfileId only expose
// MarshalText (string round-trip, not []byte).
type wireProfile struct {
	PublicKeyText string            `msgpack:"public_key"`
	Version       uint64            `msgpack:"version"`
	Links         []string          `msgpack:"links"`
	Attributes    map[string][]byte `msgpack:"attributes"`
	PrivateBlob   []byte            `msgpack:"private_blob"`
}

func toWire(p PrivateProfileData) (wireProfile, error) {
	links := make([]string, len(p.Public.Links))
	for i, l := range p.Public.Links {
		links[i] = l.PeerProfile.String()
	}
	return wireProfile{
		PublicKeyText: p.Public.PublicKey.String(),
		Version:       p.Public.Version,
		Links:         links,
		Attributes:    p.Public.Attributes,
		PrivateBlob:   p.PrivateBlob,
	}, nil
}

func fromWire(w wireProfile) (PrivateProfileData, error) {
	pk, err := claimmodel.ParsePublicKey(w.PublicKeyText)
	if err != nil {
		return PrivateProfileData{}, err
	}
	links := make(Links, len(w.Links))
	for i, s := range w.Links {
		id, err := claimmodel.ParseProfileId(s)
		if err != nil {
			return PrivateProfileData{}, err
		}
		links[i] = Link{PeerProfile: id}
	}
	return PrivateProfileData{
		Public: PublicProfileData{
			PublicKey:  pk,
			Version:    w.Version,
			Links:      links,
			Attributes: w.Attributes,
		},
		PrivateBlob: w.PrivateBlob,
	}, nil
}

// marshalProfile encodes p for bbolt/wire storage.
func marshalProfile(p PrivateProfileData) ([]byte, error) {
	w, err := toWire(p)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(w)
}

// unmarshalProfile decodes bytes produced by marshalProfile.
func unmarshalProfile(data []byte) (PrivateProfileData, error) {
	var w wireProfile
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return PrivateProfileData{}, err
	}
	return fromWire(w)
}
