package profilerepo

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
)

func genKey(t *testing.T) claimmodel.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	pk, err := claimmodel.NewPublicKey(claimmodel.SuiteEd25519, pub)
	if err != nil {
		t.Fatal(err)
	}
	return pk
}

func openTestStore(t *testing.T, variant Variant) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.db")
	s, err := Open(path, variant)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := openTestStore(t, LocalVariant)
	pk := genKey(t)
	id, _ := pk.KeyID()

	p := PrivateProfileData{
		Public: PublicProfileData{PublicKey: pk, Version: 1, Attributes: map[string][]byte{"x": []byte("y")}},
	}
	if err := s.Set(p); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Public.Version != 1 || string(got.Public.Attributes["x"]) != "y" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	pub, err := s.GetPublic(id)
	if err != nil {
		t.Fatalf("get public: %v", err)
	}
	if pub.Version != 1 {
		t.Fatalf("public version = %d, want 1", pub.Version)
	}
}

func TestSetVersionConflict(t *testing.T) {
	s := openTestStore(t, BaseVariant)
	pk := genKey(t)
	p := PrivateProfileData{Public: PublicProfileData{PublicKey: pk, Version: 5}}
	if err := s.Set(p); err != nil {
		t.Fatal(err)
	}

	lower := p
	lower.Public.Version = 3
	if err := s.Set(lower); err != mercuryerr.ErrVersionConflict {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}

	sameDifferent := p
	sameDifferent.PrivateBlob = []byte("changed")
	if err := s.Set(sameDifferent); err != mercuryerr.ErrVersionConflict {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}

	sameIdentical := p
	if err := s.Set(sameIdentical); err != nil {
		t.Fatalf("idempotent same-version set should succeed: %v", err)
	}

	higher := p
	higher.Public.Version = 6
	if err := s.Set(higher); err != nil {
		t.Fatalf("higher version should overwrite: %v", err)
	}
}

func TestClearOnBasePhysicallyDeletes(t *testing.T) {
	s := openTestStore(t, BaseVariant)
	pk := genKey(t)
	id, _ := pk.KeyID()
	if err := s.Set(PrivateProfileData{Public: PublicProfileData{PublicKey: pk, Version: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(pk); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.GetPublic(id); err != mercuryerr.ErrProfileNotFound {
		t.Fatalf("err = %v, want ErrProfileNotFound after base clear", err)
	}
}

func TestClearUnknownProfileFails(t *testing.T) {
	s := openTestStore(t, LocalVariant)
	if err := s.Clear(genKey(t)); err != mercuryerr.ErrProfileNotFound {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
}

func TestClearOnLocalPhysicallyDeletes(t *testing.T) {
	s := openTestStore(t, LocalVariant)
	pk := genKey(t)
	id, _ := pk.KeyID()
	if err := s.Set(PrivateProfileData{Public: PublicProfileData{PublicKey: pk, Version: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(pk); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetPublic(id); err != mercuryerr.ErrProfileNotFound {
		t.Fatalf("err = %v, want ErrProfileNotFound after local clear", err)
	}
}

func TestRestoreAllowsRegressionOnLocalOnly(t *testing.T) {
	local := openTestStore(t, LocalVariant)
	pk := genKey(t)
	if err := local.Set(PrivateProfileData{Public: PublicProfileData{PublicKey: pk, Version: 5}}); err != nil {
		t.Fatal(err)
	}
	if err := local.Restore(PrivateProfileData{Public: PublicProfileData{PublicKey: pk, Version: 2}}); err != nil {
		t.Fatalf("restore should allow regression on Local: %v", err)
	}
	id, _ := pk.KeyID()
	pub, err := local.GetPublic(id)
	if err != nil {
		t.Fatal(err)
	}
	if pub.Version != 2 {
		t.Fatalf("version = %d, want 2 after restore", pub.Version)
	}

	base := openTestStore(t, BaseVariant)
	if err := base.Restore(PrivateProfileData{Public: PublicProfileData{PublicKey: pk, Version: 1}}); err == nil {
		t.Fatal("expected Restore to fail on Base variant")
	}
}

func TestFollowers(t *testing.T) {
	s := openTestStore(t, LocalVariant)
	a, b, c := genKey(t), genKey(t), genKey(t)
	aId, _ := a.KeyID()

	if err := s.Set(PrivateProfileData{Public: PublicProfileData{PublicKey: a, Version: 1}}); err != nil {
		t.Fatal(err)
	}
	bId, _ := b.KeyID()
	_ = bId
	if err := s.Set(PrivateProfileData{Public: PublicProfileData{
		PublicKey: b, Version: 1, Links: Links{{PeerProfile: aId}},
	}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(PrivateProfileData{Public: PublicProfileData{PublicKey: c, Version: 1}}); err != nil {
		t.Fatal(err)
	}

	followers, err := s.Followers(aId)
	if err != nil {
		t.Fatalf("followers: %v", err)
	}
	if len(followers) != 1 || !followers[0].Equal(func() claimmodel.ProfileId { id, _ := b.KeyID(); return id }()) {
		t.Fatalf("followers = %+v, want just b", followers)
	}
}
