package connectclient

import (
	"context"
	"crypto/ed25519"
	"net"
	"path/filepath"
	"testing"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/homeserver"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/mercury-network/mercury-go/internal/profilerepo"
)

type fixedTestSigner struct {
	id claimmodel.ProfileId
	sk claimmodel.PrivateKey
}

func (f fixedTestSigner) ProfileId() claimmodel.ProfileId { return f.id }
func (f fixedTestSigner) PrivateKeyFor(id claimmodel.ProfileId) (claimmodel.PrivateKey, error) {
	return f.sk, nil
}

func genTestKey(t *testing.T) (claimmodel.PrivateKey, claimmodel.PublicKey, claimmodel.ProfileId) {
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

func TestWireSessionUpdateUnregisterPing(t *testing.T) {
	store, err := profilerepo.Open(filepath.Join(t.TempDir(), "home.db"), profilerepo.BaseVariant)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	homeSigner, homePub, homeId := genTestKey(t)
	_ = homePub
	srv := homeserver.New(homeId, homeSigner, store, nil, nil, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() { _ = srv.Listen(ln, false) }()

	userSigner, userPub, userId := genTestKey(t)

	home, err := ConnectToHome(context.Background(), nil, nil, homeId, []string{ln.Addr().String()}, fixedTestSigner{id: userId, sk: userSigner}, false, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer home.Close()

	half, err := claimmodel.SignHalfProof(claimmodel.RelationHostedOnHome, userSigner, homeId)
	if err != nil {
		t.Fatal(err)
	}
	own := profilerepo.PrivateProfileData{Public: profilerepo.PublicProfileData{PublicKey: userPub, Version: 1, Attributes: map[string][]byte{}}}
	registered, err := home.Register(own, half)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	proof, err := claimmodel.CompleteHalfProof(half, homeSigner)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := home.Login(proof)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer sess.Close()

	echoed, err := sess.Ping("ping")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if echoed != "ping" {
		t.Fatalf("ping = %q, want %q", echoed, "ping")
	}

	registered.Public.Version++
	if err := sess.Update(registered); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := sess.CheckinApp("chat"); err == nil || mercuryerr.KindOf(err) != mercuryerr.KindInput {
		t.Fatalf("expected CheckinApp to report unsupported-over-wire, got %v", err)
	}

	if _, ok := <-sess.Events(); ok {
		t.Fatal("expected Events() to be an already-closed channel over the wire transport")
	}

	if err := sess.Unregister(nil); err != nil {
		t.Fatalf("unregister: %v", err)
	}
}
