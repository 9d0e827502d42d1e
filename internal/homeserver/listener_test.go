package homeserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/connectclient"
	"github.com/mercury-network/mercury-go/internal/homeprotocol"
	"github.com/mercury-network/mercury-go/internal/profilerepo"
)

func startTestListener(t *testing.T, srv *Server) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() { _ = srv.Listen(ln, false) }()
	return ln.Addr()
}

type fixedSigner struct {
	id claimmodel.ProfileId
	sk claimmodel.PrivateKey
}

func (f fixedSigner) ProfileId() claimmodel.ProfileId { return f.id }
func (f fixedSigner) PrivateKeyFor(id claimmodel.ProfileId) (claimmodel.PrivateKey, error) {
	return f.sk, nil
}

func TestListenerRegisterAndLoginRoundTrip(t *testing.T) {
	srv, _, homeId := newTestServer(t)
	addr := startTestListener(t, srv)

	userSigner := genEd25519(t)
	userPub, err := userSigner.PublicKey()
	if err != nil {
		t.Fatal(err)
	}
	userId := idOf(t, userPub)

	home, err := connectclient.ConnectToHome(context.Background(), nil, nil, homeId, []string{addr.String()}, fixedSigner{id: userId, sk: userSigner}, false, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer home.Close()

	half, err := claimmodel.SignHalfProof(claimmodel.RelationHostedOnHome, userSigner, homeId)
	if err != nil {
		t.Fatal(err)
	}
	own := profilerepo.PrivateProfileData{Public: profilerepo.PublicProfileData{PublicKey: userPub, Version: 1}}
	updated, err := home.Register(own, half)
	if err != nil {
		t.Fatalf("register over wire: %v", err)
	}
	if updated.Public.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Public.Version)
	}

	proof, err := claimmodel.CompleteHalfProof(half, srv.signer)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := home.Login(proof)
	if err != nil {
		t.Fatalf("login over wire: %v", err)
	}
	defer sess.Close()

	echoed, err := sess.Ping("hello")
	if err != nil {
		t.Fatalf("ping over wire: %v", err)
	}
	if echoed != "hello" {
		t.Fatalf("ping echoed %q, want %q", echoed, "hello")
	}
}

// TestListenerCallRoutingOverWire exercises OpCall dispatch end to end: the
// caller proposes a call over a real TCP connection while the callee has
// checked in in-process (the listener doesn't push CheckinApp/Events over
// the wire — see dispatch's doc comment), confirming the accept/reject
// outcome still makes it back to the wire-connected caller.
func TestListenerCallRoutingOverWire(t *testing.T) {
	srv, _, homeId := newTestServer(t)
	addr := startTestListener(t, srv)

	bobSigner, bobId, _ := registerProfile(t, srv, homeId)
	bobSess := loginHelper(t, srv, bobSigner, bobId, homeId)
	calls, err := bobSess.CheckinApp("chat")
	if err != nil {
		t.Fatal(err)
	}

	aliceSigner := genEd25519(t)
	alicePub, err := aliceSigner.PublicKey()
	if err != nil {
		t.Fatal(err)
	}
	aliceId := idOf(t, alicePub)

	home, err := connectclient.ConnectToHome(context.Background(), nil, nil, homeId, []string{addr.String()}, fixedSigner{id: aliceId, sk: aliceSigner}, false, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer home.Close()

	half, err := claimmodel.SignHalfProof(claimmodel.RelationEnableCallBetween, aliceSigner, bobId)
	if err != nil {
		t.Fatal(err)
	}
	relation, err := claimmodel.CompleteHalfProof(half, bobSigner)
	if err != nil {
		t.Fatal(err)
	}

	resultCh := make(chan homeprotocol.CallResponse, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := home.Call("chat", relation, []byte("hi"))
		resultCh <- resp
		errCh <- err
	}()

	select {
	case incoming := <-calls:
		Answer(incoming, nil)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for incoming call")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("call over wire: %v", err)
	}
	if resp := <-resultCh; !resp.Accepted {
		t.Fatalf("expected call to be accepted, got %+v", resp)
	}
}
