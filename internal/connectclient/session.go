package connectclient

import (
	"fmt"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/homeprotocol"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/mercury-network/mercury-go/internal/profilerepo"
)

// wireSession is the homeprotocol.Session Login returns for a network
// connection: Update/Unregister/Ping proxy straight through to the
// underlying Home's RPCs. Events/CheckinApp cannot: both are async pushes
// from the home, and this request/response multiplexed transport has no
// frame-tagging scheme to deliver them unsolicited (the same limitation
// homeserver/listener.go documents on the server side). Events returns an
// already-closed channel and CheckinApp reports the RPC as unsupported
// rather than blocking forever on a push that will never arrive.
type wireSession struct {
	home  *Home
	token string

	closedEvents chan homeprotocol.ProfileEvent
}

func newWireSession(home *Home, token string) *wireSession {
	closed := make(chan homeprotocol.ProfileEvent)
	close(closed)
	return &wireSession{home: home, token: token, closedEvents: closed}
}

func (s *wireSession) Update(ownProfile profilerepo.PrivateProfileData) error {
	return s.home.Update(ownProfile)
}

func (s *wireSession) Unregister(newHome *claimmodel.ProfileId) error {
	return s.home.Unregister(newHome)
}

func (s *wireSession) Events() <-chan homeprotocol.ProfileEvent { return s.closedEvents }

func (s *wireSession) CheckinApp(appId string) (<-chan homeprotocol.IncomingCall, error) {
	return nil, fmt.Errorf("connectclient: %w: CheckinApp is not available over this wire transport, see DESIGN.md", mercuryerr.ErrUnsupportedOp)
}

func (s *wireSession) Ping(text string) (string, error) {
	return s.home.Ping(text)
}

// Close ends the client-side session handle. The underlying connection is
// left open: it is owned (and possibly cached/shared) by the Home that
// created this session, not by the session itself.
func (s *wireSession) Close() error { return nil }

var _ homeprotocol.Session = (*wireSession)(nil)
