package homeserver

import (
	"fmt"
	"sync"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/homeprotocol"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/mercury-network/mercury-go/internal/profilerepo"
)

// eventBufferSize bounds how many undelivered ProfileEvents a session
// queues; once it is full, deliver drops the oldest queued event, so a slow
// consumer never stalls the server's single lock holder.
const eventBufferSize = 64

// session is the server-side Session implementation Login returns.
type session struct {
	server    *Server
	profileId claimmodel.ProfileId

	events chan homeprotocol.ProfileEvent

	mu        sync.Mutex
	closed    bool
	checkins  map[string]chan homeprotocol.IncomingCall
}

func newSession(s *Server, profileId claimmodel.ProfileId) *session {
	return &session{
		server:    s,
		profileId: profileId,
		events:    make(chan homeprotocol.ProfileEvent, eventBufferSize),
		checkins:  make(map[string]chan homeprotocol.IncomingCall),
	}
}

// deliver enqueues ev without blocking the server lock: a full buffer
// drops the oldest pending event rather than stalling PairRequest/Response
// for every other session.
func (sess *session) deliver(ev homeprotocol.ProfileEvent) {
	select {
	case sess.events <- ev:
	default:
		select {
		case <-sess.events:
		default:
		}
		select {
		case sess.events <- ev:
		default:
		}
	}
}

// terminate ends the session without removing it from Server.sessions —
// the caller (Login, replacing a prior session) already owns that.
func (sess *session) terminate() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return
	}
	sess.closed = true
	close(sess.events)
	for _, ch := range sess.checkins {
		close(ch)
	}
}

func (sess *session) Events() <-chan homeprotocol.ProfileEvent { return sess.events }

func (sess *session) CheckinApp(appId string) (<-chan homeprotocol.IncomingCall, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil, fmt.Errorf("homeserver: %w: session closed", mercuryerr.ErrUnauthorized)
	}
	ch, ok := sess.checkins[appId]
	if !ok {
		ch = make(chan homeprotocol.IncomingCall, 1)
		sess.checkins[appId] = ch
		sess.server.mu.Lock()
		sess.server.appCheckins[profileAppKey{profile: sess.profileId, appId: appId}] = ch
		sess.server.mu.Unlock()
	}
	return ch, nil
}

func (sess *session) Ping(text string) (string, error) {
	sess.mu.Lock()
	closed := sess.closed
	sess.mu.Unlock()
	if closed {
		return "", fmt.Errorf("homeserver: %w: session closed", mercuryerr.ErrUnauthorized)
	}
	return text, nil
}

func (sess *session) Update(ownProfile profilerepo.PrivateProfileData) error {
	id, err := ownProfile.Public.Id()
	if err != nil {
		return err
	}
	if !id.Equal(sess.profileId) {
		return mercuryerr.ErrProfileIdMismatch
	}
	sess.server.mu.Lock()
	defer sess.server.mu.Unlock()
	if err := sess.server.local.Set(ownProfile); err != nil {
		return err
	}
	if sess.server.remote != nil {
		if err := sess.server.remote.Set(ownProfile); err != nil {
			sess.server.log.WithError(err).Warn("homeserver: update: remote persist failed")
		}
	}
	sess.server.hosted[id.String()] = ownProfile
	return nil
}

func (sess *session) Unregister(newHome *claimmodel.ProfileId) error {
	sess.server.mu.Lock()
	defer sess.server.mu.Unlock()
	key := sess.profileId.String()
	delete(sess.server.hosted, key)
	for appId, ch := range sess.checkins {
		delete(sess.server.appCheckins, profileAppKey{profile: sess.profileId, appId: appId})
		close(ch)
	}
	return nil
}

func (sess *session) Close() error {
	sess.server.mu.Lock()
	delete(sess.server.sessions[sess.profileId.String()], sess)
	sess.server.mu.Unlock()
	sess.terminate()
	return nil
}

var _ homeprotocol.Session = (*session)(nil)
