package connectclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/homeprotocol"
	"github.com/mercury-network/mercury-go/internal/profilerepo"
	"github.com/sirupsen/logrus"
)

// backoffInitial/backoffMax/backoffFactor define MyProfile's reconnect
// schedule (§4.7): doubling from 1s, capped at 32s, reset on success.
const (
	backoffInitial = time.Second
	backoffMax     = 32 * time.Second
	backoffFactor  = 2
)

// MyProfile orchestrates joining/leaving homes and keeping a login alive
// across reconnects for one locally-controlled profile.
type MyProfile struct {
	mu       sync.Mutex
	id       claimmodel.ProfileId
	signer   Signer
	repo     profilerepo.Reader
	cache    *HomeConnectionCache
	log      *logrus.Entry

	home    *Home
	homeId  claimmodel.ProfileId
	backoff time.Duration
}

// NewMyProfile constructs the façade for id, using signer to authenticate
// and repo/cache for home discovery and connection reuse.
func NewMyProfile(id claimmodel.ProfileId, signer Signer, repo profilerepo.Reader, cache *HomeConnectionCache, log *logrus.Entry) *MyProfile {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MyProfile{id: id, signer: signer, repo: repo, cache: cache, log: log, backoff: backoffInitial}
}

// JoinHome registers ownProfile with the named home via a hosted_on_home
// half-proof, connecting if necessary.
func (m *MyProfile) JoinHome(ctx context.Context, homeId claimmodel.ProfileId, addrHints []string, ownProfile profilerepo.PrivateProfileData, allowDegraded bool) (profilerepo.PrivateProfileData, error) {
	home, err := m.connect(ctx, homeId, addrHints, allowDegraded)
	if err != nil {
		return profilerepo.PrivateProfileData{}, err
	}
	signer, err := m.signer.PrivateKeyFor(m.id)
	if err != nil {
		return profilerepo.PrivateProfileData{}, err
	}
	half, err := claimmodel.SignHalfProof(claimmodel.RelationHostedOnHome, signer, homeId)
	if err != nil {
		return profilerepo.PrivateProfileData{}, err
	}
	return home.Register(ownProfile, half)
}

// Login logs in on the currently joined home using proof, retrying with
// exponential backoff on connection failure, and returns the live Session
// (§4.5) that Update/Unregister/Ping and DAppSession (§4.8) operate over.
func (m *MyProfile) Login(ctx context.Context, proof claimmodel.RelationProof, addrHints []string, allowDegraded bool) (homeprotocol.Session, error) {
	homeId, ok := proof.OtherParty(m.id)
	if !ok {
		return nil, fmt.Errorf("connectclient: relation proof does not involve this profile")
	}
	home, err := m.connectWithBackoff(ctx, homeId, addrHints, allowDegraded)
	if err != nil {
		return nil, err
	}
	sess, err := home.Login(proof)
	if err != nil {
		m.resetConnection()
		return nil, err
	}
	m.mu.Lock()
	m.backoff = backoffInitial
	m.mu.Unlock()
	return sess, nil
}

// LeaveHome drops the cached connection to homeId, if any.
func (m *MyProfile) LeaveHome(homeId claimmodel.ProfileId) {
	if m.cache != nil {
		m.cache.Evict(CacheKey{Caller: m.id, Home: homeId})
	}
	m.mu.Lock()
	if m.homeId.Equal(homeId) {
		m.home = nil
	}
	m.mu.Unlock()
}

func (m *MyProfile) connect(ctx context.Context, homeId claimmodel.ProfileId, addrHints []string, allowDegraded bool) (*Home, error) {
	home, err := ConnectToHome(ctx, m.cache, m.repo, homeId, addrHints, m.signer, allowDegraded, m.log)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.home, m.homeId = home, homeId
	m.mu.Unlock()
	return home, nil
}

// connectWithBackoff retries connect, sleeping on MyProfile's own backoff
// schedule between attempts, until ctx is done.
func (m *MyProfile) connectWithBackoff(ctx context.Context, homeId claimmodel.ProfileId, addrHints []string, allowDegraded bool) (*Home, error) {
	for {
		home, err := m.connect(ctx, homeId, addrHints, allowDegraded)
		if err == nil {
			return home, nil
		}
		m.mu.Lock()
		wait := m.backoff
		m.backoff *= backoffFactor
		if m.backoff > backoffMax {
			m.backoff = backoffMax
		}
		m.mu.Unlock()
		m.log.WithError(err).WithField("retry_in", wait).Warn("connectclient: home connection failed, backing off")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("connectclient: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (m *MyProfile) resetConnection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.home != nil {
		_ = m.home.Close()
	}
	m.home = nil
}
