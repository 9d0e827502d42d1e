package handshake

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/sirupsen/logrus"
)

// PeerContext is the result of a successful handshake: the authenticated
// peer identity, and — when both sides' suites yield a shared DH secret — a
// sealed stream wrapping further traffic.
type PeerContext struct {
	MySigner  claimmodel.ProfileId
	PeerId    claimmodel.ProfileId
	PeerPubkey claimmodel.PublicKey
	Encrypted bool

	sealed *sealedStream
	raw    io.ReadWriteCloser
}

// ReadFrame reads the next length-prefixed frame, opening it when the
// channel is encrypted and returning its bytes unmodified in degraded mode.
// Each call returns exactly one frame.
func (pc *PeerContext) ReadFrame() ([]byte, error) {
	if pc.Encrypted {
		return pc.sealed.ReadFrame()
	}
	return readPlainFrame(pc.raw)
}

// WriteFrame writes one frame, sealed when the channel is encrypted.
func (pc *PeerContext) WriteFrame(b []byte) error {
	if pc.Encrypted {
		return pc.sealed.WriteFrame(b)
	}
	return writePlainFrame(pc.raw, b)
}

func (pc *PeerContext) Close() error { return pc.raw.Close() }

// Perform runs the Mercury handshake on conn: exchange AuthenticationInfo,
// verify key-id self-consistency, and attempt to upgrade to an encrypted
// channel. allowDegraded controls whether a suite mismatch or DH failure
// falls back to an authenticated-but-unencrypted channel (false by default
// in both entrypoints, which set it only from their -allow-degraded flag).
func Perform(conn io.ReadWriteCloser, mySigner claimmodel.PrivateKey, myId claimmodel.ProfileId, allowDegraded bool, log *logrus.Entry) (*PeerContext, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	myPub, err := mySigner.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("handshake: %w: %v", mercuryerr.ErrHandshakeFailed, err)
	}
	mine := AuthenticationInfo{PublicKey: myPub, ProfileId: myId}

	writeDone := make(chan error, 1)
	go func() { writeDone <- writeAuthInfo(conn, mine) }()

	peer, err := readAuthInfo(conn)
	if err != nil {
		return nil, err
	}
	if werr := <-writeDone; werr != nil {
		return nil, werr
	}

	peerKeyId, err := peer.PublicKey.KeyID()
	if err != nil {
		return nil, fmt.Errorf("handshake: %w: %v", mercuryerr.ErrHandshakeFailed, err)
	}
	if !peerKeyId.Equal(peer.ProfileId) {
		return nil, fmt.Errorf("handshake: %w: %w: profile id does not match public key", mercuryerr.ErrHandshakeFailed, mercuryerr.ErrProfileIdMismatch)
	}

	pc := &PeerContext{
		MySigner:   myId,
		PeerId:     peer.ProfileId,
		PeerPubkey: peer.PublicKey,
		raw:        conn,
	}

	key, dhOK, err := deriveSharedKey(mySigner, peer.PublicKey)
	if err != nil {
		log.WithError(err).Warn("handshake: dh derivation failed, considering degraded mode")
		dhOK = false
	}
	if dhOK {
		sealed, err := newSealedStream(conn, key)
		if err != nil {
			return nil, fmt.Errorf("handshake: %w: %v", mercuryerr.ErrHandshakeFailed, err)
		}
		pc.sealed = sealed
		pc.Encrypted = true
		return pc, nil
	}

	if !allowDegraded {
		return nil, fmt.Errorf("handshake: %w: no shared DH secret and degraded mode disallowed", mercuryerr.ErrHandshakeFailed)
	}
	log.WithField("peer", peer.ProfileId.String()).Warn("handshake: falling back to degraded (unencrypted) mode")
	pc.Encrypted = false
	return pc, nil
}

func readPlainFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	_, err := io.ReadFull(r, body)
	return body, err
}

func writePlainFrame(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}
