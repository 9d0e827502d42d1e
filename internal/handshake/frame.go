// Package handshake implements the Mercury peer handshake: an
// AuthenticationInfo exchange over any io.ReadWriteCloser, optionally
// upgrading the channel to an encrypted AEAD stream when the suite
// supports Diffie-Hellman.
package handshake

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/vmihailenco/msgpack/v5"
)

// MaxAuthFrameBytes bounds the authentication frame, mirroring the
// teacher's MaxRelayMsgBytes ceiling on its own envelope framing, scaled
// down to what a single public key + profile id needs.
const MaxAuthFrameBytes = 8192

// AuthenticationInfo is what each side sends first: its signing identity.
type AuthenticationInfo struct {
	PublicKey claimmodel.PublicKey `msgpack:"public_key"`
	ProfileId claimmodel.ProfileId `msgpack:"profile_id"`
}

type wireAuthInfo struct {
	PublicKey string `msgpack:"public_key"`
	ProfileId string `msgpack:"profile_id"`
}

func writeAuthInfo(w io.Writer, info AuthenticationInfo) error {
	wire := wireAuthInfo{PublicKey: info.PublicKey.String(), ProfileId: info.ProfileId.String()}
	body, err := msgpack.Marshal(wire)
	if err != nil {
		return fmt.Errorf("handshake: %w: marshal: %v", mercuryerr.ErrHandshakeFailed, err)
	}
	if len(body) > MaxAuthFrameBytes {
		return fmt.Errorf("handshake: %w: frame too large (%d bytes)", mercuryerr.ErrHandshakeFailed, len(body))
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("handshake: %w: %v", mercuryerr.ErrHandshakeFailed, err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("handshake: %w: %v", mercuryerr.ErrHandshakeFailed, err)
	}
	return nil
}

func readAuthInfo(r io.Reader) (AuthenticationInfo, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return AuthenticationInfo{}, fmt.Errorf("handshake: %w: %v", mercuryerr.ErrHandshakeFailed, err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 || n > MaxAuthFrameBytes {
		return AuthenticationInfo{}, fmt.Errorf("handshake: %w: invalid frame length %d", mercuryerr.ErrHandshakeFailed, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return AuthenticationInfo{}, fmt.Errorf("handshake: %w: %v", mercuryerr.ErrHandshakeFailed, err)
	}
	var wire wireAuthInfo
	if err := msgpack.Unmarshal(body, &wire); err != nil {
		return AuthenticationInfo{}, fmt.Errorf("handshake: %w: unmarshal: %v", mercuryerr.ErrHandshakeFailed, err)
	}
	pk, err := claimmodel.ParsePublicKey(wire.PublicKey)
	if err != nil {
		return AuthenticationInfo{}, fmt.Errorf("handshake: %w: %v", mercuryerr.ErrHandshakeFailed, err)
	}
	id, err := claimmodel.ParseProfileId(wire.ProfileId)
	if err != nil {
		return AuthenticationInfo{}, fmt.Errorf("handshake: %w: %v", mercuryerr.ErrHandshakeFailed, err)
	}
	return AuthenticationInfo{PublicKey: pk, ProfileId: id}, nil
}
