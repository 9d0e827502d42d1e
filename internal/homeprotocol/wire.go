// Package homeprotocol defines the Mercury HomeProtocol operations and the
// msgpack/length-prefixed wire envelope they travel in over a handshake's
// PeerContext frames.
package homeprotocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/vmihailenco/msgpack/v5"
)

// MaxEnvelopeBytes bounds a single RPC envelope.
const MaxEnvelopeBytes = 1 << 20

// Op names every HomeProtocol RPC (§4.5).
type Op string

const (
	OpClaim        Op = "claim"
	OpRegister     Op = "register"
	OpLogin        Op = "login"
	OpPairRequest  Op = "pair_request"
	OpPairResponse Op = "pair_response"
	OpCall         Op = "call"
	OpUpdate       Op = "update"
	OpUnregister   Op = "unregister"
	OpPing         Op = "ping"
	OpCheckinApp   Op = "checkin_app"
)

// Envelope is the wire shape multiplexing every RPC call/response pair
// over a single encrypted channel (§4.5): op string, correlation id, and
// an opaque msgpack body the op-specific (de)serializer owns.
type Envelope struct {
	Op   Op                 `msgpack:"op"`
	Rid  uint64              `msgpack:"rid"`
	Body msgpack.RawMessage `msgpack:"body"`
}

// ErrorBody is the Body shape for a response representing a failed call.
type ErrorBody struct {
	Kind    string `msgpack:"kind"`
	Message string `msgpack:"message"`
}

// WriteEnvelope serializes env and writes it length-prefixed (u32 LE) to w.
func WriteEnvelope(w io.Writer, env Envelope) error {
	body, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("homeprotocol: marshal envelope: %w", err)
	}
	if len(body) > MaxEnvelopeBytes {
		return fmt.Errorf("homeprotocol: envelope too large (%d bytes)", len(body))
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadEnvelope reads and deserializes one length-prefixed envelope from r.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Envelope{}, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 || n > MaxEnvelopeBytes {
		return Envelope{}, fmt.Errorf("homeprotocol: %w: invalid envelope length %d", mercuryerr.ErrMalformed, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := msgpack.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("homeprotocol: %w: %v", mercuryerr.ErrMalformed, err)
	}
	return env, nil
}

// EncodeBody marshals v into an envelope body.
func EncodeBody(v interface{}) (msgpack.RawMessage, error) {
	return msgpack.Marshal(v)
}

// DecodeBody unmarshals an envelope body into v.
func DecodeBody(body msgpack.RawMessage, v interface{}) error {
	return msgpack.Unmarshal(body, v)
}
