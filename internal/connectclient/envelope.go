package connectclient

import (
	"fmt"

	"github.com/mercury-network/mercury-go/internal/homeprotocol"
	"github.com/vmihailenco/msgpack/v5"
)

// encodeEnvelope/decodeEnvelope adapt homeprotocol's length-prefixed
// framing to PeerContext's own frame-oriented Read/WriteFrame, which
// already supplies the outer length prefix (plain or sealed): here we
// only need the msgpack envelope bytes themselves.
func encodeEnvelope(env homeprotocol.Envelope) ([]byte, error) {
	b, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("connectclient: marshal envelope: %w", err)
	}
	return b, nil
}

func decodeEnvelope(b []byte) (homeprotocol.Envelope, error) {
	var env homeprotocol.Envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return homeprotocol.Envelope{}, fmt.Errorf("connectclient: unmarshal envelope: %w", err)
	}
	return env, nil
}
