package profilerepo

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// osgMaxFrame bounds a single osg envelope at 1 MiB, the same ceiling
// homeprotocol.MaxEnvelopeBytes puts on RPC envelopes: this channel has no
// business ever carrying a multi-profile blob past this size.
const osgMaxFrame = 1 << 20

// osgEnvelope is the outer wrapper every osg exchange is carried in:
// {target: "osg", payload: Request|Response}.
type osgEnvelope struct {
	Target  string          `msgpack:"target"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// osgRequest is a single osg graph-protocol call.
type osgRequest struct {
	Rid    uint64                 `msgpack:"rid"`
	Method string                 `msgpack:"method"`
	Params map[string]interface{} `msgpack:"params"`
	Commit *bool                  `msgpack:"commit"`
}

// osgResponse is the reply to an osgRequest. Code 0 is success; nonzero is
// implementation-defined (surfaced to the caller as an opaque error).
type osgResponse struct {
	Rid         uint64             `msgpack:"rid"`
	Code        uint8              `msgpack:"code"`
	Description *string            `msgpack:"description"`
	Reply       msgpack.RawMessage `msgpack:"reply"`
}

// Reserved osg method names (§6).
const (
	methodAddNode             = "add_node"
	methodRemoveNode          = "remove_node"
	methodListNodes           = "list_nodes"
	methodListInedges         = "list_inedges"
	methodSetNodeAttribute    = "set_node_attribute"
	methodGetNodeAttribute    = "get_node_attribute"
	methodClearNodeAttribute  = "clear_node_attribute"
	methodAddEdge             = "add_edge"
	methodRemoveEdge          = "remove_edge"
)

// profileAttribute is the node attribute key the profile repository stores
// its serialized PrivateProfileData blob under.
const profileAttribute = "profile"

// linkEdgeType labels the outbound-Link edges between profile nodes.
const linkEdgeType = "link"

func writeOsgFrame(w io.Writer, rid uint64, method string, params map[string]interface{}, commit *bool) error {
	req := osgRequest{Rid: rid, Method: method, Params: params, Commit: commit}
	payload, err := msgpack.Marshal(req)
	if err != nil {
		return fmt.Errorf("profilerepo: osg: marshal request: %w", err)
	}
	env := osgEnvelope{Target: "osg", Payload: payload}
	body, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("profilerepo: osg: marshal envelope: %w", err)
	}
	if len(body) > osgMaxFrame {
		return fmt.Errorf("profilerepo: osg: request too large (%d bytes)", len(body))
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func readOsgFrame(r *bufio.Reader) (osgResponse, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return osgResponse{}, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 || n > osgMaxFrame {
		return osgResponse{}, fmt.Errorf("profilerepo: osg: invalid frame length %d", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return osgResponse{}, err
	}
	var env osgEnvelope
	if err := msgpack.Unmarshal(body, &env); err != nil {
		return osgResponse{}, fmt.Errorf("profilerepo: osg: unmarshal envelope: %w", err)
	}
	var resp osgResponse
	if err := msgpack.Unmarshal(env.Payload, &resp); err != nil {
		return osgResponse{}, fmt.Errorf("profilerepo: osg: unmarshal response: %w", err)
	}
	return resp, nil
}
