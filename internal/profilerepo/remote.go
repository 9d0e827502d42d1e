package profilerepo

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// Client is the distributed ProfileRepository variant: it never discloses
// private bytes to the caller (no Get/PrivateReader), writes are
// monotonic-only, and Clear only ever produces a tombstone (no physical
// delete — there is no "local disk" to reclaim on a remote peer).
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextId uint64
	log    *logrus.Entry
}

// Dial opens an osg connection to a remote profile repository peer.
func Dial(addr string, log *logrus.Entry) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("profilerepo: %w: %v", mercuryerr.ErrConnectionFailed, err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn), log: log}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// call sends method/params and returns the response's reply bytes, or an
// error derived from a nonzero response code.
func (c *Client) call(method string, params map[string]interface{}, commit *bool) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rid := atomic.AddUint64(&c.nextId, 1)
	if err := writeOsgFrame(c.conn, rid, method, params, commit); err != nil {
		return nil, fmt.Errorf("profilerepo: %w: %v", mercuryerr.ErrConnectionFailed, err)
	}
	resp, err := readOsgFrame(c.reader)
	if err != nil {
		return nil, fmt.Errorf("profilerepo: %w: %v", mercuryerr.ErrConnectionFailed, err)
	}
	if resp.Rid != rid {
		c.log.WithFields(logrus.Fields{"want": rid, "got": resp.Rid}).Warn("profilerepo: osg response rid mismatch")
	}
	if resp.Code != 0 {
		desc := "osg error"
		if resp.Description != nil {
			desc = *resp.Description
		}
		return nil, fmt.Errorf("profilerepo: osg %s failed (code %d): %s", method, resp.Code, desc)
	}
	return resp.Reply, nil
}

func commitTrue() *bool { b := true; return &b }

// GetPublic implements Reader by fetching the profile node's attribute and
// returning only its public half.
func (c *Client) GetPublic(id claimmodel.ProfileId) (PublicProfileData, error) {
	reply, err := c.call(methodGetNodeAttribute, map[string]interface{}{
		"node": id.String(), "key": profileAttribute,
	}, nil)
	if err != nil {
		return PublicProfileData{}, err
	}
	if len(reply) == 0 {
		return PublicProfileData{}, mercuryerr.ErrProfileNotFound
	}
	p, err := unmarshalProfile(reply)
	if err != nil {
		return PublicProfileData{}, err
	}
	return p.Public, nil
}

// Followers implements Reader via list_inedges over link-typed edges.
func (c *Client) Followers(id claimmodel.ProfileId) ([]claimmodel.ProfileId, error) {
	reply, err := c.call(methodListInedges, map[string]interface{}{
		"node": id.String(), "edge_type": linkEdgeType,
	}, nil)
	if err != nil {
		return nil, err
	}
	var peers []string
	if len(reply) > 0 {
		if err := decodeReply(reply, &peers); err != nil {
			return nil, fmt.Errorf("profilerepo: %w: %v", mercuryerr.ErrMalformed, err)
		}
	}
	out := make([]claimmodel.ProfileId, 0, len(peers))
	for _, s := range peers {
		id, err := claimmodel.ParseProfileId(s)
		if err != nil {
			c.log.WithField("peer", s).Warn("profilerepo: skipping malformed follower id")
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Set implements Writer. The server is free to reject a conflicting
// version (surfaced as ErrVersionConflict).
func (c *Client) Set(profile PrivateProfileData) error {
	id, err := profile.Public.Id()
	if err != nil {
		return err
	}
	data, err := marshalProfile(profile)
	if err != nil {
		return err
	}
	if _, err := c.call(methodAddNode, map[string]interface{}{"node": id.String()}, commitTrue()); err != nil {
		c.log.WithField("id", id.String()).Debug("profilerepo: add_node: node likely already existed")
	}
	_, err = c.call(methodSetNodeAttribute, map[string]interface{}{
		"node": id.String(), "key": profileAttribute, "value": data,
		"expected_version": profile.Public.Version,
	}, commitTrue())
	if err != nil {
		return fmt.Errorf("%w", mercuryerr.ErrVersionConflict)
	}
	for _, link := range profile.Public.Links {
		if _, err := c.call(methodAddEdge, map[string]interface{}{
			"from": id.String(), "to": link.PeerProfile.String(), "edge_type": linkEdgeType,
		}, commitTrue()); err != nil {
			c.log.WithField("peer", link.PeerProfile.String()).Warn("profilerepo: add_edge failed")
		}
	}
	return nil
}

// Clear implements Writer: a remote peer only ever tombstones, it never
// physically deletes a node other clients may still reference.
func (c *Client) Clear(pubkey claimmodel.PublicKey) error {
	id, err := pubkey.KeyID()
	if err != nil {
		return err
	}
	current, err := c.GetPublic(id)
	if err != nil {
		return err
	}
	tomb := PrivateProfileData{
		Public: PublicProfileData{PublicKey: pubkey, Version: current.Version + 1},
	}
	return c.Set(tomb)
}

// decodeReply re-unmarshals an already-extracted msgpack reply payload.
func decodeReply(reply []byte, out interface{}) error {
	return msgpack.Unmarshal(reply, out)
}

var (
	_ Reader = (*Client)(nil)
	_ Writer = (*Client)(nil)
)
