package profilerepo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	bolt "go.etcd.io/bbolt"
)

var bucketProfiles = []byte("profiles_by_id")

// Store is the bbolt-backed Local/Base profile repository, generalizing the
// bucket-per-concern pattern of the teacher's chain database: one bucket,
// keyed by the profile id's textual form, msgpack-encoded
// PrivateProfileData values.
//
// A Store opened with variant LocalVariant additionally implements
// Restorer; a Store opened with BaseVariant rejects Restore.
type Store struct {
	db      *bolt.DB
	variant Variant
}

// Variant distinguishes Local (owner-writable, Restore permitted) from
// Base (server-side, monotonic-only) storage semantics. Both share this
// same bbolt-backed implementation.
type Variant int

const (
	LocalVariant Variant = iota
	BaseVariant
)

// Open opens (creating if absent) a bbolt-backed profile store at path.
func Open(path string, variant Variant) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("profilerepo: mkdir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("profilerepo: open bbolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProfiles)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("profilerepo: create bucket: %w", err)
	}
	return &Store{db: db, variant: variant}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// storageKey is the bbolt key for id: the full textual form, not just the
// multihash bytes, so distinct suites never collide.
func storageKey(id claimmodel.ProfileId) []byte { return []byte(id.String()) }

func (s *Store) getRaw(id claimmodel.ProfileId) (PrivateProfileData, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketProfiles).Get(storageKey(id))
		if v == nil {
			return nil
		}
		found = true
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil || !found {
		return PrivateProfileData{}, found, err
	}
	p, err := unmarshalProfile(data)
	return p, true, err
}

func (s *Store) putRaw(id claimmodel.ProfileId, p PrivateProfileData) error {
	data, err := marshalProfile(p)
	if err != nil {
		return fmt.Errorf("profilerepo: marshal: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProfiles).Put(storageKey(id), data)
	})
}

// GetPublic implements Reader.
func (s *Store) GetPublic(id claimmodel.ProfileId) (PublicProfileData, error) {
	p, found, err := s.getRaw(id)
	if err != nil {
		return PublicProfileData{}, err
	}
	if !found {
		return PublicProfileData{}, mercuryerr.ErrProfileNotFound
	}
	return p.Public, nil
}

// Get implements PrivateReader.
func (s *Store) Get(id claimmodel.ProfileId) (PrivateProfileData, error) {
	p, found, err := s.getRaw(id)
	if err != nil {
		return PrivateProfileData{}, err
	}
	if !found {
		return PrivateProfileData{}, mercuryerr.ErrProfileNotFound
	}
	return p, nil
}

// Followers implements Reader: a linear scan of every stored document's
// link set, acceptable at the profile-repository scale this serves.
func (s *Store) Followers(id claimmodel.ProfileId) ([]claimmodel.ProfileId, error) {
	var out []claimmodel.ProfileId
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketProfiles).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			p, err := unmarshalProfile(v)
			if err != nil {
				continue
			}
			if p.Public.Links.Contains(id) {
				followerId, err := p.Public.Id()
				if err != nil {
					continue
				}
				out = append(out, followerId)
			}
		}
		return nil
	})
	return out, err
}

// Set implements Writer's monotonic version rule (§4.3): a strictly lower
// incoming version conflicts, equal version requires identical payload
// (idempotent) else conflicts, strictly higher overwrites.
func (s *Store) Set(profile PrivateProfileData) error {
	id, err := profile.Public.Id()
	if err != nil {
		return err
	}
	existing, found, err := s.getRaw(id)
	if err != nil {
		return err
	}
	if found {
		switch {
		case existing.Public.Version > profile.Public.Version:
			return mercuryerr.ErrVersionConflict
		case existing.Public.Version == profile.Public.Version:
			if existing.Public.Equal(profile.Public) && bytes.Equal(existing.PrivateBlob, profile.PrivateBlob) {
				return nil
			}
			return mercuryerr.ErrVersionConflict
		}
	}
	return s.putRaw(id, profile)
}

// Restore bypasses the monotonic version check entirely. Only the Local
// variant permits it.
func (s *Store) Restore(profile PrivateProfileData) error {
	if s.variant != LocalVariant {
		return fmt.Errorf("profilerepo: %w: restore is a Local-only operation", mercuryerr.ErrUnauthorized)
	}
	id, err := profile.Public.Id()
	if err != nil {
		return err
	}
	return s.putRaw(id, profile)
}

// Clear implements Writer: both Local and Base physically remove the
// entry — only the distributed Remote variant tombstones (remote.go's
// Client.Clear), since a physical delete there would have no way to
// propagate "this id is gone" to peers that haven't seen the deletion yet.
func (s *Store) Clear(pubkey claimmodel.PublicKey) error {
	id, err := pubkey.KeyID()
	if err != nil {
		return err
	}
	_, found, err := s.getRaw(id)
	if err != nil {
		return err
	}
	if !found {
		return mercuryerr.ErrProfileNotFound
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProfiles).Delete(storageKey(id))
	})
}

var (
	_ Repository = (*Store)(nil)
	_ Restorer   = (*Store)(nil)
)
