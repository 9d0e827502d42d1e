package profilerepo

import "github.com/mercury-network/mercury-go/internal/claimmodel"

// Reader is the read contract shared by every variant.
type Reader interface {
	// GetPublic returns the current public document for id.
	// mercuryerr.ErrProfileNotFound if unknown.
	GetPublic(id claimmodel.ProfileId) (PublicProfileData, error)

	// Followers returns every profile whose link set names id.
	Followers(id claimmodel.ProfileId) ([]claimmodel.ProfileId, error)
}

// PrivateReader is implemented by variants that may disclose private
// profile bytes to their caller (Local, Base — never Remote).
type PrivateReader interface {
	Get(id claimmodel.ProfileId) (PrivateProfileData, error)
}

// Writer is the write contract shared by every variant, with
// variant-specific version-conflict rules (see Store.Set and Client.Set).
type Writer interface {
	// Set stores profile. mercuryerr.ErrVersionConflict on a version
	// regression or a same-version payload mismatch.
	Set(profile PrivateProfileData) error

	// Clear removes pubkey's profile: Local/Base (Store) delete the entry
	// physically, Remote (Client) writes a tombstone at version = previous+1.
	// mercuryerr.ErrProfileNotFound if there is no previous entry.
	Clear(pubkey claimmodel.PublicKey) error
}

// Repository is the full local/base contract: read, write, and raw private
// access.
type Repository interface {
	Reader
	PrivateReader
	Writer
}

// Restorer is implemented only by Local: unlike Set, Restore permits
// version regression (bulk-loading from a backup or a peer's export).
type Restorer interface {
	Restore(profile PrivateProfileData) error
}
