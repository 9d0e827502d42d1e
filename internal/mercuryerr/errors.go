// Package mercuryerr defines the error taxonomy shared by every Mercury
// component. Callers match kinds with errors.Is, never by inspecting
// message text.
package mercuryerr

import "errors"

// Kind buckets sentinel errors into the families described in the error
// handling design: crypto/validation, auth, storage, network/RPC, input.
type Kind int

const (
	KindUnknown Kind = iota
	KindCrypto
	KindAuth
	KindStorage
	KindNetwork
	KindInput
)

// Sentinel errors. Wrap with fmt.Errorf("context: %w", Err...) at each
// layer; callers unwrap with errors.Is.
var (
	// Crypto & validation
	ErrSignatureInvalid     = errors.New("mercury: signature invalid")
	ErrProfileIdMismatch    = errors.New("mercury: profile id does not match public key")
	ErrRelationTypeMismatch = errors.New("mercury: relation type mismatch")
	ErrInvalidRelationProof = errors.New("mercury: invalid relation proof")
	ErrHashMismatch         = errors.New("mercury: hash mismatch")

	// Authentication / authorization
	ErrHandshakeFailed = errors.New("mercury: handshake failed")
	ErrUnauthorized    = errors.New("mercury: unauthorized")
	ErrLoginFailed     = errors.New("mercury: login failed")

	// Storage
	ErrProfileNotFound    = errors.New("mercury: profile not found")
	ErrVersionConflict    = errors.New("mercury: version conflict")
	ErrAlreadyRegistered  = errors.New("mercury: already registered")
	ErrStorageUnavailable = errors.New("mercury: storage unavailable")

	// Network / RPC
	ErrConnectionFailed  = errors.New("mercury: connection failed")
	ErrTimeoutFailed     = errors.New("mercury: timeout")
	ErrPeerNotHostedHere = errors.New("mercury: peer not hosted here")
	ErrCallFailed        = errors.New("mercury: call failed")
	ErrCalleeUnavailable = errors.New("mercury: callee unavailable")

	// Input
	ErrMalformed       = errors.New("mercury: malformed input")
	ErrUnsupportedSuite = errors.New("mercury: unsupported cipher suite")
	ErrUnknownSchema   = errors.New("mercury: unknown schema")

	// KeyVault specific
	ErrAliasTaken     = errors.New("mercury: alias already in use")
	ErrNotDerivable   = errors.New("mercury: profile id not derivable from this seed within gap limit")
	ErrInvalidVault   = errors.New("mercury: invalid vault state")

	// Home protocol specific
	ErrHomeIdMismatch           = errors.New("mercury: home id mismatch")
	ErrAuthJournalUnspecified   = errors.New("mercury: profile auth journal apply semantics unspecified")
	ErrUnsupportedOp            = errors.New("mercury: operation not supported over this transport")
)

// KindOf classifies err into one of the families above, for metrics/logging.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrSignatureInvalid), errors.Is(err, ErrProfileIdMismatch),
		errors.Is(err, ErrRelationTypeMismatch), errors.Is(err, ErrInvalidRelationProof),
		errors.Is(err, ErrHashMismatch):
		return KindCrypto
	case errors.Is(err, ErrHandshakeFailed), errors.Is(err, ErrUnauthorized), errors.Is(err, ErrLoginFailed):
		return KindAuth
	case errors.Is(err, ErrProfileNotFound), errors.Is(err, ErrVersionConflict),
		errors.Is(err, ErrAlreadyRegistered), errors.Is(err, ErrStorageUnavailable):
		return KindStorage
	case errors.Is(err, ErrConnectionFailed), errors.Is(err, ErrTimeoutFailed),
		errors.Is(err, ErrPeerNotHostedHere), errors.Is(err, ErrCallFailed), errors.Is(err, ErrCalleeUnavailable):
		return KindNetwork
	case errors.Is(err, ErrMalformed), errors.Is(err, ErrUnsupportedSuite), errors.Is(err, ErrUnknownSchema),
		errors.Is(err, ErrUnsupportedOp):
		return KindInput
	default:
		return KindUnknown
	}
}
