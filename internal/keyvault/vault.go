package keyvault

import (
	"fmt"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/mr-tron/base58"
	"github.com/vmihailenco/msgpack/v5"
)

// SuggestAlias renders a profile id's multihash bytes (hash code, length and
// digest) as base58 and truncates it
// to a short, typeable default alias for CreateKey callers (CLI prompts,
// pairing UIs) that don't have one of their own.
func SuggestAlias(id claimmodel.ProfileId) string {
	enc := base58.Encode(id.Bytes())
	const aliasLen = 8
	if len(enc) > aliasLen {
		enc = enc[:aliasLen]
	}
	return enc
}

// Gap is how far restore_id scans ahead of next_idx before giving up (§3).
const Gap = 20

// ProfileVaultRecord is the vault's per-profile bookkeeping entry (§3).
type ProfileVaultRecord struct {
	Id       claimmodel.ProfileId
	Alias    string
	Metadata string
}

// Vault derives per-profile keypairs from a single seed via hardened
// BIP-32/SLIP-0010-style derivation, and tracks which aliases have been
// created. A Vault instance is fixed to one cipher suite for its lifetime
// (the purpose-index derivation path does not branch on suite — see
// DESIGN.md for this Open Question resolution).
type Vault struct {
	seed       Seed
	suite      claimmodel.Suite
	purposeKey extendedKey

	records   []ProfileVaultRecord // len == nextIdx; index i derived at child i
	activeIdx int                  // -1 when unset
}

// CreateVault derives the purpose-level extended key from seed and returns
// an empty vault (next_idx=0, no active profile).
func CreateVault(seed Seed, suite claimmodel.Suite) (*Vault, error) {
	master, err := deriveMaster(suite, seed.Bytes())
	if err != nil {
		return nil, err
	}
	purposeKey, err := deriveHardenedChild(suite, master, BIP43PurposeMercury)
	if err != nil {
		return nil, fmt.Errorf("keyvault: derive purpose key: %w", err)
	}
	return &Vault{
		seed:       seed,
		suite:      suite,
		purposeKey: purposeKey,
		records:    nil,
		activeIdx:  -1,
	}, nil
}

// NextIdx is the next unused derivation index (also: the number of keys
// created so far).
func (v *Vault) NextIdx() int { return len(v.records) }

// ActiveIdx returns the active profile's index and whether one is set.
func (v *Vault) ActiveIdx() (int, bool) {
	if v.activeIdx < 0 {
		return 0, false
	}
	return v.activeIdx, true
}

// Records returns a copy of the vault's bookkeeping entries, index-ordered.
func (v *Vault) Records() []ProfileVaultRecord {
	out := make([]ProfileVaultRecord, len(v.records))
	copy(out, v.records)
	return out
}

func (v *Vault) aliasTaken(alias string) bool {
	for _, r := range v.records {
		if r.Alias == alias {
			return true
		}
	}
	return false
}

func (v *Vault) keyAtIndex(idx int) (claimmodel.PrivateKey, claimmodel.PublicKey, claimmodel.ProfileId, error) {
	child, err := deriveHardenedChild(v.suite, v.purposeKey, uint32(idx))
	if err != nil {
		return claimmodel.PrivateKey{}, claimmodel.PublicKey{}, claimmodel.ProfileId{}, err
	}
	sk, err := derivePrivateKey(v.suite, child)
	if err != nil {
		return claimmodel.PrivateKey{}, claimmodel.PublicKey{}, claimmodel.ProfileId{}, err
	}
	pk, err := sk.PublicKey()
	if err != nil {
		return claimmodel.PrivateKey{}, claimmodel.PublicKey{}, claimmodel.ProfileId{}, err
	}
	id, err := pk.KeyID()
	if err != nil {
		return claimmodel.PrivateKey{}, claimmodel.PublicKey{}, claimmodel.ProfileId{}, err
	}
	return sk, pk, id, nil
}

// CreateKey appends a new hardened child at next_idx, records alias, sets
// it active, and advances next_idx (§4.1 invariant).
func (v *Vault) CreateKey(alias string) (claimmodel.PublicKey, error) {
	if alias == "" {
		return claimmodel.PublicKey{}, fmt.Errorf("keyvault: %w: alias required", mercuryerr.ErrMalformed)
	}
	if v.aliasTaken(alias) {
		return claimmodel.PublicKey{}, mercuryerr.ErrAliasTaken
	}
	idx := len(v.records)
	_, pk, id, err := v.keyAtIndex(idx)
	if err != nil {
		return claimmodel.PublicKey{}, err
	}
	v.records = append(v.records, ProfileVaultRecord{Id: id, Alias: alias})
	v.activeIdx = idx
	return pk, nil
}

// indexOf returns the index of id among known records, or -1.
func (v *Vault) indexOf(id claimmodel.ProfileId) int {
	for i, r := range v.records {
		if r.Id.Equal(id) {
			return i
		}
	}
	return -1
}

// RestoreId makes id derivable from this vault: a no-op if already present,
// otherwise scans forward up to Gap indices past next_idx and, on a match,
// advances next_idx past it (filling the gap with placeholder aliases).
// Beyond Gap, the id is rejected as not derivable from this seed.
func (v *Vault) RestoreId(id claimmodel.ProfileId) error {
	if v.indexOf(id) >= 0 {
		return nil
	}
	start := len(v.records)
	for idx := start; idx < start+Gap; idx++ {
		_, _, candidate, err := v.keyAtIndex(idx)
		if err != nil {
			return err
		}
		if candidate.Equal(id) {
			for fill := start; fill < idx; fill++ {
				_, _, fillId, err := v.keyAtIndex(fill)
				if err != nil {
					return err
				}
				v.records = append(v.records, ProfileVaultRecord{Id: fillId, Alias: fmt.Sprintf("#%d", fill)})
			}
			v.records = append(v.records, ProfileVaultRecord{Id: candidate, Alias: fmt.Sprintf("#%d", idx)})
			return nil
		}
	}
	return mercuryerr.ErrNotDerivable
}

// SetActive marks id as the active profile. id must already be known to
// the vault (via CreateKey or RestoreId).
func (v *Vault) SetActive(id claimmodel.ProfileId) error {
	idx := v.indexOf(id)
	if idx < 0 {
		return mercuryerr.ErrProfileNotFound
	}
	v.activeIdx = idx
	return nil
}

// Sign signs msg under the keypair at id, returning the verifiable
// SignedMessage the spec's KeyVault.sign contract describes.
func (v *Vault) Sign(id claimmodel.ProfileId, msg []byte) (claimmodel.SignedMessage, error) {
	idx := v.indexOf(id)
	if idx < 0 {
		return claimmodel.SignedMessage{}, mercuryerr.ErrProfileNotFound
	}
	sk, pk, _, err := v.keyAtIndex(idx)
	if err != nil {
		return claimmodel.SignedMessage{}, err
	}
	sig, err := sk.Sign(msg)
	if err != nil {
		return claimmodel.SignedMessage{}, err
	}
	return claimmodel.SignedMessage{PublicKey: pk, Message: msg, Signature: sig}, nil
}

// PrivateKeyFor exposes the derived private key for id, for callers (e.g.
// ConnectClient, HomeServer registration) that need to sign proofs directly
// rather than through Sign's generic message wrapper.
func (v *Vault) PrivateKeyFor(id claimmodel.ProfileId) (claimmodel.PrivateKey, error) {
	idx := v.indexOf(id)
	if idx < 0 {
		return claimmodel.PrivateKey{}, mercuryerr.ErrProfileNotFound
	}
	sk, _, _, err := v.keyAtIndex(idx)
	return sk, err
}

// vaultWire is the self-describing persistence format (§6: "any
// length-prefixed, self-describing encoding will do" — the vault file's
// on-disk layout is explicitly out of scope; this is the reference codec).
type vaultWire struct {
	Seed      []byte               `msgpack:"seed"`
	Suite     byte                 `msgpack:"suite"`
	ActiveIdx int                  `msgpack:"active_idx"` // -1 when unset
	Aliases   []string             `msgpack:"aliases"`
	Metadata  []string             `msgpack:"metadata"`
}

// Save serializes the vault to a self-describing byte encoding. Restoring
// via LoadVault re-derives every key from the seed; only the bookkeeping
// (aliases, active index) needs to round-trip.
func (v *Vault) Save() ([]byte, error) {
	w := vaultWire{
		Seed:      v.seed.Bytes(),
		Suite:     byte(v.suite),
		ActiveIdx: -1,
		Aliases:   make([]string, len(v.records)),
		Metadata:  make([]string, len(v.records)),
	}
	if idx, ok := v.ActiveIdx(); ok {
		w.ActiveIdx = idx
	}
	for i, r := range v.records {
		w.Aliases[i] = r.Alias
		w.Metadata[i] = r.Metadata
	}
	return msgpack.Marshal(w)
}

// LoadVault rebuilds a vault from bytes produced by Save.
func LoadVault(data []byte) (*Vault, error) {
	var w vaultWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("keyvault: %w: %v", mercuryerr.ErrMalformed, err)
	}
	seed, err := NewSeedFromBytes(w.Seed)
	if err != nil {
		return nil, err
	}
	suite, err := suiteFromByteVault(w.Suite)
	if err != nil {
		return nil, err
	}
	v, err := CreateVault(seed, suite)
	if err != nil {
		return nil, err
	}
	if len(w.Aliases) != len(w.Metadata) {
		return nil, fmt.Errorf("keyvault: %w: aliases/metadata length mismatch", mercuryerr.ErrInvalidVault)
	}
	seen := make(map[string]struct{}, len(w.Aliases))
	for i, alias := range w.Aliases {
		if _, dup := seen[alias]; dup {
			return nil, fmt.Errorf("keyvault: %w: duplicate alias %q", mercuryerr.ErrInvalidVault, alias)
		}
		seen[alias] = struct{}{}
		_, _, id, err := v.keyAtIndex(i)
		if err != nil {
			return nil, err
		}
		v.records = append(v.records, ProfileVaultRecord{Id: id, Alias: alias, Metadata: w.Metadata[i]})
	}
	if w.ActiveIdx >= 0 {
		if w.ActiveIdx >= len(v.records) {
			return nil, fmt.Errorf("keyvault: %w: active_idx out of range", mercuryerr.ErrInvalidVault)
		}
		v.activeIdx = w.ActiveIdx
	}
	return v, nil
}

func suiteFromByteVault(b byte) (claimmodel.Suite, error) {
	s := claimmodel.Suite(b)
	if s != claimmodel.SuiteEd25519 && s != claimmodel.SuiteSecp256k1 {
		return 0, mercuryerr.ErrUnsupportedSuite
	}
	return s, nil
}
