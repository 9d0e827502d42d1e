package keyvault

import (
	"fmt"

	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/tyler-smith/go-bip39"
)

// mnemonicPassword is fixed by the spec ("morpheus"), not user-supplied: it
// is not a secret, it exists purely to namespace Mercury's BIP-39 seeds away
// from a wallet using the same mnemonic for another purpose.
const mnemonicPassword = "morpheus"

// SeedBytes is the 512-bit entropy a Vault is built from (§3).
const SeedBytes = 64

// Seed is 512 bits of entropy, the root of every key a Vault can derive.
type Seed struct {
	bytes [SeedBytes]byte
}

// NewSeedFromBytes wraps exactly 64 raw bytes as a Seed.
func NewSeedFromBytes(b []byte) (Seed, error) {
	if len(b) != SeedBytes {
		return Seed{}, fmt.Errorf("keyvault: %w: seed must be %d bytes, got %d", mercuryerr.ErrMalformed, SeedBytes, len(b))
	}
	var s Seed
	copy(s.bytes[:], b)
	return s, nil
}

// NewSeedFromMnemonic derives a Seed from a 24-word BIP-39 mnemonic, using
// the fixed Mercury password.
func NewSeedFromMnemonic(mnemonic string) (Seed, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return Seed{}, fmt.Errorf("keyvault: %w: invalid BIP-39 mnemonic", mercuryerr.ErrMalformed)
	}
	raw, err := bip39.NewSeedWithErrorChecking(mnemonic, mnemonicPassword)
	if err != nil {
		return Seed{}, fmt.Errorf("keyvault: %w: %v", mercuryerr.ErrMalformed, err)
	}
	return NewSeedFromBytes(raw)
}

// Bytes returns a copy of the raw seed bytes.
func (s Seed) Bytes() []byte {
	out := make([]byte, SeedBytes)
	copy(out, s.bytes[:])
	return out
}
