// Package keyvault implements the Mercury KeyVault: BIP-39 seed to hardened
// hierarchical key derivation to per-profile keypairs, wrapped by the
// claimmodel multi-cipher types.
package keyvault

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
)

// BIP43PurposeMercury is the hardened purpose index reserved for Mercury
// profile derivation (§3).
const BIP43PurposeMercury uint32 = 0x263F

// hardenedBit marks a BIP-32/SLIP-0010 child index as hardened; every
// derivation step in this vault is hardened (no normal/public derivation is
// ever used — Ed25519 doesn't support it and Mercury doesn't need it).
const hardenedBit = uint32(1) << 31

// chain-code seed salts are part of the contract (§4.1): SLIP-0010 fixes
// "ed25519 seed" for Ed25519; BIP-32 fixes "Bitcoin seed" for secp256k1.
const (
	saltEd25519   = "ed25519 seed"
	saltSecp256k1 = "Bitcoin seed"
)

// extendedKey is a 32-byte key plus its 32-byte chain code, the common
// shape shared by SLIP-0010 (Ed25519) and BIP-32 (secp256k1) hardened
// derivation.
type extendedKey struct {
	key       [32]byte
	chainCode [32]byte
}

func hmacSHA512(key, data []byte) [64]byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	var out [64]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func deriveMaster(suite claimmodel.Suite, seed []byte) (extendedKey, error) {
	var salt string
	switch suite {
	case claimmodel.SuiteEd25519:
		salt = saltEd25519
	case claimmodel.SuiteSecp256k1:
		salt = saltSecp256k1
	default:
		return extendedKey{}, mercuryerr.ErrUnsupportedSuite
	}
	i := hmacSHA512([]byte(salt), seed)
	var ek extendedKey
	copy(ek.key[:], i[:32])
	copy(ek.chainCode[:], i[32:])
	if suite == claimmodel.SuiteSecp256k1 {
		if err := validateSecp256k1Scalar(ek.key[:]); err != nil {
			return extendedKey{}, fmt.Errorf("keyvault: master key derivation produced invalid scalar: %w", err)
		}
	}
	return ek, nil
}

// deriveHardenedChild derives child index `index` (interpreted as hardened:
// the hardened bit is set by this function, callers always pass the plain
// 0,1,2,… index or purpose number).
func deriveHardenedChild(suite claimmodel.Suite, parent extendedKey, index uint32) (extendedKey, error) {
	hardenedIndex := index | hardenedBit
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], hardenedIndex)

	data := make([]byte, 0, 1+32+4)
	data = append(data, 0x00)
	data = append(data, parent.key[:]...)
	data = append(data, idxBuf[:]...)

	i := hmacSHA512(parent.chainCode[:], data)
	var il, childChainCode [32]byte
	copy(il[:], i[:32])
	copy(childChainCode[:], i[32:])

	var childKey [32]byte
	switch suite {
	case claimmodel.SuiteEd25519:
		// SLIP-0010: the child key is IL itself.
		childKey = il
	case claimmodel.SuiteSecp256k1:
		if err := validateSecp256k1Scalar(il[:]); err != nil {
			return extendedKey{}, fmt.Errorf("keyvault: child key material invalid: %w", err)
		}
		sum, err := addModN(il[:], parent.key[:])
		if err != nil {
			return extendedKey{}, err
		}
		copy(childKey[:], sum)
	default:
		return extendedKey{}, mercuryerr.ErrUnsupportedSuite
	}

	return extendedKey{key: childKey, chainCode: childChainCode}, nil
}

func validateSecp256k1Scalar(b []byte) error {
	var s secp256k1.ModNScalar
	overflow := s.SetByteSlice(b)
	if overflow {
		return fmt.Errorf("scalar exceeds curve order")
	}
	if s.IsZero() {
		return fmt.Errorf("scalar is zero")
	}
	return nil
}

func addModN(a, b []byte) ([]byte, error) {
	var sa, sb secp256k1.ModNScalar
	if sa.SetByteSlice(a) {
		return nil, fmt.Errorf("keyvault: scalar a overflow")
	}
	if sb.SetByteSlice(b) {
		return nil, fmt.Errorf("keyvault: scalar b overflow")
	}
	sa.Add(&sb)
	if sa.IsZero() {
		return nil, fmt.Errorf("keyvault: derived scalar sum is zero")
	}
	out := sa.Bytes()
	return out[:], nil
}

// derivePrivateKey converts an extendedKey's raw key bytes into the
// claimmodel.PrivateKey for the given suite.
func derivePrivateKey(suite claimmodel.Suite, ek extendedKey) (claimmodel.PrivateKey, error) {
	switch suite {
	case claimmodel.SuiteEd25519:
		full := ed25519.NewKeyFromSeed(ek.key[:])
		return claimmodel.NewPrivateKey(claimmodel.SuiteEd25519, full), nil
	case claimmodel.SuiteSecp256k1:
		return claimmodel.NewPrivateKey(claimmodel.SuiteSecp256k1, ek.key[:]), nil
	default:
		return claimmodel.PrivateKey{}, mercuryerr.ErrUnsupportedSuite
	}
}
