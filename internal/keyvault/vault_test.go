package keyvault

import (
	"encoding/hex"
	"testing"

	"github.com/mercury-network/mercury-go/internal/claimmodel"
	"github.com/mercury-network/mercury-go/internal/mercuryerr"
)

func TestSeedFromMnemonicVector(t *testing.T) {
	phrase := "plastic attend shadow hill conduct whip staff shoe achieve repair museum improve below inform youth alpha above limb paddle derive spoil offer hospital advance"
	want := "86f07ba8b38f3de2080912569a07b21ca4ae2275bc305a14ff928c7dc5407f32a1a3a26d4e2c4d9d5e434209c1db3578d94402cf313f3546344d0e4661c9f8d9"

	seed, err := NewSeedFromMnemonic(phrase)
	if err != nil {
		t.Fatalf("seed from mnemonic: %v", err)
	}
	got := hex.EncodeToString(seed.Bytes())
	if got != want {
		t.Fatalf("seed = %s, want %s", got, want)
	}
}

func testSeed(t *testing.T) Seed {
	t.Helper()
	b := make([]byte, SeedBytes)
	for i := range b {
		b[i] = byte(i)
	}
	s, err := NewSeedFromBytes(b)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestCreateKeyInvariant(t *testing.T) {
	v, err := CreateVault(testSeed(t), claimmodel.SuiteEd25519)
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}

	before := v.NextIdx()
	pk, err := v.CreateKey("alice")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if v.NextIdx() != before+1 {
		t.Fatalf("next_idx = %d, want %d", v.NextIdx(), before+1)
	}
	activeIdx, ok := v.ActiveIdx()
	if !ok || activeIdx != before {
		t.Fatalf("active_idx = %d,%v want %d,true", activeIdx, ok, before)
	}
	records := v.Records()
	if len(records) != v.NextIdx() {
		t.Fatalf("len(records) = %d, want %d", len(records), v.NextIdx())
	}
	found := false
	for _, r := range records {
		if r.Alias == "alice" {
			found = true
			if !r.Id.Equal(mustKeyID(t, pk)) {
				t.Fatal("record id does not match returned public key")
			}
		}
	}
	if !found {
		t.Fatal("alias not recorded")
	}
}

func mustKeyID(t *testing.T, pk claimmodel.PublicKey) claimmodel.ProfileId {
	t.Helper()
	id, err := pk.KeyID()
	if err != nil {
		t.Fatalf("key id: %v", err)
	}
	return id
}

func TestCreateKeyRejectsDuplicateAlias(t *testing.T) {
	v, _ := CreateVault(testSeed(t), claimmodel.SuiteEd25519)
	if _, err := v.CreateKey("bob"); err != nil {
		t.Fatalf("create key: %v", err)
	}
	if _, err := v.CreateKey("bob"); err != mercuryerr.ErrAliasTaken {
		t.Fatalf("err = %v, want ErrAliasTaken", err)
	}
}

func TestCreateKeyDeterministicPerIndex(t *testing.T) {
	seed := testSeed(t)
	v1, _ := CreateVault(seed, claimmodel.SuiteEd25519)
	v2, _ := CreateVault(seed, claimmodel.SuiteEd25519)

	pk1, err := v1.CreateKey("a")
	if err != nil {
		t.Fatal(err)
	}
	pk2, err := v2.CreateKey("a")
	if err != nil {
		t.Fatal(err)
	}
	if pk1.String() != pk2.String() {
		t.Fatal("same seed and index must derive the same key")
	}
}

func TestRestoreIdWithinGap(t *testing.T) {
	seed := testSeed(t)
	origin, _ := CreateVault(seed, claimmodel.SuiteEd25519)
	for i := 0; i < 5; i++ {
		if _, err := origin.CreateKey(string(rune('a' + i))); err != nil {
			t.Fatal(err)
		}
	}
	target := origin.Records()[4].Id

	fresh, _ := CreateVault(seed, claimmodel.SuiteEd25519)
	if err := fresh.RestoreId(target); err != nil {
		t.Fatalf("restore id: %v", err)
	}
	if fresh.NextIdx() != 5 {
		t.Fatalf("next_idx = %d, want 5 (gap entries materialized)", fresh.NextIdx())
	}
	if fresh.indexOf(target) < 0 {
		t.Fatal("restored id not found in vault")
	}

	// Restoring an id already present is a no-op.
	before := fresh.NextIdx()
	if err := fresh.RestoreId(target); err != nil {
		t.Fatalf("restore again: %v", err)
	}
	if fresh.NextIdx() != before {
		t.Fatal("restoring a known id must not change next_idx")
	}
}

func TestRestoreIdBeyondGapFails(t *testing.T) {
	seed := testSeed(t)
	origin, _ := CreateVault(seed, claimmodel.SuiteEd25519)
	var farId claimmodel.ProfileId
	for i := 0; i <= Gap; i++ {
		pk, err := origin.CreateKey(string(rune('a')) + string(rune('0'+i%10)) + string(rune('A'+i%26)))
		if err != nil {
			t.Fatal(err)
		}
		if i == Gap {
			farId = mustKeyID(t, pk)
		}
	}

	fresh, _ := CreateVault(seed, claimmodel.SuiteEd25519)
	if err := fresh.RestoreId(farId); err != mercuryerr.ErrNotDerivable {
		t.Fatalf("err = %v, want ErrNotDerivable", err)
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	v, _ := CreateVault(testSeed(t), claimmodel.SuiteSecp256k1)
	pk, err := v.CreateKey("signer")
	if err != nil {
		t.Fatal(err)
	}
	id := mustKeyID(t, pk)

	msg := []byte("hello mercury")
	signed, err := v.Sign(id, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !signed.Validate() {
		t.Fatal("signed message failed to validate")
	}
	if !signed.PublicKey.Verify(msg, signed.Signature) {
		t.Fatal("signature does not verify against public key")
	}
}

func TestSignUnknownIdFails(t *testing.T) {
	v, _ := CreateVault(testSeed(t), claimmodel.SuiteEd25519)
	other, _ := CreateVault(testSeed(t), claimmodel.SuiteSecp256k1)
	pk, err := other.CreateKey("x")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Sign(mustKeyID(t, pk), []byte("x")); err != mercuryerr.ErrProfileNotFound {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	v, _ := CreateVault(testSeed(t), claimmodel.SuiteEd25519)
	for _, alias := range []string{"alice", "bob", "carol"} {
		if _, err := v.CreateKey(alias); err != nil {
			t.Fatal(err)
		}
	}
	if err := v.SetActive(v.Records()[1].Id); err != nil {
		t.Fatal(err)
	}

	data, err := v.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadVault(data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.NextIdx() != v.NextIdx() {
		t.Fatalf("next_idx = %d, want %d", loaded.NextIdx(), v.NextIdx())
	}
	wantActive, _ := v.ActiveIdx()
	gotActive, ok := loaded.ActiveIdx()
	if !ok || gotActive != wantActive {
		t.Fatalf("active_idx = %d,%v want %d,true", gotActive, ok, wantActive)
	}
	for i, r := range v.Records() {
		lr := loaded.Records()[i]
		if lr.Alias != r.Alias || !lr.Id.Equal(r.Id) {
			t.Fatalf("record %d mismatch: got %+v want %+v", i, lr, r)
		}
	}
}

func TestSuggestAliasIsShortAndDeterministic(t *testing.T) {
	v, err := CreateVault(testSeed(t), claimmodel.SuiteEd25519)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.CreateKey("a"); err != nil {
		t.Fatal(err)
	}
	id := v.Records()[0].Id
	a := SuggestAlias(id)
	b := SuggestAlias(id)
	if a != b {
		t.Fatalf("SuggestAlias is not deterministic: %q vs %q", a, b)
	}
	if len(a) == 0 || len(a) > 8 {
		t.Fatalf("SuggestAlias length = %d, want 1..8", len(a))
	}
}
