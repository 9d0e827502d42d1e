package claimmodel

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSchemaRegistrySkipsMalformed(t *testing.T) {
	dir := t.TempDir()

	good := `{"author":"mercury","name":"profile","version":1,"content":{"type":"object"},"ordering":["name","email"]}`
	if err := os.WriteFile(filepath.Join(dir, expectedFilename("mercury", "profile", 1)), []byte(good), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "mercury_broken_1.schema.json"), []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("irrelevant"), 0o600); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadSchemaRegistry(dir, nil)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}

	sv, ok := reg.Lookup("mercury", "profile", 1)
	if !ok {
		t.Fatal("expected schema to load")
	}
	if len(sv.Ordering) != 2 {
		t.Fatalf("ordering = %v, want 2 entries", sv.Ordering)
	}

	if _, ok := reg.Lookup("mercury", "broken", 1); ok {
		t.Fatal("malformed schema file should have been skipped")
	}
}

func TestSchemaRegistryValidateRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	content := `{"author":"mercury","name":"profile","version":1,"content":{},"ordering":["name"]}`
	if err := os.WriteFile(filepath.Join(dir, expectedFilename("mercury", "profile", 1)), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadSchemaRegistry(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	sv, _ := reg.Lookup("mercury", "profile", 1)

	subjectPub, _ := genEd25519(t).PublicKey()
	subjectId, _ := subjectPub.KeyID()

	ok := Claim{Subject: subjectId, Schema: sv.Id, Content: []byte(`{"name":"alice"}`)}
	if err := reg.Validate(ok); err != nil {
		t.Fatalf("expected valid claim to pass: %v", err)
	}

	bad := Claim{Subject: subjectId, Schema: sv.Id, Content: []byte(`{"unexpected":"x"}`)}
	if err := reg.Validate(bad); err == nil {
		t.Fatal("expected validation failure for key outside ordering")
	}

	unknownSchema := Claim{Subject: subjectId, Schema: SchemaId{multihash: []byte{0x01}}, Content: []byte(`{}`)}
	if err := reg.Validate(unknownSchema); err == nil {
		t.Fatal("expected unknown schema error")
	}
}
