package keys

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKeyStoreInitDeriveAndList(t *testing.T) {
	ks, err := OpenKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenKeyStore: %v", err)
	}

	rootDID, rootPath, err := ks.InitRoot("vey", testSeed(1), false)
	if err != nil {
		t.Fatalf("InitRoot: %v", err)
	}
	if _, err := os.Stat(rootPath); err != nil {
		t.Fatalf("root key file missing: %v", err)
	}
	if _, _, err := ks.InitRoot("vey", testSeed(2), false); err == nil {
		t.Fatalf("expected refusal to overwrite existing root key")
	}

	roleDID, rolePath, err := ks.DeriveRole("vey", "issuer", false)
	if err != nil {
		t.Fatalf("DeriveRole: %v", err)
	}
	if roleDID == rootDID {
		t.Fatalf("role key must differ from root key")
	}
	if filepath.Base(rolePath) != "issuer.key" {
		t.Fatalf("unexpected role path %q", rolePath)
	}

	signer, err := ks.Signer("", "vey", "issuer", "")
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	seed, err := DeriveRoleSeed(testSeed(1), "issuer")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	want, _ := Ed25519SignerFromSeed(seed)
	if signer.Public().String() != want.Public().String() {
		t.Fatalf("stored role key does not match derivation")
	}

	list, err := ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Name != "vey" || len(list[0].Roles) != 1 || list[0].Roles[0] != "issuer" {
		t.Fatalf("unexpected listing: %+v", list)
	}
}

func TestKeyStoreRejectsBadNames(t *testing.T) {
	ks, _ := OpenKeyStore(t.TempDir())
	if _, _, err := ks.InitRoot("../escape", testSeed(1), false); err == nil {
		t.Fatalf("expected path-like name to be rejected")
	}
	if _, err := ks.Seed("", "", "", ""); err == nil {
		t.Fatalf("expected missing signer to fail")
	}
}
