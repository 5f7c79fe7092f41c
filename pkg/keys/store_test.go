package keys

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrGenerateCreatesFiles(t *testing.T) {
	dir := t.TempDir()

	kp, err := LoadOrGenerate(dir, "unit@test")
	if err != nil {
		t.Fatalf("LoadOrGenerate failed: %v", err)
	}
	if kp.Private == nil {
		t.Fatal("no private key")
	}
	if len(kp.PublicBlob) == 0 {
		t.Fatal("no public blob")
	}

	if _, err := os.Stat(filepath.Join(dir, "adbkey")); err != nil {
		t.Errorf("private key file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "adbkey.pub")); err != nil {
		t.Errorf("public key file missing: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "adbkey"))
	if err == nil && info.Mode().Perm() != 0600 {
		t.Errorf("private key mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestLoadOrGenerateIdempotent(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrGenerate(dir, "unit@test")
	if err != nil {
		t.Fatalf("first LoadOrGenerate failed: %v", err)
	}
	second, err := LoadOrGenerate(dir, "unit@test")
	if err != nil {
		t.Fatalf("second LoadOrGenerate failed: %v", err)
	}

	if first.Private.N.Cmp(second.Private.N) != 0 {
		t.Error("existing key was regenerated")
	}
	if !bytes.Equal(first.PublicBlob, second.PublicBlob) {
		t.Error("public blob changed across loads")
	}
}

func TestLoadOrGenerateRepairsPublicBlob(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrGenerate(dir, "unit@test")
	if err != nil {
		t.Fatalf("LoadOrGenerate failed: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "adbkey.pub")); err != nil {
		t.Fatalf("remove public key: %v", err)
	}

	second, err := LoadOrGenerate(dir, "unit@test")
	if err != nil {
		t.Fatalf("LoadOrGenerate after blob removal failed: %v", err)
	}
	if first.Private.N.Cmp(second.Private.N) != 0 {
		t.Error("private key regenerated when only the blob was missing")
	}
	if !bytes.Equal(first.PublicBlob, second.PublicBlob) {
		t.Error("recomputed blob differs from original")
	}
}

func TestLoadOrGenerateReplacesCorruptKey(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrGenerate(dir, "unit@test")
	if err != nil {
		t.Fatalf("LoadOrGenerate failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "adbkey"), []byte("not a key"), 0600); err != nil {
		t.Fatalf("corrupt private key: %v", err)
	}

	second, err := LoadOrGenerate(dir, "unit@test")
	if err != nil {
		t.Fatalf("LoadOrGenerate after corruption failed: %v", err)
	}
	if first.Private.N.Cmp(second.Private.N) == 0 {
		t.Error("corrupt key was not replaced")
	}
}

func TestPEMRoundTrip(t *testing.T) {
	key := testKey(t)

	decoded, err := DecodeKeyPEM(EncodeKeyPEM(key))
	if err != nil {
		t.Fatalf("DecodeKeyPEM failed: %v", err)
	}
	if decoded.N.Cmp(key.N) != 0 || decoded.D.Cmp(key.D) != 0 {
		t.Error("key does not round-trip through PEM")
	}
}

func TestDecodeKeyPEMRejectsGarbage(t *testing.T) {
	if _, err := DecodeKeyPEM([]byte("garbage")); err == nil {
		t.Error("expected error for non-PEM input")
	}
	if _, err := DecodeKeyPEM([]byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n")); err == nil {
		t.Error("expected error for wrong block type")
	}
}
