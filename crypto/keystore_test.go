package crypto

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "wallet.json")
	if err := SaveToKeystoreWithStrength(path, key, "hunter2", KeystoreLight); err != nil {
		t.Fatalf("save: %v", err)
	}

	addr, err := KeystoreAddress(path)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	if addr.String() != key.PubKey().Address().String() {
		t.Fatalf("keystore address %s, want %s", addr, key.PubKey().Address())
	}

	loaded, err := LoadFromKeystore(path, "hunter2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address().String() != addr.String() {
		t.Fatalf("loaded key does not match")
	}

	if _, err := LoadFromKeystore(path, "wrong"); !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
}

func TestKeystoreErrors(t *testing.T) {
	if err := SaveToKeystore("", nil, "x"); err == nil {
		t.Fatalf("expected nil key error")
	}
	if _, err := LoadFromKeystore("", "x"); err == nil {
		t.Fatalf("expected empty path error")
	}
	if _, err := KeystoreAddress(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
