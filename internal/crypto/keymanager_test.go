package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("decrypted key = %s, want %s", got, testKeyHex)
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("decrypt succeeded with wrong password")
	}
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	if _, err := EncryptKey(testKeyHex, ""); err == nil {
		t.Error("empty password accepted")
	}
	if _, err := EncryptKey("not-hex", "hunter2"); err == nil {
		t.Error("non-hex key accepted")
	}
	if _, err := EncryptKey("abcd", "hunter2"); err == nil {
		t.Error("short key accepted")
	}
}

func TestLoadKeyPrecedence(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	path := filepath.Join(t.TempDir(), "operator.key")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	// Raw key wins over the file.
	got, err := LoadKey(KeyConfig{
		RawPrivateKey:    "0x" + strings.Repeat("11", 32),
		EncryptedKeyPath: path,
		KeyPassword:      "hunter2",
	})
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if got != strings.Repeat("11", 32) {
		t.Errorf("raw key = %s, want repeated 11", got)
	}

	got, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("file key = %s, want %s", got, testKeyHex)
	}

	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Error("no source configured but LoadKey succeeded")
	}
}
