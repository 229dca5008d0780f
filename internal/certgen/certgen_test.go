package certgen

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureCertGeneratesAndReloads(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "kld.crt")
	keyPath := filepath.Join(dir, "kld.key")

	first, err := EnsureCert(certPath, keyPath, []string{"example.internal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fileExists(certPath) || !fileExists(keyPath) {
		t.Fatal("expected cert and key files to be written")
	}

	second, err := EnsureCert(certPath, keyPath, []string{"example.internal"})
	if err != nil {
		t.Fatalf("unexpected error on reload: %v", err)
	}
	if len(first.Certificate) == 0 || len(second.Certificate) == 0 {
		t.Fatal("expected both certificates to carry DER bytes")
	}
	if string(first.Certificate[0]) != string(second.Certificate[0]) {
		t.Fatal("expected EnsureCert to load the persisted cert rather than regenerate it")
	}
}

func TestEnsureCertRegeneratesOnMissingKey(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "kld.crt")
	keyPath := filepath.Join(dir, "kld.key")

	if _, err := EnsureCert(certPath, keyPath, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.Remove(keyPath); err != nil {
		t.Fatalf("unexpected error removing key: %v", err)
	}

	if _, err := EnsureCert(certPath, keyPath, nil); err != nil {
		t.Fatalf("expected EnsureCert to regenerate a missing key pair, got error: %v", err)
	}
}
