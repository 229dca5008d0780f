package macaroons

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(filepath.Join(t.TempDir(), "macaroon_root_key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func TestAdminMacaroonSatisfiesBothScopes(t *testing.T) {
	svc := newTestService(t)

	m, err := svc.Mint("admin", ScopeAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Verify(raw, ScopeAdmin); err != nil {
		t.Errorf("admin macaroon should satisfy ScopeAdmin: %v", err)
	}
	if err := svc.Verify(raw, ScopeReadonly); err != nil {
		t.Errorf("admin macaroon should satisfy ScopeReadonly: %v", err)
	}
}

func TestReadonlyMacaroonRejectsAdminScope(t *testing.T) {
	svc := newTestService(t)

	m, err := svc.Mint("readonly", ScopeReadonly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Verify(raw, ScopeReadonly); err != nil {
		t.Errorf("readonly macaroon should satisfy ScopeReadonly: %v", err)
	}
	if err := svc.Verify(raw, ScopeAdmin); err == nil {
		t.Error("expected readonly macaroon to fail ScopeAdmin verification")
	}
}

func TestVerifyRejectsWrongRootKey(t *testing.T) {
	svcA := newTestService(t)
	svcB := newTestService(t)

	m, err := svcA.Mint("admin", ScopeAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svcB.Verify(raw, ScopeReadonly); err == nil {
		t.Error("expected verification against a different root key to fail")
	}
}

func TestVerifyRejectsMalformedMacaroon(t *testing.T) {
	svc := newTestService(t)

	if err := svc.Verify([]byte("not a macaroon"), ScopeReadonly); err == nil {
		t.Error("expected malformed input to fail verification")
	}
}

func TestRootKeyPersistsAcrossServices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "macaroon_root_key")

	svc1, err := NewService(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, err := svc1.Mint("admin", ScopeAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc2, err := NewService(path)
	if err != nil {
		t.Fatalf("unexpected error reloading service: %v", err)
	}
	if err := svc2.Verify(raw, ScopeAdmin); err != nil {
		t.Errorf("expected the reloaded service to share the persisted root key: %v", err)
	}
}

func TestMintAndSave(t *testing.T) {
	svc := newTestService(t)
	dir := t.TempDir()
	adminPath := filepath.Join(dir, "admin.macaroon")
	readonlyPath := filepath.Join(dir, "readonly.macaroon")

	if err := MintAndSave(svc, adminPath, readonlyPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, path := range []string{adminPath, readonlyPath} {
		if !fileExists(path) {
			t.Errorf("expected %s to be written", path)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
