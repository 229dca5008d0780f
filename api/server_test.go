package api

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/julienschmidt/httprouter"

	"github.com/kuutamolabs/kld/internal/macaroons"
)

func newTestServer(t *testing.T) (*Server, *macaroons.Service) {
	t.Helper()
	svc, err := macaroons.NewService(filepath.Join(t.TempDir(), "macaroon_root_key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := &Server{
		log:       btclog.Disabled,
		macaroons: svc,
	}
	return s, svc
}

func macaroonHex(t *testing.T, svc *macaroons.Service, name string, scope macaroons.Scope) string {
	t.Helper()
	m, err := svc.Mint(name, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return hex.EncodeToString(raw)
}

func TestWithScopeRejectsMissingMacaroon(t *testing.T) {
	s, _ := newTestServer(t)
	called := false
	handler := s.readonly(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		called = true
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/getinfo", nil)
	rec := httptest.NewRecorder()
	handler(rec, req, nil)

	if called {
		t.Error("expected handler not to run without a macaroon header")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestWithScopeRejectsMalformedMacaroonHeader(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.readonly(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		t.Error("handler should not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/getinfo", nil)
	req.Header.Set(macaroonHeader, "not-hex!!")
	rec := httptest.NewRecorder()
	handler(rec, req, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestWithScopeRejectsReadonlyMacaroonOnAdminRoute(t *testing.T) {
	s, svc := newTestServer(t)
	hexMac := macaroonHex(t, svc, "readonly", macaroons.ScopeReadonly)

	handler := s.admin(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		t.Error("handler should not run")
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/channel/openChannel", nil)
	req.Header.Set(macaroonHeader, hexMac)
	rec := httptest.NewRecorder()
	handler(rec, req, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestWithScopeAcceptsAdminMacaroonOnReadonlyRoute(t *testing.T) {
	s, svc := newTestServer(t)
	hexMac := macaroonHex(t, svc, "admin", macaroons.ScopeAdmin)

	called := false
	handler := s.readonly(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/getinfo", nil)
	req.Header.Set(macaroonHeader, hexMac)
	rec := httptest.NewRecorder()
	handler(rec, req, nil)

	if !called {
		t.Error("expected handler to run with a valid admin macaroon")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestWithScopeAcceptsReadonlyMacaroonOnReadonlyRoute(t *testing.T) {
	s, svc := newTestServer(t)
	hexMac := macaroonHex(t, svc, "readonly", macaroons.ScopeReadonly)

	called := false
	handler := s.readonly(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		called = true
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/getinfo", nil)
	req.Header.Set(macaroonHeader, hexMac)
	rec := httptest.NewRecorder()
	handler(rec, req, nil)

	if !called {
		t.Error("expected handler to run with a valid readonly macaroon")
	}
}

func TestHandleRootReturnsOK(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.handleRoot(rec, req, nil)

	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusOK)
	}
}
