// Package macaroons implements kld's capability-token authentication
// (spec section 4.A): a 32-byte root secret mints admin and readonly
// macaroons, each carrying a first-party "role" caveat. Verification
// walks the signature chain from the configured root key and checks the
// caveat against the scope required by the calling API route.
package macaroons

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	macaroon "gopkg.in/macaroon.v2"
)

// Scope is a capability level. Readonly routes accept either scope;
// admin routes require ScopeAdmin.
type Scope string

const (
	ScopeAdmin    Scope = "admin"
	ScopeReadonly Scope = "readonly"
)

const roleCaveatPrefix = "role = "

const rootKeyLen = 32

// Service mints and verifies macaroons for a single root key.
type Service struct {
	rootKey [rootKeyLen]byte
}

// NewService loads the root key from rootKeyPath, generating and
// persisting a fresh one on first start (section 6: created on first
// start if absent).
func NewService(rootKeyPath string) (*Service, error) {
	key, err := loadOrCreateRootKey(rootKeyPath)
	if err != nil {
		return nil, err
	}
	return &Service{rootKey: key}, nil
}

func loadOrCreateRootKey(path string) ([rootKeyLen]byte, error) {
	var key [rootKeyLen]byte

	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != rootKeyLen {
			return key, fmt.Errorf("macaroon root key at %s has unexpected length %d", path, len(raw))
		}
		copy(key[:], raw)
		return key, nil
	}
	if !os.IsNotExist(err) {
		return key, err
	}

	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("unable to generate macaroon root key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return key, err
	}
	if err := os.WriteFile(path, key[:], 0600); err != nil {
		return key, fmt.Errorf("unable to persist macaroon root key: %w", err)
	}
	return key, nil
}

// Mint creates a new macaroon for the given scope, identified by name
// (e.g. "admin", "readonly"), with a first-party caveat naming the role.
func (s *Service) Mint(name string, scope Scope) (*macaroon.Macaroon, error) {
	m, err := macaroon.New(s.rootKey[:], []byte(name), "kld", macaroon.LatestVersion)
	if err != nil {
		return nil, fmt.Errorf("unable to bake macaroon: %w", err)
	}
	if err := m.AddFirstPartyCaveat([]byte(roleCaveatPrefix + string(scope))); err != nil {
		return nil, fmt.Errorf("unable to add role caveat: %w", err)
	}
	return m, nil
}

// MintAndSave mints both admin.macaroon and readonly.macaroon and writes
// their serialized bytes to the given paths.
func MintAndSave(svc *Service, adminPath, readonlyPath string) error {
	for _, pair := range []struct {
		path  string
		name  string
		scope Scope
	}{
		{adminPath, "admin", ScopeAdmin},
		{readonlyPath, "readonly", ScopeReadonly},
	} {
		m, err := svc.Mint(pair.name, pair.scope)
		if err != nil {
			return err
		}
		raw, err := m.MarshalBinary()
		if err != nil {
			return fmt.Errorf("unable to serialize %s macaroon: %w", pair.name, err)
		}
		if err := os.MkdirAll(filepath.Dir(pair.path), 0700); err != nil {
			return err
		}
		if err := os.WriteFile(pair.path, raw, 0600); err != nil {
			return fmt.Errorf("unable to persist %s macaroon: %w", pair.name, err)
		}
	}
	return nil
}

// Verify checks that raw is a valid macaroon signed by the service's root
// key, that its signature chains correctly, and that its role caveat
// satisfies required. Both admin and readonly tokens satisfy
// ScopeReadonly; only an admin token satisfies ScopeAdmin.
func (s *Service) Verify(raw []byte, required Scope) error {
	m := &macaroon.Macaroon{}
	if err := m.UnmarshalBinary(raw); err != nil {
		return fmt.Errorf("malformed macaroon: %w", err)
	}

	if err := m.Verify(s.rootKey[:], func(caveat string) error {
		return verifyRoleCaveat(caveat, required)
	}, nil); err != nil {
		return fmt.Errorf("macaroon verification failed: %w", err)
	}
	return nil
}

func verifyRoleCaveat(caveat string, required Scope) error {
	if !strings.HasPrefix(caveat, roleCaveatPrefix) {
		return fmt.Errorf("unrecognised caveat %q", caveat)
	}
	role := Scope(strings.TrimPrefix(caveat, roleCaveatPrefix))

	switch required {
	case ScopeReadonly:
		if role == ScopeAdmin || role == ScopeReadonly {
			return nil
		}
	case ScopeAdmin:
		if role == ScopeAdmin {
			return nil
		}
	}
	return fmt.Errorf("role %q does not satisfy required scope %q", role, required)
}
