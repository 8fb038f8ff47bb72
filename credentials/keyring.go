// Package credentials looks up the passwords voxreel needs for its
// optional backing services (PostgreSQL snapshots, Redis cache).
package credentials

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/zalando/go-keyring"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

// Service is the service name used in the system keyring.
const Service = "voxreel"

// Keyring account names.
const (
	DBPassword    = "db-password"
	RedisPassword = "redis-password"
)

// ErrKeyringUnavailable indicates the system keyring is not available.
var ErrKeyringUnavailable = errors.New("system keyring unavailable")

// Store reads and writes named secrets.
type Store interface {
	Get(name string) (string, error)
	Set(name, value string) error
	Delete(name string) error
	Description() string
}

// KeyringStore keeps secrets in the system keyring (macOS Keychain,
// Windows Credential Manager, Linux Secret Service).
type KeyringStore struct {
	service string
	mu      sync.Mutex
}

var _ Store = (*KeyringStore)(nil)

// NewKeyringStore returns a store under Service.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: Service}
}

// Get returns the secret. A missing secret wraps ErrNotFound.
func (k *KeyringStore) Get(name string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	v, err := keyring.Get(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("keyring secret %s: %w", name, vrerrors.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return v, nil
}

// Set stores the secret, replacing any previous value.
func (k *KeyringStore) Set(name, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if value == "" {
		return vrerrors.Validationf("refusing to store an empty %s", name)
	}
	if err := keyring.Set(k.service, name, value); err != nil {
		return fmt.Errorf("%w: storing %s: %v", ErrKeyringUnavailable, name, err)
	}
	return nil
}

// Delete removes the secret. Deleting a missing secret is not an error.
func (k *KeyringStore) Delete(name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	err := keyring.Delete(k.service, name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: deleting %s: %v", ErrKeyringUnavailable, name, err)
	}
	return nil
}

// Description returns a human-readable description of the keyring.
func (k *KeyringStore) Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// Lookup resolves a password. A non-empty envVar wins; otherwise the
// store is consulted. A missing secret or unavailable keyring yields ""
// so services without auth keep working.
func Lookup(store Store, envVar, name string) (string, error) {
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	if store == nil {
		return "", nil
	}
	v, err := store.Get(name)
	switch {
	case err == nil:
		return v, nil
	case vrerrors.IsNotFound(err), errors.Is(err, ErrKeyringUnavailable):
		return "", nil
	}
	return "", err
}
