// Package credential resolves secrets referenced from the configuration.
// A value of the form "keyring:<key>" is looked up in the system keyring;
// anything else is used verbatim.
package credential

import (
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName = "llm-mail-triage"
	prefix      = "keyring:"
)

// Open returns the system keyring
func Open() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/llm-mail-triage/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("llm-mail-triage-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Store resolves and stores secrets
type Store struct {
	open func() (keyring.Keyring, error)
	ring keyring.Keyring
}

// NewStore creates a store backed by the system keyring. The keyring is
// only opened once a secret reference is actually resolved.
func NewStore() *Store {
	return &Store{open: Open}
}

// NewStoreWithKeyring creates a store backed by ring
func NewStoreWithKeyring(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

func (s *Store) keyring() (keyring.Keyring, error) {
	if s.ring != nil {
		return s.ring, nil
	}
	ring, err := s.open()
	if err != nil {
		return nil, err
	}
	s.ring = ring
	return ring, nil
}

// IsReference reports whether value points into the keyring
func IsReference(value string) bool {
	return strings.HasPrefix(value, prefix)
}

// Resolve returns the secret behind value
func (s *Store) Resolve(value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	key := strings.TrimPrefix(value, prefix)
	if key == "" {
		return "", fmt.Errorf("empty keyring reference")
	}
	return s.Get(key)
}

// Get retrieves a credential value by key
func (s *Store) Get(key string) (string, error) {
	ring, err := s.keyring()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key
func (s *Store) Set(key, value string) error {
	ring, err := s.keyring()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key
func (s *Store) Delete(key string) error {
	ring, err := s.keyring()
	if err != nil {
		return err
	}
	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
