package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kartacom/tonpay/wallet"
)

// ErrNoSession is returned by SessionStore.Load when nothing was persisted.
var ErrNoSession = errors.New("no stored wallet session")

// Record is the persisted form of a bridge session.
type Record struct {
	Session json.RawMessage `json:"session"`
	Wallet  *wallet.Wallet  `json:"wallet"`
}

// SessionStore persists the bridge session and the connected wallet to a JSON file.
type SessionStore struct {
	path string
}

// NewSessionStore creates a store backed by the file at path.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Path returns the backing file path.
func (s *SessionStore) Path() string {
	return s.path
}

// Load reads the stored record.
func (s *SessionStore) Load() (*Record, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}

		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	if len(r.Session) == 0 || r.Wallet == nil {
		return nil, ErrNoSession
	}

	return &r, nil
}

// Save writes r, creating parent directories as needed.
func (s *SessionStore) Save(r Record) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return os.Rename(tmp, s.path)
}

// Clear removes the stored record. A missing file is not an error.
func (s *SessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	return nil
}
