// Package credstore persists the key-value credential record: tokens,
// usernames, and guest flags per provider. The record lives in a single JSON
// file; writes apply a partial update and always hand back the complete
// record as it stands after the write.
package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Record is the complete credential record. Zero values mean signed out.
type Record struct {
	TwitchAccessToken string `json:"twitch_access_token"`
	TwitchUsername    string `json:"twitch_username"`
	TwitchIsGuest     bool   `json:"twitch_is_guest"`
	KickAccessToken   string `json:"kick_access_token"`
	KickRefreshToken  string `json:"kick_refresh_token"`
	KickUsername      string `json:"kick_username"`
	KickIsGuest       bool   `json:"kick_is_guest"`
}

// Store is a file-backed credential store. All access goes through a mutex;
// the record is small and contention is nil, this just keeps read-modify-write
// cycles whole.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store backed by the JSON file at path. The file is
// created on first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file's location.
func (s *Store) Path() string { return s.path }

// Load reads the complete current record. A missing file is an empty record,
// not an error.
func (s *Store) Load() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns a single field of the record by its JSON key.
func (s *Store) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.read()
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(raw, key).String(), nil
}

// Set applies a partial update keyed by JSON field names and returns the
// complete record after the write. Unknown keys are rejected so a typo cannot
// grow the record silently.
func (s *Store) Set(updates map[string]any) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.read()
	if err != nil {
		return nil, err
	}

	for key, value := range updates {
		if !knownKeys[key] {
			return nil, fmt.Errorf("credstore: unknown record key %q", key)
		}
		if raw, err = sjson.SetBytes(raw, key, value); err != nil {
			return nil, fmt.Errorf("credstore: apply %q failed: %w", key, err)
		}
	}

	if err = os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, fmt.Errorf("credstore: create dir failed: %w", err)
	}
	if err = os.WriteFile(s.path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("credstore: write failed: %w", err)
	}

	record := &Record{}
	if err = json.Unmarshal(raw, record); err != nil {
		return nil, fmt.Errorf("credstore: reread failed: %w", err)
	}
	return record, nil
}

// knownKeys guards Set against keys the record does not define.
var knownKeys = map[string]bool{
	"twitch_access_token": true,
	"twitch_username":     true,
	"twitch_is_guest":     true,
	"kick_access_token":   true,
	"kick_refresh_token":  true,
	"kick_username":       true,
	"kick_is_guest":       true,
}

// read returns the raw record bytes, or an empty object when the file does
// not exist yet.
func (s *Store) read() ([]byte, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []byte("{}"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: read failed: %w", err)
	}
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return []byte("{}"), nil
	}
	return raw, nil
}

func (s *Store) load() (*Record, error) {
	raw, err := s.read()
	if err != nil {
		return nil, err
	}
	record := &Record{}
	if err = json.Unmarshal(raw, record); err != nil {
		return nil, fmt.Errorf("credstore: parse failed: %w", err)
	}
	return record, nil
}
