package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dl-alexandre/memora/internal/types"
	"github.com/zalando/go-keyring"
)

// ErrNoCredentials means nothing is stored for the profile
var ErrNoCredentials = errors.New("no stored credentials")

// TokenStore persists one bearer credential per profile
type TokenStore interface {
	Save(stored types.StoredCredentials) error
	Load(profile string) (*types.StoredCredentials, error)
	Delete(profile string) error
	Name() string
}

type keyringStore struct {
	service string
}

func (s *keyringStore) Save(stored types.StoredCredentials) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return keyring.Set(s.service, stored.Profile, string(data))
}

func (s *keyringStore) Load(profile string) (*types.StoredCredentials, error) {
	data, err := keyring.Get(s.service, profile)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("profile %q: %w", profile, ErrNoCredentials)
	}
	if err != nil {
		return nil, err
	}
	return decodeStored(profile, []byte(data))
}

func (s *keyringStore) Delete(profile string) error {
	if err := keyring.Delete(s.service, profile); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

func (s *keyringStore) Name() string { return "system-keyring" }

// sealer transforms credential files at rest
type sealer interface {
	seal(plaintext []byte) ([]byte, error)
	open(sealed []byte) ([]byte, error)
}

type plainSealer struct{}

func (plainSealer) seal(b []byte) ([]byte, error) { return b, nil }
func (plainSealer) open(b []byte) ([]byte, error) { return b, nil }

// gcmSealer encrypts with AES-256-GCM; the nonce is prefixed to the output
type gcmSealer struct {
	aead cipher.AEAD
}

func newGCMSealer(key []byte) (*gcmSealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &gcmSealer{aead: aead}, nil
}

func (g *gcmSealer) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, g.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return g.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (g *gcmSealer) open(sealed []byte) ([]byte, error) {
	n := g.aead.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("credential file is truncated")
	}
	plaintext, err := g.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return plaintext, nil
}

// fileStore keeps one file per profile under <config dir>/credentials
type fileStore struct {
	dir    string
	ext    string
	name   string
	sealer sealer
}

func newPlainFileStore(configDir string) *fileStore {
	return &fileStore{
		dir:    filepath.Join(configDir, "credentials"),
		ext:    ".json",
		name:   "plain-file",
		sealer: plainSealer{},
	}
}

func newEncryptedFileStore(configDir string) (*fileStore, error) {
	key, err := loadOrCreateKey(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}
	s, err := newGCMSealer(key)
	if err != nil {
		return nil, err
	}
	return &fileStore{
		dir:    filepath.Join(configDir, "credentials"),
		ext:    ".enc",
		name:   "encrypted-file",
		sealer: s,
	}, nil
}

func (s *fileStore) path(profile string) string {
	return filepath.Join(s.dir, profile+s.ext)
}

func (s *fileStore) Save(stored types.StoredCredentials) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	sealed, err := s.sealer.seal(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(s.path(stored.Profile), sealed, 0600)
}

func (s *fileStore) Load(profile string) (*types.StoredCredentials, error) {
	sealed, err := os.ReadFile(s.path(profile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("profile %q: %w", profile, ErrNoCredentials)
	}
	if err != nil {
		return nil, err
	}
	data, err := s.sealer.open(sealed)
	if err != nil {
		return nil, err
	}
	return decodeStored(profile, data)
}

func (s *fileStore) Delete(profile string) error {
	if err := os.Remove(s.path(profile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *fileStore) Name() string { return s.name }

func decodeStored(profile string, data []byte) (*types.StoredCredentials, error) {
	var stored types.StoredCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	stored.Profile = profile
	return &stored, nil
}

// loadOrCreateKey returns the 32-byte file encryption key, creating it on first use
func loadOrCreateKey(configDir string) ([]byte, error) {
	keyFile := filepath.Join(configDir, ".keyfile")
	if data, err := os.ReadFile(keyFile); err == nil {
		if key, err := base64.StdEncoding.DecodeString(string(data)); err == nil && len(key) == 32 {
			return key, nil
		}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyFile, []byte(base64.StdEncoding.EncodeToString(key)), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// profileIndex is profiles.json: every saved profile with its token stripped,
// so listing never has to unlock the store
type profileIndex struct {
	path string
}

func (p profileIndex) read() (map[string]types.StoredCredentials, error) {
	entries := make(map[string]types.StoredCredentials)
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return entries, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(p.path), err)
	}
	return entries, nil
}

func (p profileIndex) write(entries map[string]types.StoredCredentials) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0600)
}

func (p profileIndex) add(stored types.StoredCredentials) error {
	entries, err := p.read()
	if err != nil {
		return err
	}
	stored.AccessToken = ""
	entries[stored.Profile] = stored
	return p.write(entries)
}

func (p profileIndex) remove(profile string) error {
	entries, err := p.read()
	if err != nil {
		return err
	}
	if _, ok := entries[profile]; !ok {
		return nil
	}
	delete(entries, profile)
	return p.write(entries)
}

// ListProfiles returns the saved profiles sorted by name. AccessToken is
// always empty.
func (m *Manager) ListProfiles() ([]types.StoredCredentials, error) {
	entries, err := m.profiles.read()
	if err != nil {
		return nil, err
	}
	list := make([]types.StoredCredentials, 0, len(entries))
	for name, entry := range entries {
		entry.Profile = name
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Profile < list[j].Profile })
	return list, nil
}
