package auth

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dl-alexandre/memora/internal/types"
	"github.com/dl-alexandre/memora/internal/utils"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// TokenEnvVar overrides any stored credential
const TokenEnvVar = "MEMORA_TOKEN"

// Token sources reported by ResolveCredentials
const (
	SourceFlag    = "flag"
	SourceEnv     = "env"
	SourceStorage = "storage"
)

// Manager handles credential storage and resolution
type Manager struct {
	store          TokenStore
	profiles       profileIndex
	storageWarning string
	now            func() time.Time
}

// NewManager creates a new auth manager
func NewManager(configDir string) *Manager {
	return NewManagerWithOptions(configDir, ManagerOptions{})
}

// ManagerOptions configures the auth manager
type ManagerOptions struct {
	ForceEncryptedFile bool // Force use of encrypted file storage
	ForcePlainFile     bool // Force use of plain file storage (insecure, dev only)
}

// NewManagerWithOptions creates a new auth manager with specific options
func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	mgr := &Manager{
		profiles: profileIndex{path: filepath.Join(configDir, "profiles.json")},
		now:      time.Now,
	}

	switch {
	case opts.ForcePlainFile:
		mgr.store = newPlainFileStore(configDir)
		mgr.storageWarning = "WARNING: Using unencrypted file storage. Credentials are stored in plain text."
	case opts.ForceEncryptedFile || !checkKeyringAvailable():
		store, err := newEncryptedFileStore(configDir)
		if err != nil {
			mgr.store = newPlainFileStore(configDir)
			mgr.storageWarning = fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
			break
		}
		mgr.store = store
		if !opts.ForceEncryptedFile {
			mgr.storageWarning = "INFO: System keyring not available. Using encrypted file storage."
		}
	default:
		mgr.store = &keyringStore{service: utils.KeyringService}
	}

	return mgr
}

// checkKeyringAvailable tests if system keyring is available
func checkKeyringAvailable() bool {
	testKey := utils.KeyringService + "-probe"
	if err := keyring.Set(utils.KeyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(utils.KeyringService, testKey)
	return true
}

// LoadCredentials loads stored credentials for a profile
func (m *Manager) LoadCredentials(profile string) (*types.Credentials, error) {
	stored, err := m.store.Load(profile)
	if err != nil {
		return nil, err
	}
	return credentialsFromStored(stored)
}

func credentialsFromStored(stored *types.StoredCredentials) (*types.Credentials, error) {
	creds := &types.Credentials{
		AccessToken: stored.AccessToken,
		ServerURL:   stored.ServerURL,
	}
	var err error
	if stored.CreatedAt != "" {
		if creds.CreatedAt, err = time.Parse(time.RFC3339, stored.CreatedAt); err != nil {
			return nil, fmt.Errorf("invalid created date: %w", err)
		}
	}
	if stored.ExpiryDate != "" {
		if creds.ExpiryDate, err = time.Parse(time.RFC3339, stored.ExpiryDate); err != nil {
			return nil, fmt.Errorf("invalid expiry date: %w", err)
		}
	}
	return creds, nil
}

// SaveCredentials saves credentials for a profile and records it in the
// profile index
func (m *Manager) SaveCredentials(profile string, creds *types.Credentials) error {
	if strings.TrimSpace(creds.AccessToken) == "" {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "token must not be empty").Build())
	}

	createdAt := creds.CreatedAt
	if createdAt.IsZero() {
		createdAt = m.now()
	}
	stored := types.StoredCredentials{
		Profile:     profile,
		AccessToken: creds.AccessToken,
		ServerURL:   creds.ServerURL,
		CreatedAt:   createdAt.UTC().Format(time.RFC3339),
	}
	if !creds.ExpiryDate.IsZero() {
		stored.ExpiryDate = creds.ExpiryDate.UTC().Format(time.RFC3339)
	}

	if err := m.store.Save(stored); err != nil {
		return err
	}
	if err := m.profiles.add(stored); err != nil {
		return fmt.Errorf("token saved but profile index not updated: %w", err)
	}
	return nil
}

// DeleteCredentials removes credentials for a profile. Missing profiles are
// not an error.
func (m *Manager) DeleteCredentials(profile string) error {
	if err := m.store.Delete(profile); err != nil {
		return err
	}
	return m.profiles.remove(profile)
}

// ResolveCredentials picks the bearer credential for a run: an explicit
// token, then MEMORA_TOKEN, then the stored profile. The second return value
// names the source.
func (m *Manager) ResolveCredentials(flagToken, profile string) (*types.Credentials, string, error) {
	if token := strings.TrimSpace(flagToken); token != "" {
		return &types.Credentials{AccessToken: token}, SourceFlag, nil
	}
	if token := strings.TrimSpace(os.Getenv(TokenEnvVar)); token != "" {
		return &types.Credentials{AccessToken: token}, SourceEnv, nil
	}

	creds, err := m.LoadCredentials(profile)
	if err != nil {
		return nil, "", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			"No credentials found. Pass --token, set MEMORA_TOKEN, or run 'memora-agent auth login'.").
			WithContext("profile", profile).
			Build(), err)
	}
	if creds.Expired(m.now()) {
		return nil, "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthExpired,
			"Stored token expired. Run 'memora-agent auth login' with a fresh token.").
			WithContext("profile", profile).
			Build())
	}
	return creds, SourceStorage, nil
}

// TokenSource returns a static bearer token source for creds
func TokenSource(creds *types.Credentials) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: creds.AccessToken,
		TokenType:   "Bearer",
		Expiry:      creds.ExpiryDate,
	})
}

// BearerTransport wraps base so every request carries the credential
func BearerTransport(base http.RoundTripper, creds *types.Credentials) http.RoundTripper {
	return &oauth2.Transport{
		Source: TokenSource(creds),
		Base:   base,
	}
}

// GetStorageBackend returns the name of the storage backend being used
func (m *Manager) GetStorageBackend() string {
	return m.store.Name()
}

// GetStorageWarning returns any warning message about the storage backend
func (m *Manager) GetStorageWarning() string {
	return m.storageWarning
}
