package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dl-alexandre/memora/internal/types"
)

func TestFileStores(t *testing.T) {
	tests := []struct {
		name     string
		open     func(dir string) (*fileStore, error)
		file     string
		readable bool
	}{
		{
			name:     "plain",
			open:     func(dir string) (*fileStore, error) { return newPlainFileStore(dir), nil },
			file:     "work.json",
			readable: true,
		},
		{
			name: "encrypted",
			open: newEncryptedFileStore,
			file: "work.enc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			store, err := tt.open(dir)
			if err != nil {
				t.Fatalf("open store: %v", err)
			}

			stored := types.StoredCredentials{Profile: "work", AccessToken: "tok-abc", ServerURL: "http://sync.local/v1"}
			if err := store.Save(stored); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			raw, err := os.ReadFile(filepath.Join(dir, "credentials", tt.file))
			if err != nil {
				t.Fatalf("read credential file: %v", err)
			}
			if got := bytes.Contains(raw, []byte("tok-abc")); got != tt.readable {
				t.Errorf("token visible on disk = %v, want %v", got, tt.readable)
			}

			loaded, err := store.Load("work")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if *loaded != stored {
				t.Errorf("Load() = %+v, want %+v", *loaded, stored)
			}

			if err := store.Delete("work"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := store.Load("work"); !errors.Is(err, ErrNoCredentials) {
				t.Errorf("Load() after delete error = %v, want ErrNoCredentials", err)
			}
			if err := store.Delete("work"); err != nil {
				t.Errorf("second Delete() error = %v", err)
			}
		})
	}
}

func TestGCMSealer(t *testing.T) {
	key, err := loadOrCreateKey(t.TempDir())
	if err != nil {
		t.Fatalf("loadOrCreateKey() error = %v", err)
	}
	s, err := newGCMSealer(key)
	if err != nil {
		t.Fatalf("newGCMSealer() error = %v", err)
	}

	for _, plaintext := range []string{"", "simple text", `{"access_token":"x"}`, "üöä@#$%^&*()"} {
		sealed, err := s.seal([]byte(plaintext))
		if err != nil {
			t.Fatalf("seal(%q) error = %v", plaintext, err)
		}
		opened, err := s.open(sealed)
		if err != nil {
			t.Fatalf("open(%q) error = %v", plaintext, err)
		}
		if string(opened) != plaintext {
			t.Errorf("round trip = %q, want %q", opened, plaintext)
		}
	}

	if _, err := s.open([]byte("short")); err == nil {
		t.Error("expected error for truncated input")
	}
	sealed, _ := s.seal([]byte("secret"))
	sealed[len(sealed)-1] ^= 0xff
	if _, err := s.open(sealed); err == nil || !strings.Contains(err.Error(), "decrypt") {
		t.Errorf("expected decrypt error for tampered input, got %v", err)
	}
}

func TestLoadOrCreateKey(t *testing.T) {
	dir := t.TempDir()

	key1, err := loadOrCreateKey(dir)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if len(key1) != 32 {
		t.Errorf("key length = %d, want 32", len(key1))
	}

	key2, err := loadOrCreateKey(dir)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Error("second call should return the stored key")
	}
}

func TestManagerListProfiles(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManagerWithOptions(dir, ManagerOptions{ForcePlainFile: true})

	profiles, err := mgr.ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("expected no profiles, got %d", len(profiles))
	}

	if err := mgr.SaveCredentials("zeta", &types.Credentials{AccessToken: "secret-zeta", ServerURL: "http://z/v1"}); err != nil {
		t.Fatal(err)
	}
	if err := mgr.SaveCredentials("alpha", &types.Credentials{AccessToken: "t2"}); err != nil {
		t.Fatal(err)
	}

	profiles, err = mgr.ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if len(profiles) != 2 || profiles[0].Profile != "alpha" || profiles[1].Profile != "zeta" {
		t.Fatalf("ListProfiles() = %+v, want alpha then zeta", profiles)
	}
	if profiles[1].ServerURL != "http://z/v1" {
		t.Errorf("ServerURL = %q", profiles[1].ServerURL)
	}
	for _, p := range profiles {
		if p.AccessToken != "" {
			t.Errorf("profile %s exposes its token", p.Profile)
		}
	}

	index, err := os.ReadFile(filepath.Join(dir, "profiles.json"))
	if err != nil {
		t.Fatalf("read profile index: %v", err)
	}
	if bytes.Contains(index, []byte("secret-zeta")) {
		t.Error("profile index contains a token")
	}

	if err := mgr.DeleteCredentials("zeta"); err != nil {
		t.Fatal(err)
	}
	profiles, _ = mgr.ListProfiles()
	if len(profiles) != 1 || profiles[0].Profile != "alpha" {
		t.Errorf("after delete ListProfiles() = %+v", profiles)
	}
}
