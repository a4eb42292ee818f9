package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dl-alexandre/memora/internal/types"
	"github.com/dl-alexandre/memora/internal/utils"
)

func newPlainManager(t *testing.T) *Manager {
	t.Helper()
	return NewManagerWithOptions(t.TempDir(), ManagerOptions{ForcePlainFile: true})
}

func TestManager_SaveLoadCredentials(t *testing.T) {
	mgr := newPlainManager(t)
	expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	err := mgr.SaveCredentials("work", &types.Credentials{
		AccessToken: "tok-123",
		ServerURL:   "http://sync.local/v1",
		ExpiryDate:  expiry,
	})
	if err != nil {
		t.Fatalf("SaveCredentials() error = %v", err)
	}

	creds, err := mgr.LoadCredentials("work")
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if creds.AccessToken != "tok-123" {
		t.Errorf("AccessToken = %q", creds.AccessToken)
	}
	if creds.ServerURL != "http://sync.local/v1" {
		t.Errorf("ServerURL = %q", creds.ServerURL)
	}
	if !creds.ExpiryDate.Equal(expiry) {
		t.Errorf("ExpiryDate = %v, want %v", creds.ExpiryDate, expiry)
	}
	if creds.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped on save")
	}
}

func TestManager_SaveRejectsEmptyToken(t *testing.T) {
	mgr := newPlainManager(t)
	if err := mgr.SaveCredentials("default", &types.Credentials{AccessToken: "  "}); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestManager_ResolveCredentials(t *testing.T) {
	mgr := newPlainManager(t)
	if err := mgr.SaveCredentials("default", &types.Credentials{AccessToken: "stored"}); err != nil {
		t.Fatal(err)
	}

	t.Run("flag wins", func(t *testing.T) {
		t.Setenv(TokenEnvVar, "from-env")
		creds, source, err := mgr.ResolveCredentials("from-flag", "default")
		if err != nil {
			t.Fatalf("ResolveCredentials() error = %v", err)
		}
		if creds.AccessToken != "from-flag" || source != SourceFlag {
			t.Errorf("got %q from %s", creds.AccessToken, source)
		}
	})

	t.Run("env before storage", func(t *testing.T) {
		t.Setenv(TokenEnvVar, "from-env")
		creds, source, err := mgr.ResolveCredentials("", "default")
		if err != nil {
			t.Fatalf("ResolveCredentials() error = %v", err)
		}
		if creds.AccessToken != "from-env" || source != SourceEnv {
			t.Errorf("got %q from %s", creds.AccessToken, source)
		}
	})

	t.Run("storage", func(t *testing.T) {
		t.Setenv(TokenEnvVar, "")
		creds, source, err := mgr.ResolveCredentials("", "default")
		if err != nil {
			t.Fatalf("ResolveCredentials() error = %v", err)
		}
		if creds.AccessToken != "stored" || source != SourceStorage {
			t.Errorf("got %q from %s", creds.AccessToken, source)
		}
	})

	t.Run("missing profile", func(t *testing.T) {
		t.Setenv(TokenEnvVar, "")
		_, _, err := mgr.ResolveCredentials("", "other")
		var appErr *utils.AppError
		if !errors.As(err, &appErr) || appErr.CLIError.Code != utils.ErrCodeAuthRequired {
			t.Errorf("expected AUTH_REQUIRED, got %v", err)
		}
	})
}

func TestManager_ResolveExpired(t *testing.T) {
	t.Setenv(TokenEnvVar, "")
	mgr := newPlainManager(t)
	if err := mgr.SaveCredentials("default", &types.Credentials{
		AccessToken: "old",
		ExpiryDate:  time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	_, _, err := mgr.ResolveCredentials("", "default")
	var appErr *utils.AppError
	if !errors.As(err, &appErr) || appErr.CLIError.Code != utils.ErrCodeAuthExpired {
		t.Errorf("expected AUTH_EXPIRED, got %v", err)
	}
}

func TestManager_DeleteCredentials(t *testing.T) {
	mgr := newPlainManager(t)
	if err := mgr.SaveCredentials("default", &types.Credentials{AccessToken: "tok"}); err != nil {
		t.Fatal(err)
	}
	if err := mgr.DeleteCredentials("default"); err != nil {
		t.Fatalf("DeleteCredentials() error = %v", err)
	}
	if _, err := mgr.LoadCredentials("default"); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("LoadCredentials() after delete error = %v, want ErrNoCredentials", err)
	}
	// Deleting again is not an error
	if err := mgr.DeleteCredentials("default"); err != nil {
		t.Errorf("second DeleteCredentials() error = %v", err)
	}
}

func TestBearerTransport(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Transport: BearerTransport(http.DefaultTransport, &types.Credentials{AccessToken: "secret"})}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret")
	}
}
