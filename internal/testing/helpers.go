package testing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dl-alexandre/memora/internal/types"
)

// TestContext creates a standard test context
func TestContext() context.Context {
	return context.Background()
}

// TestRequestContext creates a standard request context for testing
func TestRequestContext(path string, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		Path:        path,
		RequestType: requestType,
		TraceID:     "test-trace-id",
	}
}

// TestRecord creates an OPEN record as the metadata service would return it
func TestRecord(id, name, directory string, kind types.EntryKind) *types.SyncRecord {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return &types.SyncRecord{
		ID:         id,
		Name:       name,
		Directory:  directory,
		Kind:       kind,
		Status:     types.StatusOpen,
		CreatedAt:  created,
		ModifiedAt: created,
	}
}

// WriteTree creates files under root. Keys are slash-separated relative paths;
// a key ending in "/" creates an empty directory.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if rel[len(rel)-1] == '/' {
			if err := os.MkdirAll(path, 0755); err != nil {
				t.Fatalf("mkdir %s: %v", rel, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

// AssertNoError is a helper to fail the test if error is not nil
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

// AssertError is a helper to fail the test if error is nil
func AssertError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: expected error but got nil", msgAndArgs[0])
		} else {
			t.Fatal("expected error but got nil")
		}
	}
}

// AssertEqual is a helper to fail the test if two values are not equal
func AssertEqual(t *testing.T, got, want interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if got != want {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: got %v, want %v", msgAndArgs[0], got, want)
		} else {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
