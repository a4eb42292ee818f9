package mocks_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dl-alexandre/memora/internal/api"
	testhelpers "github.com/dl-alexandre/memora/internal/testing"
	"github.com/dl-alexandre/memora/internal/testing/mocks"
	"github.com/dl-alexandre/memora/internal/types"
)

// TestRemoteService shows the fake driven through the real client
func TestRemoteService(t *testing.T) {
	remote := mocks.NewRemoteService()
	remote.Token = "secret"
	defer remote.Close()

	client, err := api.NewClient(api.ClientOptions{
		BaseURL:     remote.BaseURL(),
		Credentials: &types.Credentials{AccessToken: "secret"},
		Timeout:     5 * time.Second,
	})
	testhelpers.AssertNoError(t, err, "creating client")

	ctx := testhelpers.TestContext()
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	rec, err := client.CreateRecord(ctx, testhelpers.TestRequestContext(path, types.RequestTypeCreate), types.CreateRecordRequest{
		Name:      "a.txt",
		Directory: filepath.Dir(path),
		Kind:      types.KindFile,
		Status:    types.StatusOpen,
	})
	testhelpers.AssertNoError(t, err, "create")
	if rec.UploadTarget == "" {
		t.Fatal("expected an upload target for a FILE record")
	}

	err = client.Transfer(ctx, testhelpers.TestRequestContext(path, types.RequestTypeTransfer), rec.UploadTarget, path)
	testhelpers.AssertNoError(t, err, "transfer")

	_, err = client.UpdateRecord(ctx, testhelpers.TestRequestContext(path, types.RequestTypeFinalize), rec.ID, rec.CloseRequest())
	testhelpers.AssertNoError(t, err, "finalize")

	stored, ok := remote.Record(rec.ID)
	testhelpers.AssertEqual(t, ok, true, "record stored")
	testhelpers.AssertEqual(t, stored.Status, types.StatusClosed, "status after finalize")

	data, _ := remote.Content(rec.ID)
	testhelpers.AssertEqual(t, string(data), "hello", "uploaded content")
	testhelpers.AssertEqual(t, remote.ContentAuthSeen(), false, "bearer token on content channel")
	testhelpers.AssertEqual(t, len(remote.Calls()), 3, "call count")
}

func TestRemoteService_RejectsWrongToken(t *testing.T) {
	remote := mocks.NewRemoteService()
	remote.Token = "secret"
	defer remote.Close()

	client, err := api.NewClient(api.ClientOptions{
		BaseURL:     remote.BaseURL(),
		Credentials: &types.Credentials{AccessToken: "wrong"},
		Timeout:     5 * time.Second,
	})
	testhelpers.AssertNoError(t, err, "creating client")

	_, err = client.CreateRecord(context.Background(), testhelpers.TestRequestContext("/x", types.RequestTypeCreate), types.CreateRecordRequest{
		Name:      "x",
		Directory: "/",
		Kind:      types.KindDirectory,
		Status:    types.StatusOpen,
	})
	testhelpers.AssertError(t, err, "create with wrong token")
	testhelpers.AssertEqual(t, remote.CallCount("create"), 0, "creates recorded")
}
