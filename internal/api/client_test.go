package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dl-alexandre/memora/internal/types"
	"github.com/dl-alexandre/memora/internal/utils"
)

func newTestClient(t *testing.T, serverURL string, maxRetries int) *Client {
	t.Helper()
	client, err := NewClient(ClientOptions{
		BaseURL:     serverURL + "/v1",
		Credentials: &types.Credentials{AccessToken: "test-token"},
		Timeout:     5 * time.Second,
		MaxRetries:  maxRetries,
		RetryDelay:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func reqCtx(rt types.RequestType) *types.RequestContext {
	return NewRequestContext(context.Background(), "/data/a.txt", rt)
}

const recordJSON = `{"id":"rec-1","name":"a.txt","directory":"/data","kind":"FILE","status":"OPEN",
"created_at":"2024-05-01T10:00:00Z","modified_at":"2024-05-01T10:00:00Z","upload_target":"http://upload/x?sig=1"}`

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(ClientOptions{BaseURL: "not a url", Credentials: &types.Credentials{AccessToken: "x"}}); err == nil {
		t.Error("expected error for invalid base URL")
	}
	if _, err := NewClient(ClientOptions{BaseURL: "http://localhost:8000/v1"}); err == nil {
		t.Error("expected error for missing credentials")
	}
}

func TestCreateRecord(t *testing.T) {
	var gotAuth, gotPath, gotMethod string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, recordJSON)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL, 0)
	record, err := client.CreateRecord(context.Background(), reqCtx(types.RequestTypeCreate), types.CreateRecordRequest{
		Name:      "a.txt",
		Directory: "/data",
		Kind:      types.KindFile,
		Status:    types.StatusOpen,
	})
	if err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/v1/files" {
		t.Errorf("request = %s %s, want POST /v1/files", gotMethod, gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["kind"] != "FILE" || gotBody["status"] != "OPEN" || gotBody["name"] != "a.txt" || gotBody["directory"] != "/data" {
		t.Errorf("unexpected body: %v", gotBody)
	}
	if record.ID != "rec-1" || record.UploadTarget != "http://upload/x?sig=1" {
		t.Errorf("unexpected record: %+v", record)
	}
}

func TestUpdateRecord(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, recordJSON)
	}))
	t.Cleanup(server.Close)

	created := &types.SyncRecord{
		ID: "rec-1", Name: "a.txt", Directory: "/data",
		Kind: types.KindFile, Status: types.StatusOpen,
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	client := newTestClient(t, server.URL, 0)
	if _, err := client.UpdateRecord(context.Background(), reqCtx(types.RequestTypeFinalize), created.ID, created.CloseRequest()); err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}

	if gotPath != "/v1/files/rec-1" {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody["status"] != "CLOSED" {
		t.Errorf("status = %v, want CLOSED", gotBody["status"])
	}
	if gotBody["created_at"] != "2024-05-01T10:00:00Z" {
		t.Errorf("created_at = %v", gotBody["created_at"])
	}
}

func TestCreateRecord_UnknownKindIsDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"x","name":"a","directory":"/","kind":"LINK","status":"OPEN"}`)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL, 2)
	_, err := client.CreateRecord(context.Background(), reqCtx(types.RequestTypeCreate), types.CreateRecordRequest{
		Name: "a", Directory: "/", Kind: types.KindFile, Status: types.StatusOpen,
	})

	var appErr *utils.AppError
	if !stderrors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.CLIError.Code != utils.ErrCodeInvalidResponse {
		t.Errorf("Code = %s, want INVALID_RESPONSE", appErr.CLIError.Code)
	}
}

func TestExecuteWithRetry_RetriesTransientStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, recordJSON)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL, 2)
	_, err := client.CreateRecord(context.Background(), reqCtx(types.RequestTypeCreate), types.CreateRecordRequest{
		Name: "a.txt", Directory: "/data", Kind: types.KindFile, Status: types.StatusOpen,
	})
	if err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestExecuteWithRetry_NoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad name", http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL, 2)
	_, err := client.CreateRecord(context.Background(), reqCtx(types.RequestTypeCreate), types.CreateRecordRequest{
		Name: "a.txt", Directory: "/data", Kind: types.KindFile, Status: types.StatusOpen,
	})

	var appErr *utils.AppError
	if !stderrors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.CLIError.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want 400", appErr.CLIError.HTTPStatus)
	}
	var statusErr *StatusError
	if !stderrors.As(err, &statusErr) || statusErr.Body != "bad name" {
		t.Errorf("StatusError not reachable or wrong body: %v", statusErr)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestExecuteWithRetry_ExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL, 1)
	_, err := client.CreateRecord(context.Background(), reqCtx(types.RequestTypeCreate), types.CreateRecordRequest{
		Name: "a.txt", Directory: "/data", Kind: types.KindFile, Status: types.StatusOpen,
	})

	var appErr *utils.AppError
	if !stderrors.As(err, &appErr) || appErr.CLIError.Code != utils.ErrCodeRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestCreateRecord_NoRetryOnTransportError(t *testing.T) {
	var creates, updates int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			atomic.AddInt32(&creates, 1)
		} else {
			atomic.AddInt32(&updates, 1)
		}
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer cannot hijack")
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL, 2)
	_, err := client.CreateRecord(context.Background(), reqCtx(types.RequestTypeCreate), types.CreateRecordRequest{
		Name: "a.txt", Directory: "/data", Kind: types.KindFile, Status: types.StatusOpen,
	})
	if err == nil {
		t.Fatal("expected error from dropped connection")
	}
	if got := atomic.LoadInt32(&creates); got != 1 {
		t.Errorf("creates = %d, want 1", got)
	}

	_, err = client.UpdateRecord(context.Background(), reqCtx(types.RequestTypeFinalize), "rec-1", types.UpdateRecordRequest{
		Name: "a.txt", Directory: "/data", Kind: types.KindFile, Status: types.StatusClosed,
	})
	if err == nil {
		t.Fatal("expected error from dropped connection")
	}
	// net/http may replay an idempotent PUT once on its own before we see the error
	if got := atomic.LoadInt32(&updates); got < 3 {
		t.Errorf("updates = %d, want at least 3", got)
	}
}

func TestTransfer(t *testing.T) {
	var gotAuth, gotBody, gotQuery string
	var gotLength int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		gotLength = r.ContentLength
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(t, server.URL, 0)
	if err := client.Transfer(context.Background(), reqCtx(types.RequestTypeTransfer), server.URL+"/bucket/a?sig=abc", path); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	if gotBody != "hello" || gotLength != 5 {
		t.Errorf("body = %q (len %d), want hello (5)", gotBody, gotLength)
	}
	if gotAuth != "" {
		t.Errorf("content channel must not receive the bearer token, got %q", gotAuth)
	}
	if gotQuery != "sig=abc" {
		t.Errorf("query = %q, presigned parameters must be preserved", gotQuery)
	}
}

func TestTransfer_EmptyFile(t *testing.T) {
	var gotLength int64 = -1
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLength = r.ContentLength
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(t, server.URL, 0)
	if err := client.Transfer(context.Background(), reqCtx(types.RequestTypeTransfer), server.URL+"/bucket/empty", path); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if gotLength != 0 {
		t.Errorf("ContentLength = %d, want 0", gotLength)
	}
}

func TestTransfer_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	client := newTestClient(t, server.URL, 0)

	err := client.Transfer(context.Background(), reqCtx(types.RequestTypeTransfer), server.URL+"/bucket/a", path)
	var appErr *utils.AppError
	if !stderrors.As(err, &appErr) || appErr.CLIError.HTTPStatus != http.StatusForbidden {
		t.Errorf("expected HTTP 403 AppError, got %v", err)
	}

	err = client.Transfer(context.Background(), reqCtx(types.RequestTypeTransfer), server.URL+"/bucket/a", filepath.Join(t.TempDir(), "missing"))
	if !stderrors.As(err, &appErr) || appErr.CLIError.Code != utils.ErrCodeInvalidPath {
		t.Errorf("expected INVALID_PATH for unreadable file, got %v", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		want := base << attempt
		got := calculateBackoff(base, attempt, stderrors.New("transport"))
		if got < want*3/4 || got > want*5/4 {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", attempt, got, want*3/4, want*5/4)
		}
	}

	got := calculateBackoff(base, 0, &StatusError{StatusCode: 429, RetryAfter: "2"})
	if got != 2*time.Second {
		t.Errorf("Retry-After delay = %v, want 2s", got)
	}

	got = calculateBackoff(base, 20, stderrors.New("transport"))
	if limit := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond * 5 / 4; got > limit {
		t.Errorf("delay %v exceeds cap", got)
	}
}

func TestIsRetryable(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name       string
		err        error
		idempotent bool
		want       bool
	}{
		{"429", &StatusError{StatusCode: 429}, true, true},
		{"429 create", &StatusError{StatusCode: 429}, false, true},
		{"502", &StatusError{StatusCode: 502}, true, true},
		{"500", &StatusError{StatusCode: 500}, true, false},
		{"404", &StatusError{StatusCode: 404}, true, false},
		{"decode", &decodeError{err: stderrors.New("bad")}, true, false},
		{"local", &localError{err: os.ErrNotExist}, true, false},
		{"transport", stderrors.New("connection reset"), true, true},
		{"transport create", stderrors.New("connection reset"), false, false},
		{"cancelled", context.Canceled, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(ctx, tt.err, tt.idempotent); got != tt.want {
				t.Errorf("isRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
