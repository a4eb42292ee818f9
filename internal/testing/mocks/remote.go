package mocks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/dl-alexandre/memora/internal/types"
)

// Call is one request observed by the fake service
type Call struct {
	Method string
	// Op is "create", "transfer" or "finalize"
	Op        string
	RecordID  string
	Name      string
	Directory string
	Kind      types.EntryKind
}

// RemoteService is an httptest fake of the metadata service and its content
// channel. Metadata lives under /v1/files; upload targets under /content.
type RemoteService struct {
	Server *httptest.Server
	// Token, when set, is required as a bearer credential on metadata calls
	Token string

	// FailCreate returns a non-zero status to reject a create
	FailCreate func(req types.CreateRecordRequest) int
	// DropTransfer closes the connection instead of accepting content
	DropTransfer func(recordID string) bool
	// FailFinalize returns a non-zero status to reject a finalize
	FailFinalize func(recordID string) int
	// OmitUploadTarget leaves upload_target out of FILE create responses
	OmitUploadTarget bool
	// OmitKind leaves kind and status out of create responses
	OmitKind bool
	// TransferDelay is slept inside every content upload
	TransferDelay time.Duration

	mu             sync.Mutex
	nextID         int
	records        map[string]*types.SyncRecord
	content        map[string][]byte
	calls          []Call
	inFlight       int
	maxInFlight    int
	contentAuthSet bool
}

func NewRemoteService() *RemoteService {
	r := &RemoteService{
		records: make(map[string]*types.SyncRecord),
		content: make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/files", r.handleCreate)
	mux.HandleFunc("PUT /v1/files/{id}", r.handleFinalize)
	mux.HandleFunc("PUT /content/{id}", r.handleTransfer)
	r.Server = httptest.NewServer(mux)
	return r
}

// BaseURL is the metadata service base URL
func (r *RemoteService) BaseURL() string {
	return r.Server.URL + "/v1"
}

func (r *RemoteService) Close() {
	r.Server.Close()
}

// Calls returns every request seen so far, in arrival order
func (r *RemoteService) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallCount returns how many requests of op were seen
func (r *RemoteService) CallCount(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Record returns the stored record for id
func (r *RemoteService) Record(id string) (types.SyncRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return types.SyncRecord{}, false
	}
	return *rec, true
}

// Content returns the bytes uploaded for id
func (r *RemoteService) Content(id string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.content[id]
	return data, ok
}

// MaxConcurrentTransfers is the largest number of content uploads that were
// in progress at the same time
func (r *RemoteService) MaxConcurrentTransfers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInFlight
}

// ContentAuthSeen reports whether any content upload carried an
// Authorization header
func (r *RemoteService) ContentAuthSeen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contentAuthSet
}

func (r *RemoteService) authorized(w http.ResponseWriter, req *http.Request) bool {
	if r.Token == "" || req.Header.Get("Authorization") == "Bearer "+r.Token {
		return true
	}
	http.Error(w, `{"detail":"invalid token"}`, http.StatusUnauthorized)
	return false
}

func (r *RemoteService) handleCreate(w http.ResponseWriter, req *http.Request) {
	if !r.authorized(w, req) {
		return
	}
	var body types.CreateRecordRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	r.calls = append(r.calls, Call{
		Method:    req.Method,
		Op:        "create",
		Name:      body.Name,
		Directory: body.Directory,
		Kind:      body.Kind,
	})
	r.mu.Unlock()

	if r.FailCreate != nil {
		if status := r.FailCreate(body); status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
	}

	r.mu.Lock()
	r.nextID++
	now := time.Now().UTC().Truncate(time.Second)
	rec := &types.SyncRecord{
		ID:         fmt.Sprintf("rec-%d", r.nextID),
		Name:       body.Name,
		Directory:  body.Directory,
		Kind:       body.Kind,
		Status:     body.Status,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	r.records[rec.ID] = rec
	resp := *rec
	r.mu.Unlock()

	if resp.Kind == types.KindFile && !r.OmitUploadTarget {
		resp.UploadTarget = r.Server.URL + "/content/" + resp.ID + "?signature=test"
	}
	if r.OmitKind {
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id":            resp.ID,
			"name":          resp.Name,
			"directory":     resp.Directory,
			"created_at":    resp.CreatedAt,
			"modified_at":   resp.ModifiedAt,
			"upload_target": resp.UploadTarget,
		})
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (r *RemoteService) handleFinalize(w http.ResponseWriter, req *http.Request) {
	if !r.authorized(w, req) {
		return
	}
	id := req.PathValue("id")
	var body types.UpdateRecordRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	r.calls = append(r.calls, Call{
		Method:    req.Method,
		Op:        "finalize",
		RecordID:  id,
		Name:      body.Name,
		Directory: body.Directory,
		Kind:      body.Kind,
	})
	r.mu.Unlock()

	if r.FailFinalize != nil {
		if status := r.FailFinalize(id); status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
	}

	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	rec.Status = body.Status
	rec.ModifiedAt = time.Now().UTC().Truncate(time.Second)
	resp := *rec
	r.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (r *RemoteService) handleTransfer(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	r.mu.Lock()
	r.calls = append(r.calls, Call{Method: req.Method, Op: "transfer", RecordID: id})
	if req.Header.Get("Authorization") != "" {
		r.contentAuthSet = true
	}
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()

	if r.TransferDelay > 0 {
		time.Sleep(r.TransferDelay)
	}

	if r.DropTransfer != nil && r.DropTransfer(id) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			http.Error(w, "cannot drop connection", http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	r.content[id] = data
	r.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
