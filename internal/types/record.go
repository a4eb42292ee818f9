package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntryKind classifies a filesystem entry tracked by the metadata service
type EntryKind int

const (
	KindFile EntryKind = iota + 1
	KindDirectory
)

// RecordStatus is the lifecycle state of a SyncRecord
type RecordStatus int

const (
	StatusOpen RecordStatus = iota + 1
	StatusClosed
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "FILE"
	case KindDirectory:
		return "DIRECTORY"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// ParseEntryKind converts a wire literal into an EntryKind
func ParseEntryKind(s string) (EntryKind, error) {
	switch s {
	case "FILE":
		return KindFile, nil
	case "DIRECTORY":
		return KindDirectory, nil
	}
	return 0, fmt.Errorf("unknown entry kind %q", s)
}

func (k EntryKind) MarshalJSON() ([]byte, error) {
	if k != KindFile && k != KindDirectory {
		return nil, fmt.Errorf("cannot marshal %s", k)
	}
	return json.Marshal(k.String())
}

func (k *EntryKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEntryKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (s RecordStatus) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("RecordStatus(%d)", int(s))
	}
}

// ParseRecordStatus converts a wire literal into a RecordStatus
func ParseRecordStatus(s string) (RecordStatus, error) {
	switch s {
	case "OPEN":
		return StatusOpen, nil
	case "CLOSED":
		return StatusClosed, nil
	}
	return 0, fmt.Errorf("unknown record status %q", s)
}

func (s RecordStatus) MarshalJSON() ([]byte, error) {
	if s != StatusOpen && s != StatusClosed {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return json.Marshal(s.String())
}

func (s *RecordStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseRecordStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SyncRecord is the metadata service's view of one filesystem entry
type SyncRecord struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Directory    string       `json:"directory"`
	Kind         EntryKind    `json:"kind"`
	Status       RecordStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	ModifiedAt   time.Time    `json:"modified_at"`
	UploadTarget string       `json:"upload_target,omitempty"`
	ReadTarget   string       `json:"read_target,omitempty"`
}

// CreateRecordRequest is the body of POST /files
type CreateRecordRequest struct {
	Name      string       `json:"name"`
	Directory string       `json:"directory"`
	Kind      EntryKind    `json:"kind"`
	Status    RecordStatus `json:"status"`
}

// UpdateRecordRequest is the body of PUT /files/{id}
type UpdateRecordRequest struct {
	Name       string       `json:"name"`
	Directory  string       `json:"directory"`
	Kind       EntryKind    `json:"kind"`
	Status     RecordStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	ModifiedAt time.Time    `json:"modified_at"`
}

// Complete fills what a creation response left out from the request that
// produced it. The service is not required to echo kind or status back.
func (r *SyncRecord) Complete(req CreateRecordRequest) {
	if r.Name == "" {
		r.Name = req.Name
	}
	if r.Directory == "" {
		r.Directory = req.Directory
	}
	if r.Kind == 0 {
		r.Kind = req.Kind
	}
	if r.Status == 0 {
		r.Status = req.Status
	}
}

// CloseRequest builds the finalize body for a record returned by create
func (r *SyncRecord) CloseRequest() UpdateRecordRequest {
	return UpdateRecordRequest{
		Name:       r.Name,
		Directory:  r.Directory,
		Kind:       r.Kind,
		Status:     StatusClosed,
		CreatedAt:  r.CreatedAt,
		ModifiedAt: r.ModifiedAt,
	}
}
