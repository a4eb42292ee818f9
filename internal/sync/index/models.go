package index

import (
	"errors"
	"strconv"
	"time"

	"github.com/dl-alexandre/memora/internal/types"
)

// ErrNotFound is returned by Get for a path that has never been synced
var ErrNotFound = errors.New("index: entry not found")

// Entry records that a path was fully synced. It mirrors the record the
// metadata service returned for the path.
type Entry struct {
	Path       string             `json:"path"`
	RecordID   string             `json:"recordId"`
	Name       string             `json:"name"`
	Directory  string             `json:"directory"`
	Kind       types.EntryKind    `json:"kind"`
	Status     types.RecordStatus `json:"status"`
	CreatedAt  time.Time          `json:"createdAt"`
	ModifiedAt time.Time          `json:"modifiedAt"`
	SyncedAt   time.Time          `json:"syncedAt"`
}

// RootState is the last known outcome of scanning a root
type RootState struct {
	Root            string    `json:"root"`
	ExcludePatterns []string  `json:"excludePatterns,omitempty"`
	LastTickAt      time.Time `json:"lastTickAt"`
	LastTickError   string    `json:"lastTickError,omitempty"`
	Directories     int       `json:"directories"`
	Uploads         int       `json:"uploads"`
	Failed          int       `json:"failed"`
}

// EntryList renders as a table for `index list`
type EntryList []Entry

func (l EntryList) AsTableRenderer() types.TableRenderer {
	return entryTable(l)
}

type entryTable []Entry

func (t entryTable) Headers() []string {
	return []string{"Path", "Kind", "Record", "Synced"}
}

func (t entryTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		rows = append(rows, []string{
			e.Path,
			e.Kind.String(),
			e.RecordID,
			e.SyncedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func (t entryTable) EmptyMessage() string {
	return "No entries indexed."
}

// RootList renders as a table for `index roots`
type RootList []RootState

func (l RootList) AsTableRenderer() types.TableRenderer {
	return rootTable(l)
}

type rootTable []RootState

func (t rootTable) Headers() []string {
	return []string{"Root", "Last Tick", "Directories", "Uploads", "Failed", "Error"}
}

func (t rootTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			r.Root,
			r.LastTickAt.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(r.Directories),
			strconv.Itoa(r.Uploads),
			strconv.Itoa(r.Failed),
			r.LastTickError,
		})
	}
	return rows
}

func (t rootTable) EmptyMessage() string {
	return "No roots scanned yet."
}
