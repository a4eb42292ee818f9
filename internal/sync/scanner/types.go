package scanner

import (
	"time"

	"github.com/dl-alexandre/memora/internal/types"
)

// Entry is one filesystem entry produced by the walker
type Entry struct {
	// Path is absolute and unique per entry
	Path string
	// RelativePath is slash-separated and relative to the root
	RelativePath string
	Name         string
	// Directory is the absolute path of the containing directory
	Directory string
	Kind      types.EntryKind
	Size      int64
	ModTime   time.Time
}

func (e Entry) IsDir() bool {
	return e.Kind == types.KindDirectory
}
