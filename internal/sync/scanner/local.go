package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"github.com/dl-alexandre/memora/internal/logging"
	"github.com/dl-alexandre/memora/internal/sync/exclude"
	"github.com/dl-alexandre/memora/internal/types"
)

// Walker enumerates a directory tree depth-first with an explicit stack
type Walker struct {
	Matcher *exclude.Matcher
	Logger  logging.Logger
}

// Walk is shorthand for a Walker without logging
func Walk(ctx context.Context, root string, matcher *exclude.Matcher) iter.Seq2[Entry, error] {
	w := &Walker{Matcher: matcher}
	return w.Walk(ctx, root)
}

// ResolveRoot returns the absolute form of root after checking that it is a
// listable directory
func ResolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root %s is not a directory", abs)
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("root %s: %w", abs, err)
	}
	defer f.Close()
	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("root %s is not listable: %w", abs, err)
	}
	return abs, nil
}

// Walk yields every entry below root, each directory before anything inside
// it. The root itself is not yielded. The first error ends the sequence.
func (w *Walker) Walk(ctx context.Context, root string) iter.Seq2[Entry, error] {
	logger := w.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	return func(yield func(Entry, error) bool) {
		absRoot, err := ResolveRoot(root)
		if err != nil {
			yield(Entry{}, err)
			return
		}

		stack := []string{absRoot}
		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				yield(Entry{}, err)
				return
			}

			dir := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			children, err := os.ReadDir(dir)
			if err != nil {
				yield(Entry{}, fmt.Errorf("list %s: %w", dir, err))
				return
			}

			var subdirs []string
			for _, child := range children {
				entry, ok := w.entryFor(absRoot, dir, child, logger)
				if !ok {
					continue
				}
				if entry.IsDir() {
					subdirs = append(subdirs, entry.Path)
				}
				if !yield(entry, nil) {
					return
				}
			}

			// Reverse so the next pop takes the first subdirectory by name
			slices.Reverse(subdirs)
			stack = append(stack, subdirs...)
		}
	}
}

func (w *Walker) entryFor(root, dir string, child fs.DirEntry, logger logging.Logger) (Entry, bool) {
	abs := filepath.Join(dir, child.Name())
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		logger.Debug("Skipping entry outside root", logging.F("path", abs))
		return Entry{}, false
	}
	rel = filepath.ToSlash(rel)

	mode := child.Type()
	switch {
	case mode&fs.ModeSymlink != 0:
		logger.Debug("Skipping symlink", logging.F("path", abs))
		return Entry{}, false
	case mode.IsDir(), mode.IsRegular():
	default:
		logger.Debug("Skipping irregular file", logging.F("path", abs), logging.F("mode", mode.String()))
		return Entry{}, false
	}

	isDir := mode.IsDir()
	if w.Matcher.IsExcluded(rel, isDir) {
		logger.Debug("Excluded", logging.F("path", abs))
		return Entry{}, false
	}

	info, err := child.Info()
	if err != nil {
		// Removed between listing and stat
		logger.Debug("Skipping vanished entry", logging.F("path", abs), logging.F("error", err))
		return Entry{}, false
	}

	entry := Entry{
		Path:         abs,
		RelativePath: rel,
		Name:         child.Name(),
		Directory:    dir,
		Kind:         types.KindFile,
		ModTime:      info.ModTime(),
	}
	if isDir {
		entry.Kind = types.KindDirectory
	} else {
		entry.Size = info.Size()
	}
	return entry, true
}
