package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"csv-uploader/internal/domain"
)

// DefaultPattern is matched anywhere in a file name, so "data.csv.bak" qualifies.
const DefaultPattern = ".csv"

// Filter reports whether an entry name should be uploaded.
type Filter func(name string) bool

// Contains matches names holding substr at any position. Matching is case-sensitive.
func Contains(substr string) Filter {
	return func(name string) bool {
		return strings.Contains(name, substr)
	}
}

// Scan lists dir one level deep and returns the regular entries accepted by filter.
// A nil filter accepts everything. Subdirectories are never descended into or returned.
func Scan(dir string, filter Filter) ([]domain.Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	candidates := make([]domain.Candidate, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filter != nil && !filter(name) {
			continue
		}
		candidates = append(candidates, candidateFor(dir, entry))
	}
	return candidates, nil
}

// candidateFor builds the candidate for entry. Size is informational only: if
// the entry cannot be stat'ed (typically removed after the listing) it is kept
// with size 0, and the upload itself reports the filesystem error.
func candidateFor(dir string, entry fs.DirEntry) domain.Candidate {
	c := domain.Candidate{
		Name: entry.Name(),
		Path: filepath.Join(dir, entry.Name()),
	}
	if info, err := entry.Info(); err == nil {
		c.Size = info.Size()
	}
	return c
}
