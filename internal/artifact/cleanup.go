package artifact

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Cleaner removes artifacts once they have been embedded
type Cleaner struct {
	logger *zap.Logger
}

// NewCleaner creates a Cleaner
func NewCleaner(logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{logger: logger}
}

// CleanupResult counts what Cleanup removed
type CleanupResult struct {
	Files int
	Dirs  int
}

// Cleanup deletes the given files, then removes parent directories left
// empty, deepest first. Missing files are ignored. Directories at or above
// any of the stop paths are never removed.
func (c *Cleaner) Cleanup(files []string, stop ...string) CleanupResult {
	var res CleanupResult
	seen := make(map[string]bool, len(files))
	parents := make(map[string]bool)

	stops := make(map[string]bool, len(stop))
	for _, s := range stop {
		if abs, err := filepath.Abs(s); err == nil {
			stops[abs] = true
		}
	}

	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true

		if err := os.Remove(abs); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				c.logger.Warn("Could not remove embedded artifact", zap.String("path", abs), zap.Error(err))
			}
			continue
		}
		res.Files++
		parents[filepath.Dir(abs)] = true
	}

	dirs := make([]string, 0, len(parents))
	for d := range parents {
		if !stops[d] {
			dirs = append(dirs, d)
		}
	}
	// Deepest first so a removed child can empty its parent
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := strings.Count(dirs[i], string(filepath.Separator)), strings.Count(dirs[j], string(filepath.Separator))
		if di != dj {
			return di > dj
		}
		return dirs[i] > dirs[j]
	})

	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(d); err != nil {
			c.logger.Warn("Could not remove empty artifact directory", zap.String("dir", d), zap.Error(err))
			continue
		}
		res.Dirs++
	}

	return res
}
