package lifecycle

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/domain"
)

// RunIDs lists the run directories under base, newest first. Entries whose
// names are not run ids are ignored. A missing base yields no runs.
func RunIDs(base string) ([]string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.ErrArtifactIOFailed(base, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() && domain.IsRunID(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Prune keeps the keep newest run directories under base and removes the
// rest. A directory that cannot be removed is logged and skipped. It
// returns the removed directories and the first removal error.
func Prune(base string, keep int, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keep < 0 {
		keep = 0
	}

	ids, err := RunIDs(base)
	if err != nil {
		logger.Warn("Could not list runs for retention", zap.String("dir", base), zap.Error(err))
		return nil, err
	}
	if len(ids) <= keep {
		return nil, nil
	}

	var removed []string
	var firstErr error
	for _, id := range ids[keep:] {
		dir := filepath.Join(base, id)
		if err := forceRemove(dir); err != nil {
			logger.Warn("Could not remove old run", zap.String("dir", dir), zap.Error(err))
			if firstErr == nil {
				firstErr = domain.ErrCleanupFailed(dir, err)
			}
			continue
		}
		logger.Info("Removed old run", zap.String("dir", dir))
		removed = append(removed, dir)
	}
	return removed, firstErr
}

// forceRemove deletes dir recursively. When the first attempt fails, every
// entry is made writable and the removal is retried once.
func forceRemove(dir string) error {
	err := os.RemoveAll(dir)
	if err == nil {
		return nil
	}

	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		mode := os.FileMode(0o600)
		if d.IsDir() {
			mode = 0o700
		}
		_ = os.Chmod(p, mode)
		return nil
	})
	return os.RemoveAll(dir)
}
