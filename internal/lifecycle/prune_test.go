package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRuns(t *testing.T, base string, n int) []string {
	t.Helper()
	var dirs []string
	for i := 0; i < n; i++ {
		dir := filepath.Join(base, fmt.Sprintf("202401%02d_120000", i+1))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "screenshots"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "report.html"), []byte("<html/>"), 0o644))
		dirs = append(dirs, dir)
	}
	return dirs
}

func TestPrune(t *testing.T) {
	base := t.TempDir()
	dirs := makeRuns(t, base, 12)
	require.NoError(t, os.Mkdir(filepath.Join(base, "notes"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(base, "19990101_000000x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "20000101_000000"), nil, 0o644))

	removed, err := Prune(base, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{dirs[1], dirs[0]}, removed)

	ids, err := RunIDs(base)
	require.NoError(t, err)
	assert.Len(t, ids, 10)
	assert.Equal(t, "20240112_120000", ids[0])
	assert.Equal(t, "20240103_120000", ids[9])

	assert.DirExists(t, filepath.Join(base, "notes"))
	assert.DirExists(t, filepath.Join(base, "19990101_000000x"))
	assert.FileExists(t, filepath.Join(base, "20000101_000000"))

	removed, err = Prune(base, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, removed, "a second pass removes nothing")
}

func TestPrune_KeepsEverythingUnderLimit(t *testing.T) {
	base := t.TempDir()
	makeRuns(t, base, 3)

	removed, err := Prune(base, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, removed)

	ids, err := RunIDs(base)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestPrune_MissingBase(t *testing.T) {
	removed, err := Prune(filepath.Join(t.TempDir(), "absent"), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestPrune_ReadOnlyEntries(t *testing.T) {
	base := t.TempDir()
	dirs := makeRuns(t, base, 2)
	locked := filepath.Join(dirs[0], "screenshots")
	require.NoError(t, os.WriteFile(filepath.Join(locked, "shot.png"), []byte("x"), 0o400))
	require.NoError(t, os.Chmod(locked, 0o500))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	removed, err := Prune(base, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{dirs[0]}, removed)
	assert.NoDirExists(t, dirs[0])
	assert.DirExists(t, dirs[1])
}

func TestPrune_KeepTwoOfThree(t *testing.T) {
	base := t.TempDir()
	for _, id := range []string{"20240102_000000", "20240101_000000", "20240103_000000"} {
		require.NoError(t, os.Mkdir(filepath.Join(base, id), 0o755))
	}

	removed, err := Prune(base, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(base, "20240101_000000")}, removed)

	ids, err := RunIDs(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240103_000000", "20240102_000000"}, ids)
}
