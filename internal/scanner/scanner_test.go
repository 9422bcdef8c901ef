package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("id,value\n1,2\n"), 0o644))
	}
}

func names(t *testing.T, dir string, filter Filter) []string {
	t.Helper()
	candidates, err := Scan(dir, filter)
	require.NoError(t, err)
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Name)
	}
	return out
}

func TestScanSubstringMatch(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.csv", "b.txt", "c.data.csv.bak", "data.csvold", "archive.csv.zip", "report.txt")

	got := names(t, dir, Contains(DefaultPattern))
	assert.ElementsMatch(t, []string{"a.csv", "c.data.csv.bak", "data.csvold", "archive.csv.zip"}, got)
}

func TestScanCaseSensitive(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "UPPER.CSV", "lower.csv")

	assert.Equal(t, []string{"lower.csv"}, names(t, dir, Contains(DefaultPattern)))
}

func TestScanSkipsDirectoriesAndDoesNotRecurse(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "top.csv")
	nested := filepath.Join(dir, "nested.csv")
	require.NoError(t, os.Mkdir(nested, 0o755))
	writeFiles(t, nested, "inner.csv")

	assert.Equal(t, []string{"top.csv"}, names(t, dir, Contains(DefaultPattern)))
}

func TestScanEmptyDirectory(t *testing.T) {
	candidates, err := Scan(t.TempDir(), Contains(DefaultPattern))
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestScanNilFilterKeepsEverything(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.csv", "b.txt")

	assert.ElementsMatch(t, []string{"a.csv", "b.txt"}, names(t, dir, nil))
}

func TestScanPopulatesPathAndSize(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.csv")

	candidates, err := Scan(dir, Contains(DefaultPattern))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, filepath.Join(dir, "a.csv"), candidates[0].Path)
	assert.Equal(t, int64(len("id,value\n1,2\n")), candidates[0].Size)
}

func TestScanMissingDirectory(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type vanishedEntry struct{ name string }

func (e vanishedEntry) Name() string               { return e.name }
func (e vanishedEntry) IsDir() bool                { return false }
func (e vanishedEntry) Type() fs.FileMode          { return 0 }
func (e vanishedEntry) Info() (fs.FileInfo, error) { return nil, fs.ErrNotExist }

func TestCandidateForKeepsEntryWhenStatFails(t *testing.T) {
	c := candidateFor("/data", vanishedEntry{name: "gone.csv"})
	assert.Equal(t, "gone.csv", c.Name)
	assert.Equal(t, filepath.Join("/data", "gone.csv"), c.Path)
	assert.Zero(t, c.Size)
}
