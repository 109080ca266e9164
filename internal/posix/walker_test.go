//go:build linux

package posix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/sstack"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

func TestWalkerEmptyRootYieldsOnlyRoot(t *testing.T) {
	root := t.TempDir()
	w, err := NewWalker(root, Options{})
	require.NoError(t, err)
	defer w.Close()

	e, err := w.Next()
	require.NoError(t, err)
	assert.True(t, e.IsRoot())
	assert.True(t, e.ParentID.Empty())
	assert.Equal(t, "", e.Name)
	assert.Equal(t, fsentry.TypeDirectory, e.Statx.Type)
	nb, ok := e.NbChildren()
	require.True(t, ok)
	assert.Equal(t, int64(0), nb)

	_, err = w.Next()
	assert.True(t, rherr.Is(err, rherr.NoMoreData))
}

func TestWalkerMissingRootIsNotFound(t *testing.T) {
	_, err := NewWalker(filepath.Join(t.TempDir(), "gone"), Options{})
	assert.True(t, rherr.Is(err, rherr.NotFound))
}

func TestWalkerNonDirectoryRootIsInvalid(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err := NewWalker(file, Options{})
	assert.True(t, rherr.Is(err, rherr.Invalid))
}

func TestWalkerParentIDsMatchMemoizedDirectoryIDs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "f"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b"), nil, 0o644))

	w, err := NewWalker(root, Options{})
	require.NoError(t, err)
	defer w.Close()

	rootEntry, err := w.Next()
	require.NoError(t, err)

	// Depth-first, name-ordered: a, a/f, b.
	a, err := w.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", a.Name)
	assert.True(t, a.ParentID.Equal(rootEntry.ID))
	path, ok := a.Path()
	require.True(t, ok)
	assert.Equal(t, "/a", path)

	f, err := w.Next()
	require.NoError(t, err)
	assert.Equal(t, "f", f.Name)
	assert.True(t, f.ParentID.Equal(a.ID), "a child's parent_id is its lexical parent's id")
	path, ok = f.Path()
	require.True(t, ok)
	assert.Equal(t, "/a/f", path)
	assert.Equal(t, uint64(4), f.Statx.Size)

	b, err := w.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", b.Name)
	assert.True(t, b.ParentID.Equal(rootEntry.ID))

	_, err = w.Next()
	assert.True(t, rherr.Is(err, rherr.NoMoreData))
}

func TestWalkerReadsSymlinkTarget(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Symlink("../elsewhere", filepath.Join(root, "l")))

	w, err := NewWalker(root, Options{})
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Next() // root
	require.NoError(t, err)

	l, err := w.Next()
	require.NoError(t, err)
	assert.Equal(t, fsentry.TypeSymlink, l.Statx.Type)
	assert.True(t, l.Mask.Has(fsentry.MaskSymlink))
	assert.Equal(t, "../elsewhere", l.Symlink)
}

type countingEnricher struct {
	calls int
}

func (c *countingEnricher) Name() string { return "counting" }

func (c *countingEnricher) Enrich(info EntryInfo, flags EnrichFlags, arena *sstack.Arena) (map[string]value.Value, error) {
	c.calls++
	return map[string]value.Value{"seen": value.Int64(int64(c.calls))}, nil
}

func TestWalkerRunsEnricherChainPerEntry(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f"), nil, 0o644))

	enr := &countingEnricher{}
	w, err := NewWalker(root, Options{Enrichers: []Enricher{enr}})
	require.NoError(t, err)
	defer w.Close()

	rootEntry, err := w.Next()
	require.NoError(t, err)
	assert.Contains(t, rootEntry.InodeXattrs, "seen")

	f, err := w.Next()
	require.NoError(t, err)
	assert.Contains(t, f.InodeXattrs, "seen")
	assert.Equal(t, 2, enr.calls)
}
