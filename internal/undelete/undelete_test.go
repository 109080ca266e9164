//go:build linux

package undelete

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinhood-suite/robinhood4-sub002/internal/backend"
	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// fakeStore is a minimal backend.Backend stub driving just what Tool needs.
type fakeStore struct {
	mountpoint string
	entries    []fsentry.Entry
	deleted    []value.Id
}

func (f *fakeStore) GetOption(ctx context.Context, key string) (value.Value, error) {
	return value.Value{}, nil
}
func (f *fakeStore) SetOption(ctx context.Context, key string, v value.Value) error { return nil }
func (f *fakeStore) Branch(ctx context.Context, id value.Id, path string) (backend.Backend, error) {
	return f, nil
}
func (f *fakeStore) Root(ctx context.Context, proj filter.Projection) (fsentry.Entry, error) {
	return fsentry.Entry{}, nil
}

func (f *fakeStore) Filter(ctx context.Context, ft filter.Filter, opts filter.Options, out filter.Output) (backend.EntryIter, error) {
	var matched []fsentry.Entry
	for _, e := range f.entries {
		path, ok := e.NsXattrs["path"]
		if ft.Field == "namespace.xattrs.path" && ok && ft.Op == filter.OpEq && path.Str == ft.Value.Str {
			matched = append(matched, e)
		}
		if ft.Op == filter.OpAnd {
			matched = append(matched, e)
		}
	}
	return &fakeIter{entries: matched}, nil
}

func (f *fakeStore) Update(ctx context.Context, events fsevent.Iterator) (int, error) {
	n := 0
	for {
		ev, err := events.Next()
		if rherr.Is(err, rherr.NoMoreData) {
			break
		}
		if err != nil {
			return n, err
		}
		if ev.Type == fsevent.Delete {
			f.deleted = append(f.deleted, ev.ID)
		}
		n++
	}
	return n, nil
}

func (f *fakeStore) Report(ctx context.Context, ft filter.Filter, groupBy []string, opts filter.Options, out filter.Output) (backend.EntryIter, error) {
	return nil, rherr.New(rherr.NotSupported, "not used")
}

func (f *fakeStore) GetInfo(ctx context.Context, flags backend.InfoFlags) (map[string]value.Value, error) {
	return map[string]value.Value{"mountpoint": value.String(f.mountpoint)}, nil
}
func (f *fakeStore) SetInfo(ctx context.Context, info map[string]value.Value, flags backend.InfoFlags) error {
	return nil
}
func (f *fakeStore) GetAttribute(ctx context.Context, flags uint32, ctxValue value.Value, pairs []string) (map[string]value.Value, error) {
	return nil, nil
}
func (f *fakeStore) Destroy(ctx context.Context) error { return nil }

type fakeIter struct {
	entries []fsentry.Entry
	i       int
}

func (it *fakeIter) Next() (fsentry.Entry, error) {
	if it.i >= len(it.entries) {
		return fsentry.Entry{}, rherr.New(rherr.NoMoreData, "drained")
	}
	e := it.entries[it.i]
	it.i++
	return e, nil
}
func (it *fakeIter) Close() error { return nil }

type fakeFS struct {
	called    bool
	archiveID string
	path      string
}

func (f *fakeFS) Undelete(ctx context.Context, archiveID string, template fsentry.Statx, path string) error {
	f.called = true
	f.archiveID = archiveID
	f.path = path
	return nil
}

func TestRestoreHappyPath(t *testing.T) {
	store := &fakeStore{
		mountpoint: "/mnt/lustre",
		entries: []fsentry.Entry{
			{
				ID:          value.Id{Bytes: []byte("tombstone")},
				NsXattrs:    map[string]value.Value{"path": value.String("dir/file.txt")},
				InodeXattrs: map[string]value.Value{"hsm_archive_id": value.String("42")},
			},
		},
	}
	fs := &fakeFS{}
	tool := &Tool{Store: store, FS: fs}

	err := tool.Restore(context.Background(), "/mnt/lustre/dir/file.txt")
	require.NoError(t, err)
	assert.True(t, fs.called)
	assert.Equal(t, "42", fs.archiveID)
	require.Len(t, store.deleted, 1)
	assert.Equal(t, "tombstone", string(store.deleted[0].Bytes))
}

func TestRestoreRejectsEntryWithoutArchiveID(t *testing.T) {
	store := &fakeStore{
		mountpoint: "/mnt/lustre",
		entries: []fsentry.Entry{
			{
				ID:       value.Id{Bytes: []byte("tombstone")},
				NsXattrs: map[string]value.Value{"path": value.String("dir/file.txt")},
			},
		},
	}
	fs := &fakeFS{}
	tool := &Tool{Store: store, FS: fs}

	err := tool.Restore(context.Background(), "/mnt/lustre/dir/file.txt")
	assert.True(t, rherr.Is(err, rherr.Invalid))
	assert.False(t, fs.called)
}

func TestListOnStoreWithoutTombstonesIsEmpty(t *testing.T) {
	store := &fakeStore{mountpoint: "/mnt/lustre"}
	tool := &Tool{Store: store, FS: &fakeFS{}}

	entries, err := tool.List(context.Background(), "dir/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
