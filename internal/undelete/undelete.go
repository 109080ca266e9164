//go:build linux

// Package undelete implements the undelete tool:
// restoring an HSM-archived file that was deleted on the filesystem but
// still has a tombstone entry (the PARTIAL_UNLINK survivor) in the
// metadata store.
package undelete

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/robinhood-suite/robinhood4-sub002/internal/backend"
	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// Filesystem abstracts the one filesystem-specific call this package
// needs: restoring an archived object from its HSM copy (Lustre:
// hsm_import), given the original statx as a template.
type Filesystem interface {
	Undelete(ctx context.Context, archiveID string, template fsentry.Statx, path string) error
}

// Tool bundles the store and filesystem collaborator.
type Tool struct {
	Store backend.Backend
	FS    Filesystem
}

// oneEventIterator adapts a single fsevent.Event into an Iterator, the
// shape backend.Backend.Update expects.
type oneEventIterator struct {
	ev   fsevent.Event
	done bool
}

func (o *oneEventIterator) Next() (fsevent.Event, error) {
	if o.done {
		return fsevent.Event{}, rherr.New(rherr.NoMoreData, "single-event iterator drained")
	}
	o.done = true
	return o.ev, nil
}

func (o *oneEventIterator) Close() error { return nil }

// Mountpoint resolves the mount root for target, first consulting the
// store's "mountpoint" info key, falling back to walking up from cwd
// looking for a mount boundary.
func Mountpoint(ctx context.Context, store backend.Backend) (string, error) {
	info, err := store.GetInfo(ctx, backend.InfoMountpoint)
	if err != nil {
		return "", err
	}
	if v, ok := info["mountpoint"]; ok && v.Tag == value.TagString && v.Str != "" {
		return v.Str, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", rherr.Wrap(rherr.BackendError, err)
	}
	return walkUpToMount(cwd)
}

func walkUpToMount(dir string) (string, error) {
	for {
		var st, pst unix.Stat_t
		if err := unix.Stat(dir, &st); err != nil {
			return "", rherr.Wrap(rherr.BackendError, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir, nil
		}
		if err := unix.Stat(parent, &pst); err != nil || st.Dev != pst.Dev {
			return dir, nil
		}
		dir = parent
	}
}

// Restore looks up the tombstone for target (relative to the
// mountpoint), requires it to carry an hsm_archive_id, restores it via
// FS.Undelete, and issues a DELETE to the store for the old tombstone.
func (t *Tool) Restore(ctx context.Context, target string) error {
	mountpoint, err := Mountpoint(ctx, t.Store)
	if err != nil {
		return err
	}
	relPath := relativeTo(mountpoint, target)

	e, err := t.lookupTombstone(ctx, relPath)
	if err != nil {
		return err
	}

	archiveID, ok := archiveIDOf(e)
	if !ok {
		return rherr.New(rherr.Invalid, "entry %q has no hsm_archive_id: not an archived tombstone", relPath)
	}

	if err := t.FS.Undelete(ctx, archiveID, e.Statx, filepath.Join(mountpoint, relPath)); err != nil {
		return err
	}

	del := &oneEventIterator{ev: fsevent.Event{Type: fsevent.Delete, ID: e.ID}}
	_, err = t.Store.Update(ctx, del)
	return err
}

// lookupTombstone finds the fsentry whose "path" ns xattr equals
// relPath and which carries no parent_id/name (the archived-then-
// deleted invariant: namespace was removed by PARTIAL_UNLINK).
func (t *Tool) lookupTombstone(ctx context.Context, relPath string) (fsentry.Entry, error) {
	f := filter.Compare("namespace.xattrs.path", filter.OpEq, value.String(relPath))
	out := filter.Output{Projection: filter.Projection{
		StatxMask: ^uint32(0),
	}}
	it, err := t.Store.Filter(ctx, f, filter.Options{One: true}, out)
	if err != nil {
		return fsentry.Entry{}, err
	}
	defer it.Close()
	e, err := it.Next()
	if err != nil {
		return fsentry.Entry{}, err
	}
	if e.Mask.Has(fsentry.MaskParentID) || e.Mask.Has(fsentry.MaskName) {
		return fsentry.Entry{}, rherr.New(rherr.Invalid, "entry %q still has a live namespace entry", relPath)
	}
	return e, nil
}

func archiveIDOf(e fsentry.Entry) (string, bool) {
	v, ok := e.InodeXattrs["hsm_archive_id"]
	if !ok {
		return "", false
	}
	switch v.Tag {
	case value.TagString:
		return v.Str, true
	case value.TagUint64:
		return strconv.FormatUint(v.U64, 10), true
	default:
		return "", false
	}
}

// List enumerates tombstones under pathPrefix whose ns xattrs carry
// rm_time, for the "list" mode.
func (t *Tool) List(ctx context.Context, pathPrefix string) ([]fsentry.Entry, error) {
	prefixFilter := filter.Compare("namespace.xattrs.path", filter.OpRegex, value.Regex("^"+regexEscape(pathPrefix), 0))
	rmTimeFilter := filter.Compare("namespace.xattrs.rm_time", filter.OpExists, value.Value{})
	f := filter.And(prefixFilter, rmTimeFilter)

	it, err := t.Store.Filter(ctx, f, filter.Options{}, filter.Output{})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var entries []fsentry.Entry
	for {
		e, err := it.Next()
		if rherr.Is(err, rherr.NoMoreData) {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func relativeTo(mountpoint, target string) string {
	if !filepath.IsAbs(target) {
		cwd, _ := os.Getwd()
		target = filepath.Join(cwd, target)
	}
	rel, err := filepath.Rel(mountpoint, target)
	if err != nil {
		return target
	}
	return rel
}

func regexEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`.+*?()|[]{}^$\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
