//go:build linux

// Package posix implements the lazy depth-first POSIX filesystem walker
// and its enricher chain, grounded on rclone's
// backend/local (local.go, metadata_linux.go, xattr.go): open-by-handle
// ids, statx harvesting, xattr listing through /proc/self/fd, and an
// ordered extension chain appended after the base harvest.
package posix

import (
	"fmt"
	"os"
	"path"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rhlog"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/sstack"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

var logger = rhlog.Get("posix")

const maxReadlinkBuf = 64 * 1024

// dirFrame is one level of the explicit DFS stack: an already-listed
// directory, partially consumed.
type dirFrame struct {
	id       value.Id
	relPath  string // relative path from the walk root, "" for the root
	entries  []os.DirEntry
	idx      int
}

// Walker produces a lazy sequence of fsentry.Entry rooted at RootPath.
// Next() may block on I/O. The root directory descriptor opened by
// NewWalker stays open between calls; Close releases it together with
// the per-call arena.
type Walker struct {
	RootPath string
	Opts     Options

	arena        *sstack.Arena
	stack        []*dirFrame
	yieldedRoot  bool
	rootIsMount  bool
	rootID       value.Id
	mountFd      int
	done         bool
}

// NewWalker constructs a Walker rooted at rootPath. The root is opened
// immediately to derive its stable Id and detect whether it is itself a
// mountpoint.
func NewWalker(rootPath string, opts Options) (*Walker, error) {
	fi, err := os.Stat(rootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rherr.New(rherr.NotFound, "%s: %s", rootPath, err)
		}
		return nil, rherr.Wrap(rherr.BackendError, err)
	}
	if !fi.IsDir() {
		return nil, rherr.New(rherr.Invalid, "%s is not a directory", rootPath)
	}
	fd, err := unix.Open(rootPath, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, rherr.Wrap(rherr.BackendError, err)
	}

	rootID, err := deriveID(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	rootIsMount, err := isMountpoint(rootPath)
	if err != nil {
		logger.Warnf("checking mountpoint status of %s: %s", rootPath, err)
	}

	return &Walker{
		RootPath:    rootPath,
		Opts:        opts,
		arena:       sstack.New(256 * 1024),
		rootID:      rootID,
		rootIsMount: rootIsMount,
		mountFd:     fd,
	}, nil
}

func isMountpoint(p string) (bool, error) {
	var st, parentSt unix.Stat_t
	if err := unix.Stat(p, &st); err != nil {
		return false, err
	}
	if err := unix.Stat(path.Dir(p), &parentSt); err != nil {
		return false, err
	}
	return st.Dev != parentSt.Dev, nil
}

// Next yields the next fsentry in depth-first, pre-order traversal. It
// never calls stat eagerly for entries it hasn't yet reached:
// only the entry about to be yielded is opened/statted.
func (w *Walker) Next() (fsentry.Entry, error) {
	w.arena.PopAll()

	if !w.yieldedRoot {
		w.yieldedRoot = true
		root, err := w.buildRootEntry()
		if err != nil {
			return fsentry.Entry{}, err
		}
		w.stack = append(w.stack, &dirFrame{id: root.ID, relPath: ""})
		return root, nil
	}

	for len(w.stack) > 0 {
		top := w.stack[len(w.stack)-1]
		if top.entries == nil {
			entries, err := os.ReadDir(path.Join(w.RootPath, top.relPath))
			if err != nil {
				w.stack = w.stack[:len(w.stack)-1]
				if w.Opts.SkipError {
					logger.Warnf("readdir %s: %s", top.relPath, err)
					continue
				}
				return fsentry.Entry{}, rherr.Wrap(rherr.BackendError, err)
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
			top.entries = entries
		}
		if top.idx >= len(top.entries) {
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}
		de := top.entries[top.idx]
		top.idx++

		entry, isDir, err := w.buildEntry(top, de)
		if err != nil {
			if w.Opts.SkipError {
				logger.Warnf("skipping %s: %s", de.Name(), err)
				continue
			}
			return fsentry.Entry{}, err
		}
		if isDir {
			w.stack = append(w.stack, &dirFrame{id: entry.ID, relPath: path.Join(top.relPath, de.Name())})
		}
		return entry, nil
	}

	w.done = true
	return fsentry.Entry{}, rherr.New(rherr.NoMoreData, "walk of %s complete", w.RootPath)
}

// Close releases the walker's scratch arena and root mount descriptor.
func (w *Walker) Close() error {
	w.arena.Destroy()
	return unix.Close(w.mountFd)
}

// buildRootEntry constructs the forced root edge case: parent_id is
// always the sentinel, name is always empty, even though the underlying
// directory entry (if the walk root is itself nested under another
// robinhood root) would report otherwise. Branch semantics depend on
// this: a branch root must look like a root, not like a child of its
// real parent.
func (w *Walker) buildRootEntry() (fsentry.Entry, error) {
	stx, err := statEntry(w.mountFd, w.Opts.StatxSync)
	if err != nil {
		return fsentry.Entry{}, err
	}
	inodeXattrs, err := listXattrs(w.mountFd, w.Opts.XattrTypeMap)
	if err != nil && !w.Opts.SkipError {
		return fsentry.Entry{}, rherr.Wrap(rherr.BackendError, err)
	}
	if inodeXattrs == nil {
		inodeXattrs = map[string]value.Value{}
	}
	rootRelPath := "/"
	if !w.rootIsMount {
		rootRelPath = w.RootPath
	}
	nsXattrs := map[string]value.Value{"path": value.String(rootRelPath)}

	if stx.Type == fsentry.TypeDirectory {
		inodeXattrs["nb_children"] = value.Int64(0)
	}
	if err := w.runEnrichers(w.mountFd, stx, inodeXattrs); err != nil && !w.Opts.SkipError {
		return fsentry.Entry{}, err
	}

	return fsentry.Entry{
		Mask:        fsentry.MaskID | fsentry.MaskParentID | fsentry.MaskName | fsentry.MaskStatx | fsentry.MaskNsXattrs | fsentry.MaskInodeXattrs,
		ID:          w.rootID,
		ParentID:    value.RootParent,
		Name:        "",
		Statx:       stx,
		NsXattrs:    nsXattrs,
		InodeXattrs: inodeXattrs,
	}, nil
}

// buildEntry opens, stats, and harvests one directory child.
func (w *Walker) buildEntry(parent *dirFrame, de os.DirEntry) (fsentry.Entry, bool, error) {
	fullPath := path.Join(w.RootPath, parent.relPath, de.Name())

	fd, err := openEntry(fullPath)
	if err != nil {
		return fsentry.Entry{}, false, err
	}
	defer unix.Close(fd)

	id, err := deriveID(fd)
	if err != nil {
		return fsentry.Entry{}, false, err
	}
	stx, err := statEntry(fd, w.Opts.StatxSync)
	if err != nil {
		return fsentry.Entry{}, false, err
	}

	var symlink string
	hasSymlink := false
	if stx.Type == fsentry.TypeSymlink {
		symlink, err = readSymlink(fullPath, stx)
		if err != nil {
			return fsentry.Entry{}, false, err
		}
		hasSymlink = true
	}

	mask := fsentry.MaskID | fsentry.MaskParentID | fsentry.MaskName | fsentry.MaskStatx
	var inodeXattrs map[string]value.Value
	if stx.Type == fsentry.TypeRegular || stx.Type == fsentry.TypeDirectory || stx.Type == fsentry.TypeSymlink {
		inodeXattrs, err = listXattrs(fd, w.Opts.XattrTypeMap)
		if err != nil {
			return fsentry.Entry{}, false, rherr.Wrap(rherr.BackendError, err)
		}
	}
	if inodeXattrs == nil {
		inodeXattrs = map[string]value.Value{}
	}
	relPath := "/" + path.Join(parent.relPath, de.Name())
	nsXattrs := map[string]value.Value{"path": value.String(relPath)}
	mask |= fsentry.MaskNsXattrs

	isDir := stx.Type == fsentry.TypeDirectory
	if isDir {
		inodeXattrs["nb_children"] = value.Int64(0)
	}
	if err := w.runEnrichers(fd, stx, inodeXattrs); err != nil && !w.Opts.SkipError {
		return fsentry.Entry{}, false, err
	}
	if len(inodeXattrs) > 0 {
		mask |= fsentry.MaskInodeXattrs
	}

	entry := fsentry.Entry{
		Mask:        mask,
		ID:          id,
		ParentID:    parent.id,
		Name:        de.Name(),
		Statx:       stx,
		NsXattrs:    nsXattrs,
		InodeXattrs: inodeXattrs,
	}
	if hasSymlink {
		entry.Symlink = symlink
		entry.Mask |= fsentry.MaskSymlink
	}
	return entry, isDir, nil
}

// openEntry opens path with O_RDONLY|O_NOFOLLOW|O_NONBLOCK|O_CLOEXEC,
// retrying with O_PATH on ELOOP/ENXIO. Any other failure is
// surfaced as Stale so the walker can decide whether to skip it.
func openEntry(fullPath string) (int, error) {
	fd, err := unix.Open(fullPath, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err == nil {
		return fd, nil
	}
	if err == unix.ELOOP || err == unix.ENXIO {
		fd, err = unix.Open(fullPath, unix.O_PATH|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
		if err == nil {
			return fd, nil
		}
	}
	return -1, rherr.New(rherr.Stale, "open %s: %s", fullPath, err)
}

// readSymlink reads the link target with a doubling buffer, capped at
// 64 KiB. An entry whose statx mask lacks SIZE uses page_size-1 as the
// initial guess.
func readSymlink(fullPath string, stx fsentry.Statx) (string, error) {
	size := int(stx.Size)
	if stx.Mask&fsentry.StatxSize == 0 || size == 0 {
		size = os.Getpagesize() - 1
	}
	for {
		buf := make([]byte, size)
		n, err := unix.Readlink(fullPath, buf)
		if err != nil {
			return "", rherr.Wrap(rherr.BackendError, err)
		}
		if n < size {
			return string(buf[:n]), nil
		}
		if size >= maxReadlinkBuf {
			return string(buf[:n]), nil
		}
		size *= 2
		if size > maxReadlinkBuf {
			size = maxReadlinkBuf
		}
	}
}

func (w *Walker) runEnrichers(fd int, stx fsentry.Statx, inodeXattrs map[string]value.Value) error {
	for _, e := range w.Opts.Enrichers {
		info := EntryInfo{
			Fd:               fd,
			Path:             fmt.Sprintf("/proc/self/fd/%d", fd),
			Statx:            stx,
			InodeXattrsSoFar: inodeXattrs,
		}
		pairs, err := e.Enrich(info, 0, w.arena)
		if err != nil {
			return rherr.Wrap(rherr.BackendError, err)
		}
		for k, v := range pairs {
			inodeXattrs[k] = v
		}
	}
	return nil
}
