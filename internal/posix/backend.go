//go:build linux

package posix

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/robinhood-suite/robinhood4-sub002/internal/backend"
	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// Backend wraps a Walker as a backend.Backend: it is a source-only
// view of one POSIX tree (robinhood mirrors a live filesystem into a
// store; the filesystem side never accepts Update/Report).
type Backend struct {
	RootPath string
	opts     Options
}

// walkerIter adapts *Walker to backend.EntryIter.
type walkerIter struct{ w *Walker }

func (w walkerIter) Next() (fsentry.Entry, error) { return w.w.Next() }
func (w walkerIter) Close() error                 { return w.w.Close() }

// StatxSyncTypeOption is the one option the posix backend exposes:
// how statx's SYNC bits are set for every stat during a walk.
const StatxSyncTypeOption = "statx_sync_type"

func (b *Backend) GetOption(ctx context.Context, key string) (value.Value, error) {
	if key == StatxSyncTypeOption {
		return value.Int32(int32(b.opts.StatxSync)), nil
	}
	return value.Value{}, rherr.New(rherr.NotSupported, "unknown posix option %q", key)
}

func (b *Backend) SetOption(ctx context.Context, key string, v value.Value) error {
	if key != StatxSyncTypeOption {
		return rherr.New(rherr.NotSupported, "unknown posix option %q", key)
	}
	if v.Tag != value.TagInt32 {
		return rherr.New(rherr.Invalid, "statx_sync_type takes an int32")
	}
	switch SyncType(v.I32) {
	case SyncAsStat, DontSync:
	case ForceSync:
		if !statxForceSyncSupported() {
			return rherr.New(rherr.NotSupported, "statx FORCE_SYNC unavailable on this kernel")
		}
	default:
		return rherr.New(rherr.Invalid, "statx_sync_type %d out of range", v.I32)
	}
	b.opts.StatxSync = SyncType(v.I32)
	return nil
}

// Branch opens a view rooted at the given path. When no path is
// supplied but id is set, the path is resolved from id by
// open-by-handle against RootPath (ResolvePath); with neither, the view
// keeps the same root.
func (b *Backend) Branch(ctx context.Context, id value.Id, path string) (backend.Backend, error) {
	sub := path
	if sub == "" && !id.Empty() {
		mountFd, err := unix.Open(b.RootPath, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
		if err != nil {
			return nil, rherr.Wrap(rherr.BackendError, err)
		}
		defer unix.Close(mountFd)
		if sub, err = ResolvePath(mountFd, id); err != nil {
			return nil, err
		}
	}
	if sub == "" {
		sub = b.RootPath
	}
	return &Backend{RootPath: sub, opts: b.opts}, nil
}

func (b *Backend) Root(ctx context.Context, proj filter.Projection) (fsentry.Entry, error) {
	w, err := NewWalker(b.RootPath, b.opts)
	if err != nil {
		return fsentry.Entry{}, err
	}
	defer w.Close()
	return w.Next()
}

// Filter ignores the filter/options/output and streams the entire
// subtree: the POSIX side has no query engine of its own, only a walk;
// filtering happens downstream once entries reach the store.
func (b *Backend) Filter(ctx context.Context, f filter.Filter, opts filter.Options, out filter.Output) (backend.EntryIter, error) {
	w, err := NewWalker(b.RootPath, b.opts)
	if err != nil {
		return nil, err
	}
	return walkerIter{w: w}, nil
}

func (b *Backend) Update(ctx context.Context, events fsevent.Iterator) (int, error) {
	return 0, rherr.New(rherr.NotSupported, "posix backend is read-only: it is a source, not a sink")
}

func (b *Backend) Report(ctx context.Context, f filter.Filter, groupBy []string, opts filter.Options, out filter.Output) (backend.EntryIter, error) {
	return nil, rherr.New(rherr.NotSupported, "posix backend does not support aggregation reports")
}

func (b *Backend) GetInfo(ctx context.Context, flags backend.InfoFlags) (map[string]value.Value, error) {
	out := map[string]value.Value{}
	if flags&backend.InfoMountpoint != 0 {
		out["mountpoint"] = value.String(b.RootPath)
	}
	return out, nil
}

func (b *Backend) SetInfo(ctx context.Context, info map[string]value.Value, flags backend.InfoFlags) error {
	return rherr.New(rherr.NotSupported, "posix backend has no info store")
}

func (b *Backend) GetAttribute(ctx context.Context, flags uint32, ctxValue value.Value, pairs []string) (map[string]value.Value, error) {
	return nil, rherr.New(rherr.NotSupported, "posix backend has no ad-hoc attribute RPC")
}

func (b *Backend) Destroy(ctx context.Context) error { return nil }

// plugin registers the "posix" backend variant.
type plugin struct{}

func init() { backend.Register(plugin{}) }

func (plugin) Name() string    { return "posix" }
func (plugin) Version() string { return "1.0" }

func (plugin) Capabilities() backend.Capability {
	return backend.CapSyncOps | backend.CapBranchOps
}

func (plugin) New(ctx context.Context, u backend.URI, config map[string]value.Value, readOnly bool) (backend.Backend, error) {
	root := u.Path
	if root == "" {
		root = "/" + u.Fsname
	}
	return &Backend{RootPath: root}, nil
}

func (plugin) CheckValidToken(token string) backend.TokenKind { return backend.TokenUnknown }

func (plugin) BuildFilter(argv []string, i *int, needPrefetch *bool) (filter.Filter, error) {
	return filter.Filter{}, rherr.New(rherr.NotSupported, "posix plugin does not build CLI predicates")
}

func (plugin) FillEntryInfo(buf []byte, e fsentry.Entry, directive string) int { return -1 }

func (plugin) DeleteEntry(ctx context.Context, e fsentry.Entry) error { return nil }
