// Package backend defines the uniform backend/plugin interface,
// capability negotiation and composition, grounded on
// rclone's fs.Register/RegInfo plugin registry and juicefs's
// pkg/meta.Register/NewClient URI dispatch.
package backend

import (
	"context"

	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// Capability is a bitmask of operations a Backend supports.
type Capability uint32

const (
	CapSyncOps Capability = 1 << iota
	CapBranchOps
	CapReportOps
	CapAttributeOps
)

// Has reports whether c contains every bit in want.
func (c Capability) Has(want Capability) bool { return c&want == want }

// InfoFlags selects which get_info/set_info facets a caller wants.
type InfoFlags uint32

const (
	InfoAvgObjSize InfoFlags = 1 << iota
	InfoBackendSource
	InfoCount
	InfoSize
	InfoFsEventsSource
	InfoFirstSync
	InfoLastSync
	InfoMountpoint
)

// EntryIter lazily yields fsentry.Entry values, as returned by
// Backend.Filter/Root.
type EntryIter interface {
	Next() (fsentry.Entry, error) // rherr.NoMoreData when exhausted
	Close() error
}

// Backend is the uniform interface every store/walker implementation
// exposes. Any method MAY return an *rherr.Error of Kind
// NotSupported.
type Backend interface {
	GetOption(ctx context.Context, key string) (value.Value, error)
	SetOption(ctx context.Context, key string, v value.Value) error

	// Branch returns a view restricted to the subtree rooted at id
	// (and/or path)
	Branch(ctx context.Context, id value.Id, path string) (Backend, error)

	Root(ctx context.Context, proj filter.Projection) (fsentry.Entry, error)

	Filter(ctx context.Context, f filter.Filter, opts filter.Options, out filter.Output) (EntryIter, error)

	Update(ctx context.Context, events fsevent.Iterator) (applied int, err error)

	Report(ctx context.Context, f filter.Filter, groupBy []string, opts filter.Options, out filter.Output) (EntryIter, error)

	GetInfo(ctx context.Context, flags InfoFlags) (map[string]value.Value, error)
	SetInfo(ctx context.Context, info map[string]value.Value, flags InfoFlags) error

	GetAttribute(ctx context.Context, flags uint32, ctxValue value.Value, pairs []string) (map[string]value.Value, error)

	Destroy(ctx context.Context) error
}

// Plugin is a named, versioned unit carrying a capability bitmask.
type Plugin interface {
	Name() string
	Version() string
	Capabilities() Capability
}

// Predicate/Action tokens let a backend plugin delegate CLI predicate
// parsing without the framework needing to know the concrete AST a
// caller's CLI uses.
type TokenKind int

const (
	TokenUnknown TokenKind = iota
	TokenPredicate
	TokenAction
)

// BackendPlugin is the construction-time contract a backend
// implementation registers.
type BackendPlugin interface {
	Plugin

	New(ctx context.Context, uri URI, config map[string]value.Value, readOnly bool) (Backend, error)

	// CheckValidToken lets a CLI delegate parsing of one predicate/action
	// token to the plugin that understands it best.
	CheckValidToken(token string) TokenKind

	// BuildFilter translates one CLI predicate starting at argv[*i] into
	// a Filter node, advancing *i past the tokens it consumed.
	BuildFilter(argv []string, i *int, needPrefetch *bool) (filter.Filter, error)

	// FillEntryInfo renders one directive (e.g. "%p") for e into buf,
	// returning the number of bytes written or -1 on overflow.
	FillEntryInfo(buf []byte, e fsentry.Entry, directive string) int

	DeleteEntry(ctx context.Context, e fsentry.Entry) error
}
