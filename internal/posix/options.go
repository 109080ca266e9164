package posix

// SyncType selects how statx's SYNC bits are combined into the request,
// mirroring robinhood's STATX_SYNC_TYPE option.
type SyncType int

const (
	SyncAsStat SyncType = iota // default: AT_STATX_SYNC_AS_STAT
	ForceSync                  // AT_STATX_FORCE_SYNC
	DontSync                   // AT_STATX_DONT_SYNC
)

// Options configures one Walker.
type Options struct {
	// SkipError makes per-entry stat/open/xattr failures non-fatal: the
	// entry is skipped with a warning instead of terminating the walk.
	SkipError bool

	StatxSync SyncType

	// XattrTypeMap lets a caller project a raw xattr byte value through
	// a configured type (e.g. "trusted.lov" -> binary, "user.count" ->
	// uint64) instead of the default "string" projection.
	XattrTypeMap map[string]XattrType

	// Enrichers is the ordered chain of extension enrichers run after
	// the base POSIX harvest for every visited entry.
	Enrichers []Enricher
}

// XattrType selects how a raw xattr byte value is projected into a
// typed Value.
type XattrType int

const (
	XattrString XattrType = iota
	XattrBinary
	XattrUint32
	XattrUint64
	XattrInt32
	XattrInt64
)
