package posix

import (
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/sstack"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// EntryInfo is everything an Enricher may read about the entry being
// walked: the open fd, its statx, and the inode xattrs already
// collected by the base walker or an earlier enricher in the chain.
type EntryInfo struct {
	Fd               int
	Path             string // /proc/self/fd/<Fd>, handed out for convenience
	Statx            fsentry.Statx
	InodeXattrsSoFar map[string]value.Value
}

// EnrichFlags selects enricher sub-behaviors; concrete extensions define
// their own bit meanings (e.g. Lustre layout vs. HSM state).
type EnrichFlags uint32

// Enricher appends backend-specific typed xattrs for one walked entry.
// Implementations MUST allocate any owned value storage (strings, byte slices, sequences) from arena, whose
// contents remain valid only until the caller resets it.
type Enricher interface {
	Name() string
	Enrich(info EntryInfo, flags EnrichFlags, arena *sstack.Arena) (pairs map[string]value.Value, err error)
}
