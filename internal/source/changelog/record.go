// Package changelog implements the Lustre MDT changelog source: it
// reads changelog records, expands each into a batch of fsevents, and
// acknowledges changelogs only after the whole batch has been durably
// applied by the sink.
package changelog

// RecordType enumerates the Lustre changelog record types this source
// understands. Concrete llapi_* decoding stays behind the Reader
// interface, which hands us already-decoded Records.
type RecordType int

const (
	RecCreate RecordType = iota
	RecMkdir
	RecSetattr
	RecClose
	RecMtime
	RecCtime
	RecAtime
	RecSetxattr
	RecSoftlink
	RecHardlink
	RecMknod
	RecUnlink
	RecRmdir
	RecRename
	RecHSM
	RecTrunc
	RecLayout
	RecFLRW
	RecResync
	RecMigrate
	RecMark
	RecExt
	RecOpen
	RecXattrDeprecated
	RecGetxattr
	RecDNOpen
)

// skipped reports whether a record type produces no fsevents at all
// (MARK, EXT, OPEN, the deprecated XATTR, GETXATTR, DN_OPEN).
func (t RecordType) skipped() bool {
	switch t {
	case RecMark, RecExt, RecOpen, RecXattrDeprecated, RecGetxattr, RecDNOpen:
		return true
	default:
		return false
	}
}

// Record is one decoded Lustre changelog entry.
type Record struct {
	Index int64
	Type  RecordType
	Ctime int64

	TargetFID []byte
	ParentFID []byte
	// SourceFID/SourceParentFID are populated for RENAME/MIGRATE, which
	// move an entry from one (parent, name) to another.
	SourceFID       []byte
	SourceParentFID []byte

	Name       string
	SourceName string

	// XattrName/XattrValue are populated for SETXATTR.
	XattrName  string
	XattrValue []byte

	// LastLink reports whether an UNLINK/RMDIR removed the last
	// remaining link to TargetFID; Overwrite reports whether a RENAME
	// replaced an existing entry at its destination.
	LastLink  bool
	Overwrite bool
	// HSMArchived reports whether the filesystem still has an HSM copy
	// of the entry, which governs UNLINK vs PARTIAL_UNLINK.
	HSMArchived bool

	MDTIndex uint32
}

// Reader abstracts llapi_changelog_start/recv/clear.
type Reader interface {
	// Recv blocks for the next record, or returns rherr.NoMoreData /
	// a fail-fast backend error.
	Recv() (Record, error)
	// Clear acknowledges every record up to and including index for
	// (mdt, user), i.e. llapi_changelog_clear.
	Clear(mdt, user string, index int64) error
	Close() error
}
