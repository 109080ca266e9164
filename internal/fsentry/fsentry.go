// Package fsentry implements the canonical per-inode document: id,
// parent, name, a statx subset, namespace/inode xattrs and an optional
// symlink target.
package fsentry

import (
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// Mask bits record which fsentry fields are present, so a partial
// entry (a projection, an event payload) is distinguishable from one
// whose fields are genuinely zero.
type Mask uint32

const (
	MaskID Mask = 1 << iota
	MaskParentID
	MaskName
	MaskStatx
	MaskNsXattrs
	MaskInodeXattrs
	MaskSymlink
)

// Has reports whether every bit in want is set in m.
func (m Mask) Has(want Mask) bool { return m&want == want }

// FileType enumerates the statx file type subset robinhood cares about.
type FileType uint8

const (
	TypeUnknown FileType = iota
	TypeRegular
	TypeDirectory
	TypeSymlink
	TypeFIFO
	TypeBlockDev
	TypeCharDev
	TypeSocket
)

// Statx mirrors the Linux statx fields this project persists, each
// independently present/absent Presence is tracked by
// StatxMask, a second mask scoped to this substructure.
type StatxMask uint32

const (
	StatxMode StatxMask = 1 << iota
	StatxUID
	StatxGID
	StatxAtime
	StatxMtime
	StatxCtime
	StatxBtime
	StatxSize
	StatxBlocks
	StatxNlink
	StatxDev
	StatxRdev
	StatxIno
	StatxType
	StatxMountID
)

type Timespec struct {
	Sec  int64
	Nsec int32
}

type Statx struct {
	Mask   StatxMask
	Mode   uint16
	UID    uint32
	GID    uint32
	Atime  Timespec
	Mtime  Timespec
	Ctime  Timespec
	Btime  Timespec
	Size   uint64
	Blocks uint64
	Nlink  uint32
	Dev    uint64
	Rdev   uint64
	Ino    uint64
	Type   FileType
	MountID uint64
}

// Entry is the fsentry document. Callers that build one enforce the
// namespace invariants: the root entry has an empty ParentID and empty
// Name; every non-root entry has both.
type Entry struct {
	Mask Mask

	ID       value.Id
	ParentID value.Id
	Name     string

	Statx Statx

	NsXattrs    map[string]value.Value
	InodeXattrs map[string]value.Value

	Symlink string
}

// IsRoot reports whether e is the root of a walk/branch: empty parent
// id and empty name, per the walker's forced edge case.
func (e *Entry) IsRoot() bool {
	return e.ParentID.Empty() && e.Name == ""
}

// Path returns the "path" namespace xattr, which every in-memory
// walker-produced entry must carry.
func (e *Entry) Path() (string, bool) {
	if e.NsXattrs == nil {
		return "", false
	}
	v, ok := e.NsXattrs["path"]
	if !ok || v.Tag != value.TagString {
		return "", false
	}
	return v.Str, true
}

// NbChildren reads inode_xattrs.nb_children for a directory entry.
func (e *Entry) NbChildren() (int64, bool) {
	if e.InodeXattrs == nil {
		return 0, false
	}
	v, ok := e.InodeXattrs["nb_children"]
	if !ok || v.Tag != value.TagInt64 {
		return 0, false
	}
	return v.I64, true
}
