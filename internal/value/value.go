// Package value implements the tagged-union Value tree
// and the opaque Id type used throughout fsentry/fsevent.
package value

import "bytes"

// Tag identifies which field of Value is meaningful.
type Tag int

const (
	TagBinary Tag = iota
	TagUint32
	TagUint64
	TagInt32
	TagInt64
	TagString
	TagBoolean
	TagRegex
	TagSequence
	TagMap
)

// Value is a tagged union over the scalar, binary, string, sequence and
// map shapes a walker or enricher can produce. Sequences and maps own
// their storage; when built during one iteration step that storage may
// come from an sstack.Arena (see internal/sstack), in which case the
// Value is only valid until the arena is reset.
type Value struct {
	Tag Tag

	Bin   []byte
	U32   uint32
	U64   uint64
	I32   int32
	I64   int64
	Str   string
	Bool  bool
	Flags uint32 // regex flags, only meaningful when Tag == TagRegex

	Seq []Value
	Map map[string]Value
}

func Binary(b []byte) Value    { return Value{Tag: TagBinary, Bin: b} }
func Uint32(v uint32) Value    { return Value{Tag: TagUint32, U32: v} }
func Uint64(v uint64) Value    { return Value{Tag: TagUint64, U64: v} }
func Int32(v int32) Value      { return Value{Tag: TagInt32, I32: v} }
func Int64(v int64) Value      { return Value{Tag: TagInt64, I64: v} }
func String(s string) Value    { return Value{Tag: TagString, Str: s} }
func Boolean(b bool) Value     { return Value{Tag: TagBoolean, Bool: b} }
func Sequence(v []Value) Value { return Value{Tag: TagSequence, Seq: v} }
func Map(m map[string]Value) Value { return Value{Tag: TagMap, Map: m} }

func Regex(pattern string, flags uint32) Value {
	return Value{Tag: TagRegex, Str: pattern, Flags: flags}
}

// Equal reports structural equality.
func Equal(a, b Value) bool {
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case TagBinary:
		return bytes.Equal(a.Bin, b.Bin)
	case TagUint32:
		return a.U32 == b.U32
	case TagUint64:
		return a.U64 == b.U64
	case TagInt32:
		return a.I32 == b.I32
	case TagInt64:
		return a.I64 == b.I64
	case TagString:
		return a.Str == b.Str
	case TagBoolean:
		return a.Bool == b.Bool
	case TagRegex:
		return a.Str == b.Str && a.Flags == b.Flags
	case TagSequence:
		if len(a.Seq) != len(b.Seq) {
			return false
		}
		for i := range a.Seq {
			if !Equal(a.Seq[i], b.Seq[i]) {
				return false
			}
		}
		return true
	case TagMap:
		if len(a.Map) != len(b.Map) {
			return false
		}
		for k, av := range a.Map {
			bv, ok := b.Map[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Id is an opaque byte string plus a small backend tag, derived from a
// kernel file handle for the POSIX/Lustre backend so the same
// inode can later be reopened without holding a file descriptor.
type Id struct {
	Backend uint8
	Bytes   []byte
}

// RootParent is the sentinel "root parent id": the empty byte string.
var RootParent = Id{}

// Empty reports whether id is the root-parent sentinel.
func (id Id) Empty() bool { return len(id.Bytes) == 0 }

// Equal compares ids as byte strings; the backend tag is metadata, not
// part of identity.
func (id Id) Equal(other Id) bool { return bytes.Equal(id.Bytes, other.Bytes) }

// String renders the id for logs/errors; never used for identity.
func (id Id) String() string {
	if id.Empty() {
		return "<root>"
	}
	return string(id.Bytes)
}
