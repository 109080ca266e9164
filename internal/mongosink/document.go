// Package mongosink implements the MongoDB mirror:
// one document per inode keyed by _id, a namespace array of
// {parent_id, name, xattrs} sub-documents for hardlinks, bulk fsevent
// application, and the info/log collections.
package mongosink

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// NamespaceEntry is one {parent_id, name, xattrs} sub-document. At most
// one entry exists per (ParentID, Name) pair.
type NamespaceEntry struct {
	ParentID []byte                 `bson:"parent_id"`
	Name     string                 `bson:"name"`
	Xattrs   map[string]interface{} `bson:"xattrs,omitempty"`
}

// Document is the on-disk shape of one inode.
type Document struct {
	ID          []byte                 `bson:"_id"`
	Statx       map[string]interface{} `bson:"statx,omitempty"`
	Symlink     string                 `bson:"symlink,omitempty"`
	Namespace   []NamespaceEntry       `bson:"namespace,omitempty"`
	InodeXattrs map[string]interface{} `bson:"inode_xattrs,omitempty"`
}

// valueToBSON projects a value.Value into a plain Go value mongo-driver
// can marshal directly (bson.A for sequences, bson.M for maps).
func valueToBSON(v value.Value) interface{} {
	switch v.Tag {
	case value.TagBinary:
		return v.Bin
	case value.TagUint32:
		return v.U32
	case value.TagUint64:
		return v.U64
	case value.TagInt32:
		return v.I32
	case value.TagInt64:
		return v.I64
	case value.TagString:
		return v.Str
	case value.TagBoolean:
		return v.Bool
	case value.TagRegex:
		return primitiveRegex(v.Str, v.Flags)
	case value.TagSequence:
		out := make(bson.A, len(v.Seq))
		for i, e := range v.Seq {
			out[i] = valueToBSON(e)
		}
		return out
	case value.TagMap:
		return xattrsToBSON(v.Map)
	default:
		return nil
	}
}

func xattrsToBSON(m map[string]value.Value) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = valueToBSON(v)
	}
	return out
}

func primitiveRegex(pattern string, flags uint32) interface{} {
	opts := ""
	if flags&1 != 0 {
		opts += "i"
	}
	return primitive.Regex{Pattern: pattern, Options: opts}
}

func statxToBSON(stx fsentry.Statx) map[string]interface{} {
	m := map[string]interface{}{}
	if stx.Mask&fsentry.StatxMode != 0 {
		m["mode"] = stx.Mode
	}
	if stx.Mask&fsentry.StatxUID != 0 {
		m["uid"] = stx.UID
	}
	if stx.Mask&fsentry.StatxGID != 0 {
		m["gid"] = stx.GID
	}
	if stx.Mask&fsentry.StatxAtime != 0 {
		m["atime"] = stx.Atime.Sec
	}
	if stx.Mask&fsentry.StatxMtime != 0 {
		m["mtime"] = stx.Mtime.Sec
	}
	if stx.Mask&fsentry.StatxCtime != 0 {
		m["ctime"] = stx.Ctime.Sec
	}
	if stx.Mask&fsentry.StatxBtime != 0 {
		m["btime"] = stx.Btime.Sec
	}
	if stx.Mask&fsentry.StatxSize != 0 {
		m["size"] = stx.Size
	}
	if stx.Mask&fsentry.StatxBlocks != 0 {
		m["blocks"] = stx.Blocks
	}
	if stx.Mask&fsentry.StatxNlink != 0 {
		m["nlink"] = stx.Nlink
	}
	if stx.Mask&fsentry.StatxType != 0 {
		m["type"] = uint8(stx.Type)
	}
	if stx.Mask&fsentry.StatxIno != 0 {
		m["ino"] = stx.Ino
	}
	return m
}

// statxFromBSON is the inverse of statxToBSON: it rebuilds the partial
// statx from a stored sub-document, setting only the mask bits for
// fields actually present.
func statxFromBSON(m map[string]interface{}) fsentry.Statx {
	var stx fsentry.Statx
	setU64 := func(key string, bit fsentry.StatxMask, dst *uint64) {
		if v, ok := m[key]; ok {
			*dst = uint64(bsonNumeric(v))
			stx.Mask |= bit
		}
	}
	if v, ok := m["mode"]; ok {
		stx.Mode = uint16(bsonNumeric(v))
		stx.Mask |= fsentry.StatxMode
	}
	if v, ok := m["uid"]; ok {
		stx.UID = uint32(bsonNumeric(v))
		stx.Mask |= fsentry.StatxUID
	}
	if v, ok := m["gid"]; ok {
		stx.GID = uint32(bsonNumeric(v))
		stx.Mask |= fsentry.StatxGID
	}
	if v, ok := m["atime"]; ok {
		stx.Atime.Sec = bsonNumeric(v)
		stx.Mask |= fsentry.StatxAtime
	}
	if v, ok := m["mtime"]; ok {
		stx.Mtime.Sec = bsonNumeric(v)
		stx.Mask |= fsentry.StatxMtime
	}
	if v, ok := m["ctime"]; ok {
		stx.Ctime.Sec = bsonNumeric(v)
		stx.Mask |= fsentry.StatxCtime
	}
	if v, ok := m["btime"]; ok {
		stx.Btime.Sec = bsonNumeric(v)
		stx.Mask |= fsentry.StatxBtime
	}
	setU64("size", fsentry.StatxSize, &stx.Size)
	setU64("blocks", fsentry.StatxBlocks, &stx.Blocks)
	setU64("ino", fsentry.StatxIno, &stx.Ino)
	if v, ok := m["nlink"]; ok {
		stx.Nlink = uint32(bsonNumeric(v))
		stx.Mask |= fsentry.StatxNlink
	}
	if v, ok := m["type"]; ok {
		stx.Type = fsentry.FileType(bsonNumeric(v))
		stx.Mask |= fsentry.StatxType
	}
	return stx
}

// bsonNumeric flattens the numeric shapes the driver may decode into a
// bson.M (int32/int64/float64, plus the Go types our own marshal used).
func bsonNumeric(v interface{}) int64 {
	switch t := v.(type) {
	case int32:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case uint8:
		return int64(t)
	default:
		return 0
	}
}

// toEntry converts a stored Document (plus one namespace entry picked
// by the $unwind stage) back into an fsentry.Entry for Filter results.
func toEntry(d Document, ns *NamespaceEntry) fsentry.Entry {
	e := fsentry.Entry{
		Mask: fsentry.MaskID,
		ID:   value.Id{Bytes: d.ID},
	}
	if ns != nil {
		e.Mask |= fsentry.MaskParentID | fsentry.MaskName
		e.ParentID = value.Id{Bytes: ns.ParentID}
		e.Name = ns.Name
		if ns.Xattrs != nil {
			e.NsXattrs = fromBSONMap(ns.Xattrs)
			e.Mask |= fsentry.MaskNsXattrs
		}
	}
	if d.InodeXattrs != nil {
		e.InodeXattrs = fromBSONMap(d.InodeXattrs)
		e.Mask |= fsentry.MaskInodeXattrs
	}
	if d.Symlink != "" {
		e.Symlink = d.Symlink
		e.Mask |= fsentry.MaskSymlink
	}
	return e
}

func fromBSONMap(m map[string]interface{}) map[string]value.Value {
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		out[k] = fromBSONValue(v)
	}
	return out
}

func fromBSONValue(v interface{}) value.Value {
	switch t := v.(type) {
	case string:
		return value.String(t)
	case bool:
		return value.Boolean(t)
	case int32:
		return value.Int32(t)
	case int64:
		return value.Int64(t)
	case uint32:
		return value.Uint32(t)
	case uint64:
		return value.Uint64(t)
	case []byte:
		return value.Binary(t)
	case bson.A:
		seq := make([]value.Value, len(t))
		for i, e := range t {
			seq[i] = fromBSONValue(e)
		}
		return value.Sequence(seq)
	case map[string]interface{}:
		return value.Map(fromBSONMap(t))
	default:
		return value.Value{}
	}
}
