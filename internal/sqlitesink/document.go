// Package sqlitesink implements the embedded single-node mirror — the
// mongo sink's document-per-inode shape persisted without a separate
// server process: one SQLite database, an entries table
// keyed by inode id and a namespace table of {parent_id, name, xattrs}
// rows for hardlinks, using database/sql with the mattn/go-sqlite3
// driver the way the mongo sink uses the mongo driver for the
// server-backed case.
package sqlitesink

import (
	"encoding/json"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// jsonValue mirrors value.Value as a shape encoding/json can round-trip
// through a TEXT column, the same projection mongosink.valueToBSON does
// for BSON.
type jsonValue struct {
	Tag int             `json:"t"`
	Bin []byte          `json:"b,omitempty"`
	U64 uint64          `json:"u,omitempty"`
	I64 int64           `json:"i,omitempty"`
	Str string          `json:"s,omitempty"`
	Flg uint32          `json:"f,omitempty"`
	Bool bool           `json:"o,omitempty"`
	Seq []jsonValue     `json:"q,omitempty"`
	Map map[string]jsonValue `json:"m,omitempty"`
}

func toJSONValue(v value.Value) jsonValue {
	jv := jsonValue{Tag: int(v.Tag)}
	switch v.Tag {
	case value.TagBinary:
		jv.Bin = v.Bin
	case value.TagUint32, value.TagUint64:
		jv.U64 = v.U64
		if v.Tag == value.TagUint32 {
			jv.U64 = uint64(v.U32)
		}
	case value.TagInt32, value.TagInt64:
		jv.I64 = v.I64
		if v.Tag == value.TagInt32 {
			jv.I64 = int64(v.I32)
		}
	case value.TagString:
		jv.Str = v.Str
	case value.TagBoolean:
		jv.Bool = v.Bool
	case value.TagRegex:
		jv.Str, jv.Flg = v.Str, v.Flags
	case value.TagSequence:
		jv.Seq = make([]jsonValue, len(v.Seq))
		for i, e := range v.Seq {
			jv.Seq[i] = toJSONValue(e)
		}
	case value.TagMap:
		jv.Map = toJSONMap(v.Map)
	}
	return jv
}

func toJSONMap(m map[string]value.Value) map[string]jsonValue {
	if m == nil {
		return nil
	}
	out := make(map[string]jsonValue, len(m))
	for k, v := range m {
		out[k] = toJSONValue(v)
	}
	return out
}

func fromJSONValue(jv jsonValue) value.Value {
	switch value.Tag(jv.Tag) {
	case value.TagBinary:
		return value.Binary(jv.Bin)
	case value.TagUint32:
		return value.Uint32(uint32(jv.U64))
	case value.TagUint64:
		return value.Uint64(jv.U64)
	case value.TagInt32:
		return value.Int32(int32(jv.I64))
	case value.TagInt64:
		return value.Int64(jv.I64)
	case value.TagString:
		return value.String(jv.Str)
	case value.TagBoolean:
		return value.Boolean(jv.Bool)
	case value.TagRegex:
		return value.Regex(jv.Str, jv.Flg)
	case value.TagSequence:
		seq := make([]value.Value, len(jv.Seq))
		for i, e := range jv.Seq {
			seq[i] = fromJSONValue(e)
		}
		return value.Sequence(seq)
	case value.TagMap:
		return value.Map(fromJSONMap(jv.Map))
	default:
		return value.Value{}
	}
}

func fromJSONMap(m map[string]jsonValue) map[string]value.Value {
	if m == nil {
		return nil
	}
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		out[k] = fromJSONValue(v)
	}
	return out
}

// marshalXattrs/unmarshalXattrs cross encoding/json's TEXT boundary for
// a whole xattr map in one column.
func marshalXattrs(m map[string]value.Value) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(toJSONMap(m))
	if err != nil {
		return ""
	}
	return string(b)
}

func unmarshalXattrs(s string) map[string]value.Value {
	if s == "" {
		return nil
	}
	var jm map[string]jsonValue
	if err := json.Unmarshal([]byte(s), &jm); err != nil {
		return nil
	}
	return fromJSONMap(jm)
}

func marshalStatx(stx fsentry.Statx) string {
	m := map[string]interface{}{"mask": stx.Mask}
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
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

func unmarshalStatx(s string) fsentry.Statx {
	var stx fsentry.Statx
	if s == "" {
		return stx
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return stx
	}
	if mask, ok := m["mask"].(float64); ok {
		stx.Mask = fsentry.StatxMask(mask)
	}
	if mode, ok := m["mode"].(float64); ok {
		stx.Mode = uint16(mode)
	}
	if uid, ok := m["uid"].(float64); ok {
		stx.UID = uint32(uid)
	}
	if gid, ok := m["gid"].(float64); ok {
		stx.GID = uint32(gid)
	}
	if atime, ok := m["atime"].(float64); ok {
		stx.Atime.Sec = int64(atime)
	}
	if mtime, ok := m["mtime"].(float64); ok {
		stx.Mtime.Sec = int64(mtime)
	}
	if ctime, ok := m["ctime"].(float64); ok {
		stx.Ctime.Sec = int64(ctime)
	}
	if btime, ok := m["btime"].(float64); ok {
		stx.Btime.Sec = int64(btime)
	}
	if size, ok := m["size"].(float64); ok {
		stx.Size = uint64(size)
	}
	if blocks, ok := m["blocks"].(float64); ok {
		stx.Blocks = uint64(blocks)
	}
	if nlink, ok := m["nlink"].(float64); ok {
		stx.Nlink = uint32(nlink)
	}
	if typ, ok := m["type"].(float64); ok {
		stx.Type = fsentry.FileType(uint8(typ))
	}
	if ino, ok := m["ino"].(float64); ok {
		stx.Ino = uint64(ino)
	}
	return stx
}
