package sqlitesink

import (
	"regexp"

	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// row is the flat field set one evalFilter call matches against: it
// names the same dotted fields mongosink's pipeline projects
// ("namespace.parent_id", "inode_xattrs.<k>", ...), evaluated in Go
// instead of compiled to a server-side query, since sqlite3 has no
// native document-path operators to delegate to.
type row struct {
	id          []byte
	hasParent   bool
	parentID    []byte
	name        string
	nsXattrs    map[string]value.Value
	inodeXattrs map[string]value.Value
	statx       map[string]value.Value
}

func (r row) field(name string) (value.Value, bool) {
	switch name {
	case "_id":
		return value.Binary(r.id), true
	case "namespace.parent_id":
		if !r.hasParent {
			return value.Value{}, false
		}
		return value.Binary(r.parentID), true
	case "namespace.name":
		if !r.hasParent {
			return value.Value{}, false
		}
		return value.String(r.name), true
	}
	if v, ok := lookupPrefixed(name, "namespace.xattrs.", r.nsXattrs); ok {
		return v, true
	}
	if v, ok := lookupPrefixed(name, "inode_xattrs.", r.inodeXattrs); ok {
		return v, true
	}
	if v, ok := lookupPrefixed(name, "statx.", r.statx); ok {
		return v, true
	}
	return value.Value{}, false
}

func lookupPrefixed(name, prefix string, m map[string]value.Value) (value.Value, bool) {
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return value.Value{}, false
	}
	v, ok := m[name[len(prefix):]]
	return v, ok
}

// evalFilter evaluates f against r, the in-process analogue of
// mongosink.translateFilter for a store
// with no server-side query engine to push predicates into.
func evalFilter(f filter.Filter, r row) bool {
	switch f.Op {
	case filter.OpAnd:
		for _, c := range f.Children {
			if !evalFilter(c, r) {
				return false
			}
		}
		return true
	case filter.OpOr:
		for _, c := range f.Children {
			if evalFilter(c, r) {
				return true
			}
		}
		return false
	case filter.OpNot:
		return !evalFilter(f.Children[0], r)
	case filter.OpExists:
		_, ok := r.field(f.Field)
		return ok
	}

	v, ok := r.field(f.Field)
	if !ok {
		return false
	}
	switch f.Op {
	case filter.OpEq:
		return value.Equal(v, f.Value)
	case filter.OpNe:
		return !value.Equal(v, f.Value)
	case filter.OpLt:
		return compareNumeric(v, f.Value) < 0
	case filter.OpLe:
		return compareNumeric(v, f.Value) <= 0
	case filter.OpGt:
		return compareNumeric(v, f.Value) > 0
	case filter.OpGe:
		return compareNumeric(v, f.Value) >= 0
	case filter.OpRegex:
		re, err := regexp.Compile(f.Value.Str)
		if err != nil {
			return false
		}
		return re.MatchString(stringOf(v))
	case filter.OpBitsAnySet:
		return uintOf(v)&uintOf(f.Value) != 0
	case filter.OpBitsAllSet:
		want := uintOf(f.Value)
		return uintOf(v)&want == want
	case filter.OpBitsAnyClear:
		return uintOf(v)&uintOf(f.Value) != uintOf(f.Value)
	case filter.OpBitsAllClear:
		return uintOf(v)&uintOf(f.Value) == 0
	default:
		return false
	}
}

func uintOf(v value.Value) uint64 {
	switch v.Tag {
	case value.TagUint32:
		return uint64(v.U32)
	case value.TagUint64:
		return v.U64
	case value.TagInt32:
		return uint64(v.I32)
	case value.TagInt64:
		return uint64(v.I64)
	default:
		return 0
	}
}

func compareNumeric(a, b value.Value) int {
	x, y := int64(uintOf(a)), int64(uintOf(b))
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func stringOf(v value.Value) string {
	if v.Tag == value.TagString {
		return v.Str
	}
	return ""
}
