package sqlitesink

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

func sampleRow() row {
	return row{
		id:        []byte("inode-1"),
		hasParent: true,
		parentID:  []byte("root"),
		name:      "file.txt",
		nsXattrs:  map[string]value.Value{"path": value.String("/file.txt")},
		inodeXattrs: map[string]value.Value{
			"flags": value.Uint32(0b0101),
		},
		statx: map[string]value.Value{"size": value.Uint64(2048)},
	}
}

func TestEvalFilterEqOnNamespaceField(t *testing.T) {
	r := sampleRow()
	assert.True(t, evalFilter(filter.Compare("namespace.name", filter.OpEq, value.String("file.txt")), r))
	assert.False(t, evalFilter(filter.Compare("namespace.name", filter.OpEq, value.String("other")), r))
}

func TestEvalFilterExistsMissingParent(t *testing.T) {
	r := sampleRow()
	r.hasParent = false
	assert.False(t, evalFilter(filter.Compare("namespace.name", filter.OpExists, value.Value{}), r))
}

func TestEvalFilterNumericComparison(t *testing.T) {
	r := sampleRow()
	assert.True(t, evalFilter(filter.Compare("statx.size", filter.OpGt, value.Uint64(1024)), r))
	assert.False(t, evalFilter(filter.Compare("statx.size", filter.OpLt, value.Uint64(1024)), r))
	assert.True(t, evalFilter(filter.Compare("statx.size", filter.OpLe, value.Uint64(2048)), r))
}

func TestEvalFilterBitOps(t *testing.T) {
	r := sampleRow()
	assert.True(t, evalFilter(filter.Compare("inode_xattrs.flags", filter.OpBitsAnySet, value.Uint32(0b0100)), r))
	assert.False(t, evalFilter(filter.Compare("inode_xattrs.flags", filter.OpBitsAllSet, value.Uint32(0b1100)), r))
	assert.True(t, evalFilter(filter.Compare("inode_xattrs.flags", filter.OpBitsAllClear, value.Uint32(0b1010)), r))
}

func TestEvalFilterAndOrNot(t *testing.T) {
	r := sampleRow()
	f := filter.And(
		filter.Compare("namespace.name", filter.OpEq, value.String("file.txt")),
		filter.Not(filter.Compare("statx.size", filter.OpEq, value.Uint64(0))),
	)
	assert.True(t, evalFilter(f, r))

	assert.False(t, evalFilter(filter.Filter{Op: filter.OpOr}, r), "an OR with no children has no clause that can match")
}

func TestEvalFilterRegex(t *testing.T) {
	r := sampleRow()
	assert.True(t, evalFilter(filter.Compare("namespace.name", filter.OpRegex, value.Regex("^file", 0)), r))
	assert.False(t, evalFilter(filter.Compare("namespace.name", filter.OpRegex, value.Regex("^dir", 0)), r))
}

func TestEvalFilterMissingFieldIsFalse(t *testing.T) {
	r := sampleRow()
	assert.False(t, evalFilter(filter.Compare("inode_xattrs.nope", filter.OpEq, value.String("x")), r))
}
