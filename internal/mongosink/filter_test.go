package mongosink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

func TestTranslateFilterEq(t *testing.T) {
	f := filter.Compare("statx.size", filter.OpEq, value.Uint64(1024))
	m, err := translateFilter(f)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"statx.size": uint64(1024)}, m)
}

func TestTranslateFilterAndOr(t *testing.T) {
	f := filter.And(
		filter.Compare("statx.size", filter.OpGt, value.Uint64(0)),
		filter.Or(
			filter.Compare("namespace.name", filter.OpEq, value.String("a")),
			filter.Compare("namespace.name", filter.OpEq, value.String("b")),
		),
	)
	m, err := translateFilter(f)
	require.NoError(t, err)
	and, ok := m["$and"].(bson.A)
	require.True(t, ok)
	require.Len(t, and, 2)
	orClause, ok := and[1].(bson.M)
	require.True(t, ok)
	or, ok := orClause["$or"].(bson.A)
	require.True(t, ok)
	assert.Len(t, or, 2)
}

func TestTranslateFilterNot(t *testing.T) {
	f := filter.Not(filter.Compare("namespace.xattrs.rm_time", filter.OpExists, value.Value{}))
	m, err := translateFilter(f)
	require.NoError(t, err)
	nor, ok := m["$nor"].(bson.A)
	require.True(t, ok)
	require.Len(t, nor, 1)
	inner := nor[0].(bson.M)
	assert.Equal(t, bson.M{"$exists": true}, inner["namespace.xattrs.rm_time"])
}

func TestTranslateFilterBitsExpr(t *testing.T) {
	f := filter.Compare("inode_xattrs.flags", filter.OpBitsAnySet, value.Uint32(4))
	m, err := translateFilter(f)
	require.NoError(t, err)
	expr, ok := m["$expr"].(bson.M)
	require.True(t, ok)
	clause, ok := expr["$bitsAnySet"].(bson.A)
	require.True(t, ok)
	assert.Equal(t, "$inode_xattrs.flags", clause[0])
	assert.Equal(t, uint32(4), clause[1])
}

func TestTranslateFilterRegex(t *testing.T) {
	f := filter.Compare("namespace.name", filter.OpRegex, value.Regex("^foo", 1))
	m, err := translateFilter(f)
	require.NoError(t, err)
	clause, ok := m["namespace.name"].(bson.M)
	require.True(t, ok)
	re, ok := clause["$regex"].(primitive.Regex)
	require.True(t, ok)
	assert.Equal(t, "^foo", re.Pattern)
	assert.Equal(t, "i", re.Options)
}

func TestTranslateFilterUnknownOp(t *testing.T) {
	_, err := translateFilter(filter.Filter{Op: filter.Op(999)})
	assert.Error(t, err)
}
