package rhconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

func TestDefaultsOnEmptyTree(t *testing.T) {
	tr := New()
	assert.Equal(t, defaultMongoAddress, tr.MongoAddress())
	assert.Equal(t, defaultIterator, tr.Iterator("posix"))
	assert.Equal(t, defaultRetentionKey, tr.RetentionXattr())
	assert.Nil(t, tr.Enrichers("posix"))
}

func TestLoadFlattensNestedYAML(t *testing.T) {
	yamlDoc := []byte(`
mongo:
  address: mongodb://db1:27017
  cursor_timeout: 30
backends:
  posix:
    iterator: fts
    enrichers: [lustre, retention]
posix:
  retention_xattr: user.expires
`)
	tr, err := Load(yamlDoc)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db1:27017", tr.MongoAddress())
	assert.Equal(t, "fts", tr.Iterator("posix"))
	assert.Equal(t, []string{"lustre", "retention"}, tr.Enrichers("posix"))
	assert.Equal(t, "user.expires", tr.RetentionXattr())

	v, ok := tr.Get("mongo/cursor_timeout")
	require.True(t, ok)
	assert.Equal(t, int64(30), v.I64)
}

func TestSetOverridesGet(t *testing.T) {
	tr := New()
	tr.Set("mongo/address", value.String("mongodb://override:27017"))
	assert.Equal(t, "mongodb://override:27017", tr.MongoAddress())
}

func TestHasPrefix(t *testing.T) {
	tr := New()
	tr.Set("backends/posix/iterator", value.String("fts"))
	assert.True(t, tr.HasPrefix("backends/posix"))
	assert.False(t, tr.HasPrefix("backends/lustre"))
}

func TestAsMapCopiesValues(t *testing.T) {
	tr := New()
	tr.Set("a", value.String("b"))
	m := tr.AsMap()
	m["a"] = value.String("mutated")
	v, _ := tr.Get("a")
	assert.Equal(t, "b", v.Str, "AsMap must return a copy, not the live map")
}
