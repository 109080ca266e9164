package mongosink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

func TestValueToBSONRoundTripsScalars(t *testing.T) {
	assert.Equal(t, uint32(7), valueToBSON(value.Uint32(7)))
	assert.Equal(t, "x", valueToBSON(value.String("x")))
	assert.Equal(t, true, valueToBSON(value.Boolean(true)))

	seq := valueToBSON(value.Sequence([]value.Value{value.Int32(1), value.Int32(2)}))
	assert.Equal(t, bson.A{int32(1), int32(2)}, seq)
}

func TestValueToBSONMapNests(t *testing.T) {
	m := valueToBSON(value.Map(map[string]value.Value{"a": value.Uint64(9)}))
	assert.Equal(t, map[string]interface{}{"a": uint64(9)}, m)
}

func TestStatxToBSONOnlyEmitsMaskedFields(t *testing.T) {
	stx := fsentry.Statx{Mask: fsentry.StatxSize | fsentry.StatxMode, Size: 100, Mode: 0o644}
	out := statxToBSON(stx)
	assert.Equal(t, uint64(100), out["size"])
	assert.Equal(t, uint16(0o644), out["mode"])
	_, hasUID := out["uid"]
	assert.False(t, hasUID)
}

func TestToEntryWithoutNamespaceKeepsOnlyInodeFields(t *testing.T) {
	d := Document{ID: []byte("I"), InodeXattrs: map[string]interface{}{"k": "v"}}
	e := toEntry(d, nil)
	assert.True(t, e.Mask.Has(fsentry.MaskID))
	assert.False(t, e.Mask.Has(fsentry.MaskParentID))
	assert.Equal(t, value.String("v"), e.InodeXattrs["k"])
}

func TestToEntryWithNamespaceSetsParentAndName(t *testing.T) {
	d := Document{ID: []byte("I")}
	ns := &NamespaceEntry{ParentID: []byte("P"), Name: "a", Xattrs: map[string]interface{}{"path": "/a"}}
	e := toEntry(d, ns)
	assert.True(t, e.Mask.Has(fsentry.MaskParentID|fsentry.MaskName|fsentry.MaskNsXattrs))
	assert.Equal(t, "a", e.Name)
	path, ok := e.Path()
	assert.True(t, ok)
	assert.Equal(t, "/a", path)
}

func TestFromBSONValueHandlesNestedSequenceAndMap(t *testing.T) {
	in := bson.A{int32(1), map[string]interface{}{"k": int64(2)}}
	out := fromBSONValue(in)
	assert.Equal(t, value.TagSequence, out.Tag)
	assert.Equal(t, value.Int32(1), out.Seq[0])
	assert.Equal(t, value.TagMap, out.Seq[1].Tag)
	assert.Equal(t, value.Int64(2), out.Seq[1].Map["k"])
}
