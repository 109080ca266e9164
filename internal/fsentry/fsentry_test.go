package fsentry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

func TestMaskHas(t *testing.T) {
	m := MaskID | MaskName
	assert.True(t, m.Has(MaskID))
	assert.True(t, m.Has(MaskID|MaskName))
	assert.False(t, m.Has(MaskStatx))
}

func TestIsRoot(t *testing.T) {
	root := Entry{}
	assert.True(t, root.IsRoot())

	child := Entry{ParentID: value.Id{Bytes: []byte("p")}, Name: "a"}
	assert.False(t, child.IsRoot())
}

func TestPath(t *testing.T) {
	e := Entry{}
	_, ok := e.Path()
	assert.False(t, ok)

	e.NsXattrs = map[string]value.Value{"path": value.String("/a/b")}
	p, ok := e.Path()
	assert.True(t, ok)
	assert.Equal(t, "/a/b", p)

	e.NsXattrs["path"] = value.Int64(1)
	_, ok = e.Path()
	assert.False(t, ok, "wrong-typed path value must not be reported as present")
}

func TestNbChildren(t *testing.T) {
	e := Entry{}
	_, ok := e.NbChildren()
	assert.False(t, ok)

	e.InodeXattrs = map[string]value.Value{"nb_children": value.Int64(3)}
	n, ok := e.NbChildren()
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)
}
