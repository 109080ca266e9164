package yamlsrc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

const sampleStream = `---
type: LINK
id: I
parent_id: P
name: a
ns_xattrs:
  path: /a
---
type: UPSERT
id: I
statx:
  mode: 420
  size: 1024
  type: 1
---
type: XATTR
id: I
inode_xattrs:
  nb_children: 3
xattrs:
  rbh-fsevents.lustre: true
---
type: PARTIAL_UNLINK
id: I
rm_time: 1700000000
`

func TestNextDecodesEachDocumentAsOneEvent(t *testing.T) {
	s := New(strings.NewReader(sampleStream))

	link, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, fsevent.Link, link.Type)
	assert.Equal(t, []byte("I"), link.ID.Bytes)
	assert.Equal(t, []byte("P"), link.ParentID.Bytes)
	assert.Equal(t, "a", link.Name)
	assert.Equal(t, value.String("/a"), link.NsXattrs["path"])

	upsert, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, fsevent.Upsert, upsert.Type)
	require.NotNil(t, upsert.Statx)
	assert.Equal(t, uint64(1024), upsert.Statx.Size)

	xattr, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, fsevent.Xattr, xattr.Type)
	assert.Equal(t, int64(3), xattr.InodeXattrs["nb_children"].I64)
	assert.True(t, xattr.Pending(), "the lustre hint survives the round-trip")

	partial, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, fsevent.PartialUnlink, partial.Type)
	assert.Equal(t, int64(1700000000), partial.RmTime)

	_, err = s.Next()
	assert.True(t, rherr.Is(err, rherr.NoMoreData))
}

func TestNextRejectsUnknownEventType(t *testing.T) {
	s := New(strings.NewReader("type: FROBNICATE\nid: I\n"))
	_, err := s.Next()
	assert.True(t, rherr.Is(err, rherr.Invalid))
}

func TestNextSurfacesMalformedYAMLAsInvalid(t *testing.T) {
	s := New(strings.NewReader("type: [unclosed\n"))
	_, err := s.Next()
	assert.True(t, rherr.Is(err, rherr.Invalid))
}

func TestEmptyStreamIsImmediatelyExhausted(t *testing.T) {
	s := New(strings.NewReader(""))
	_, err := s.Next()
	assert.True(t, rherr.Is(err, rherr.NoMoreData))
}
