package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/sstack"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

type fakeSource struct {
	events []fsevent.Event
	i      int
	closed bool
}

func (s *fakeSource) Next() (fsevent.Event, error) {
	if s.i >= len(s.events) {
		return fsevent.Event{}, rherr.New(rherr.NoMoreData, "exhausted")
	}
	e := s.events[s.i]
	s.i++
	return e, nil
}

func (s *fakeSource) Close() error { s.closed = true; return nil }

type fakeOpener struct {
	statx   fsentry.Statx
	target  string
	err     error
	closed  int
	opened  []value.Id
}

func (o *fakeOpener) Open(id value.Id) (int, fsentry.Statx, func() error, error) {
	if o.err != nil {
		return 0, fsentry.Statx{}, func() error { return nil }, o.err
	}
	o.opened = append(o.opened, id)
	return 3, o.statx, func() error { o.closed++; return nil }, nil
}

func (o *fakeOpener) Readlink(fd int) (string, error) { return o.target, nil }

type fakeExtension struct {
	name  string
	pairs map[string]value.Value
	err   error
}

func (e *fakeExtension) Name() string { return e.name }

func (e *fakeExtension) EnrichEvent(fd int, statx fsentry.Statx, arena *sstack.Arena) (map[string]value.Value, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.pairs, nil
}

func TestPipelinePassesThroughEventsWithoutHints(t *testing.T) {
	src := &fakeSource{events: []fsevent.Event{{Type: fsevent.Delete, ID: value.Id{Bytes: []byte("I")}}}}
	opener := &fakeOpener{}
	p := NewPipeline(src, opener, nil, false)

	ev, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, fsevent.Delete, ev.Type)
	assert.Empty(t, opener.opened, "opener should not be called when no hint is present")
}

func TestPipelineResolvesStatxHint(t *testing.T) {
	stx := fsentry.Statx{Mask: fsentry.StatxSize, Size: 99}
	src := &fakeSource{events: []fsevent.Event{{
		Type:   fsevent.Upsert,
		ID:     value.Id{Bytes: []byte("I")},
		Xattrs: map[string]value.Value{"rbh-fsevents.statx": value.Boolean(true)},
	}}}
	opener := &fakeOpener{statx: stx}
	p := NewPipeline(src, opener, nil, false)

	ev, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, ev.Statx)
	assert.Equal(t, uint64(99), ev.Statx.Size)
	assert.False(t, ev.Pending())
	assert.Equal(t, 1, opener.closed)
}

func TestPipelineResolvesSymlinkHint(t *testing.T) {
	src := &fakeSource{events: []fsevent.Event{{
		Type:   fsevent.Upsert,
		ID:     value.Id{Bytes: []byte("L")},
		Xattrs: map[string]value.Value{"rbh-fsevents.symlink": value.Boolean(true)},
	}}}
	opener := &fakeOpener{statx: fsentry.Statx{Mask: fsentry.StatxSize, Size: 6}, target: "../dst"}
	p := NewPipeline(src, opener, nil, false)

	ev, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, ev.Symlink)
	assert.Equal(t, "../dst", *ev.Symlink)
	assert.False(t, ev.Pending())
}

func TestPipelineRunsExtensionAndMergesXattrs(t *testing.T) {
	src := &fakeSource{events: []fsevent.Event{{
		Type:   fsevent.Xattr,
		ID:     value.Id{Bytes: []byte("I")},
		Xattrs: map[string]value.Value{"rbh-fsevents.lustre": value.Boolean(true)},
	}}}
	ext := &fakeExtension{name: "lustre", pairs: map[string]value.Value{"fid": value.Binary([]byte("F"))}}
	p := NewPipeline(src, &fakeOpener{}, map[string]Extension{"lustre": ext}, false)

	ev, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, value.Binary([]byte("F")), ev.InodeXattrs["fid"])
	assert.False(t, ev.Pending())
}

func TestPipelineOnlyOpensOncePerEventForMultipleHints(t *testing.T) {
	src := &fakeSource{events: []fsevent.Event{{
		Type: fsevent.Xattr,
		ID:   value.Id{Bytes: []byte("I")},
		Xattrs: map[string]value.Value{
			"rbh-fsevents.statx":  value.Boolean(true),
			"rbh-fsevents.lustre": value.Boolean(true),
		},
	}}}
	ext := &fakeExtension{name: "lustre", pairs: map[string]value.Value{"fid": value.Binary([]byte("F"))}}
	opener := &fakeOpener{}
	p := NewPipeline(src, opener, map[string]Extension{"lustre": ext}, false)

	_, err := p.Next()
	require.NoError(t, err)
	assert.Len(t, opener.opened, 1)
}

func TestPipelineSkipsStaleEntriesWhenSkipErrorSet(t *testing.T) {
	src := &fakeSource{events: []fsevent.Event{
		{Type: fsevent.Upsert, ID: value.Id{Bytes: []byte("gone")}, Xattrs: map[string]value.Value{"rbh-fsevents.statx": value.Boolean(true)}},
		{Type: fsevent.Delete, ID: value.Id{Bytes: []byte("ok")}},
	}}
	opener := &fakeOpener{err: rherr.New(rherr.Stale, "vanished")}
	p := NewPipeline(src, opener, nil, true)

	// The first event's opener fails with Stale; skip_error means the
	// pipeline moves on to the next event instead of surfacing the error.
	ev, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, fsevent.Delete, ev.Type)
}

func TestPipelineSurfacesStaleErrorWithoutSkipError(t *testing.T) {
	src := &fakeSource{events: []fsevent.Event{
		{Type: fsevent.Upsert, ID: value.Id{Bytes: []byte("gone")}, Xattrs: map[string]value.Value{"rbh-fsevents.statx": value.Boolean(true)}},
	}}
	opener := &fakeOpener{err: rherr.New(rherr.Stale, "vanished")}
	p := NewPipeline(src, opener, nil, false)

	_, err := p.Next()
	assert.True(t, rherr.Is(err, rherr.Stale))
}

func TestPipelineCloseDrainsSource(t *testing.T) {
	src := &fakeSource{}
	p := NewPipeline(src, &fakeOpener{}, nil, false)
	require.NoError(t, p.Close())
	assert.True(t, src.closed)
}
