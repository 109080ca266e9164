package changelog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// nbChildrenDelta sums every nb_children increment the batch applies to
// the given parent fid, the quantity the store-side invariant
// nb_children == max(0, links - unlinks) rides on.
func nbChildrenDelta(events []fsevent.Event, parent []byte) int64 {
	var delta int64
	for _, ev := range events {
		if ev.Type != fsevent.Xattr || string(ev.ID.Bytes) != string(parent) {
			continue
		}
		if ev.InodeXattrOps["nb_children"] == fsevent.OpInc {
			delta += ev.InodeXattrs["nb_children"].I64
		}
	}
	return delta
}

func TestExpandCreateEmitsLinkUpsertAndParentUpdates(t *testing.T) {
	rec := Record{
		Type:      RecCreate,
		TargetFID: []byte("T"),
		ParentFID: []byte("P"),
		Name:      "f",
	}
	events := Expand(rec)
	require.NotEmpty(t, events)

	assert.Equal(t, fsevent.Link, events[0].Type)
	assert.Equal(t, []byte("T"), events[0].ID.Bytes)
	assert.Equal(t, []byte("P"), events[0].ParentID.Bytes)
	assert.Equal(t, "f", events[0].Name)

	upsert := events[2]
	require.Equal(t, fsevent.Upsert, upsert.Type)
	assert.Zero(t, upsert.StatxMask&(fsentry.StatxUID|fsentry.StatxGID),
		"the changelog does not carry uid/gid; only SETATTR refreshes them")
	assert.NotZero(t, upsert.StatxMask&fsentry.StatxBlocks)
	assert.NotZero(t, upsert.StatxMask&fsentry.StatxNlink)

	last := events[len(events)-1]
	assert.Equal(t, fsevent.Xattr, last.Type)
	assert.Equal(t, []byte("P"), last.ID.Bytes)
	assert.Equal(t, fsevent.OpInc, last.InodeXattrOps["nb_children"])
	assert.Equal(t, int64(1), last.InodeXattrs["nb_children"].I64)
}

func TestExpandUnlinkLastLinkWithHSMCopyStampsTombstone(t *testing.T) {
	rec := Record{
		Type:        RecUnlink,
		TargetFID:   []byte("T"),
		ParentFID:   []byte("P"),
		Name:        "f",
		Ctime:       1700000000,
		LastLink:    true,
		HSMArchived: true,
	}
	events := Expand(rec)
	require.NotEmpty(t, events)
	assert.Equal(t, fsevent.PartialUnlink, events[0].Type)
	assert.Equal(t, int64(1700000000), events[0].RmTime)

	last := events[len(events)-1]
	assert.Equal(t, int64(-1), last.InodeXattrs["nb_children"].I64)
}

func TestExpandUnlinkLastLinkWithoutHSMCopyDeletes(t *testing.T) {
	rec := Record{Type: RecUnlink, TargetFID: []byte("T"), ParentFID: []byte("P"), Name: "f", LastLink: true}
	events := Expand(rec)
	require.NotEmpty(t, events)
	assert.Equal(t, fsevent.Delete, events[0].Type)
}

func TestExpandUnlinkWithRemainingLinksOnlyRemovesEdge(t *testing.T) {
	rec := Record{Type: RecUnlink, TargetFID: []byte("T"), ParentFID: []byte("P"), Name: "f"}
	events := Expand(rec)
	require.NotEmpty(t, events)
	assert.Equal(t, fsevent.Unlink, events[0].Type)
	assert.Equal(t, "f", events[0].Name)
}

func TestExpandRenameWithoutOverwriteBumpsDestinationChildCount(t *testing.T) {
	rec := Record{
		Type:            RecRename,
		TargetFID:       []byte("T"),
		ParentFID:       []byte("NP"),
		SourceParentFID: []byte("OP"),
		Name:            "new",
		SourceName:      "old",
	}
	events := Expand(rec)
	require.NotEmpty(t, events)

	assert.Equal(t, fsevent.Link, events[0].Type)
	assert.Equal(t, []byte("NP"), events[0].ParentID.Bytes)

	var sawSourceUnlink bool
	for _, ev := range events {
		if ev.Type == fsevent.Unlink && string(ev.ParentID.Bytes) == "OP" && ev.Name == "old" {
			sawSourceUnlink = true
		}
	}
	assert.True(t, sawSourceUnlink, "rename must unlink the source edge")
	assert.Equal(t, int64(1), nbChildrenDelta(events, []byte("NP")),
		"non-overwriting rename gains the destination a child")
	assert.Equal(t, int64(-1), nbChildrenDelta(events, []byte("OP")),
		"the source directory always loses a child")
}

func TestExpandRenameWithOverwriteUnlinksTargetFirstAndSkipsChildBump(t *testing.T) {
	rec := Record{
		Type:            RecRename,
		TargetFID:       []byte("T"),
		ParentFID:       []byte("NP"),
		SourceParentFID: []byte("OP"),
		Name:            "new",
		SourceName:      "old",
		Overwrite:       true,
	}
	events := Expand(rec)
	require.NotEmpty(t, events)
	assert.Equal(t, fsevent.Unlink, events[0].Type)

	assert.Equal(t, int64(0), nbChildrenDelta(events, []byte("NP")),
		"overwriting rename must not change the destination's child count")
	assert.Equal(t, int64(-1), nbChildrenDelta(events, []byte("OP")),
		"the source directory loses a child even when the rename overwrote")
}

func TestExpandMigrateDeletesOldFidAndTouchesBothParents(t *testing.T) {
	rec := Record{
		Type:            RecMigrate,
		TargetFID:       []byte("NEW"),
		SourceFID:       []byte("OLD"),
		ParentFID:       []byte("NP"),
		SourceParentFID: []byte("OP"),
		Name:            "f",
	}
	events := Expand(rec)
	require.NotEmpty(t, events)

	var sawDelete, sawSourceParent bool
	for _, ev := range events {
		if ev.Type == fsevent.Delete && string(ev.ID.Bytes) == "OLD" {
			sawDelete = true
		}
		if ev.Type == fsevent.Upsert && string(ev.ID.Bytes) == "OP" {
			sawSourceParent = true
		}
	}
	assert.True(t, sawDelete)
	assert.True(t, sawSourceParent)
}

func TestExpandSoftlinkIsACreateSequencePlusSymlinkHint(t *testing.T) {
	rec := Record{Type: RecSoftlink, TargetFID: []byte("T"), ParentFID: []byte("P"), Name: "l"}
	events := Expand(rec)
	require.Len(t, events, 6)
	assert.Equal(t, fsevent.Link, events[0].Type)
	assert.Equal(t, value.Binary([]byte("T")), events[1].InodeXattrs["fid"])
	require.Equal(t, fsevent.Upsert, events[2].Type)
	assert.Zero(t, events[2].StatxMask&(fsentry.StatxUID|fsentry.StatxGID))
	assert.Equal(t, int64(1), nbChildrenDelta(events, []byte("P")),
		"a new symlink is a child of its parent like any other entry")

	last := events[len(events)-1]
	assert.Equal(t, fsevent.Upsert, last.Type)
	assert.Contains(t, last.EnrichHints(), "symlink")
}

func TestExpandHardlinkBumpsParentChildCount(t *testing.T) {
	rec := Record{Type: RecHardlink, TargetFID: []byte("T"), ParentFID: []byte("P"), Name: "h"}
	events := Expand(rec)
	require.NotEmpty(t, events)
	assert.Equal(t, fsevent.Link, events[0].Type)
	require.Equal(t, fsevent.Upsert, events[1].Type)
	assert.Zero(t, events[1].StatxMask&(fsentry.StatxUID|fsentry.StatxGID))
	assert.Equal(t, int64(1), nbChildrenDelta(events, []byte("P")))
}

func TestExpandMknodBumpsParentChildCount(t *testing.T) {
	rec := Record{Type: RecMknod, TargetFID: []byte("T"), ParentFID: []byte("P"), Name: "dev", MDTIndex: 2}
	events := Expand(rec)
	require.NotEmpty(t, events)
	assert.Equal(t, fsevent.Link, events[0].Type)
	assert.Equal(t, value.Uint32(2), events[1].InodeXattrs["mdt_index"])
	require.Equal(t, fsevent.Upsert, events[2].Type)
	assert.Zero(t, events[2].StatxMask&(fsentry.StatxUID|fsentry.StatxGID))
	assert.Equal(t, int64(1), nbChildrenDelta(events, []byte("P")))
}

func TestExpandHSMRequestsLovAndStampsHsmXattr(t *testing.T) {
	rec := Record{Type: RecHSM, TargetFID: []byte("T")}
	events := Expand(rec)
	require.Len(t, events, 4)
	require.Equal(t, fsevent.Upsert, events[0].Type)
	assert.Equal(t, fsentry.StatxBlocks, events[0].StatxMask)

	lov := events[2]
	require.Equal(t, fsevent.Xattr, lov.Type)
	assert.Contains(t, lov.InodeXattrs, "trusted.lov")
	assert.Contains(t, lov.EnrichHints(), "lustre")

	hsm := events[3]
	assert.Equal(t, value.Boolean(true), hsm.InodeXattrs["trusted.hsm"])
}

func TestSkippedRecordTypesExpandToNothing(t *testing.T) {
	for _, typ := range []RecordType{RecMark, RecExt, RecOpen, RecXattrDeprecated, RecGetxattr, RecDNOpen} {
		assert.True(t, typ.skipped())
	}
	assert.False(t, RecCreate.skipped())
}
