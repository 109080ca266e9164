package changelog

import (
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

func fid(b []byte) value.Id { return value.Id{Bytes: b} }

func hint(key string) map[string]value.Value {
	return map[string]value.Value{"rbh-fsevents." + key: value.Boolean(true)}
}

func upsertStatx(id value.Id, mask fsentry.StatxMask) fsevent.Event {
	return fsevent.Event{Type: fsevent.Upsert, ID: id, StatxMask: mask, Xattrs: hint("statx")}
}

func upsertLustreHint(id value.Id) fsevent.Event {
	return fsevent.Event{Type: fsevent.Xattr, ID: id, Xattrs: hint("lustre")}
}

func nbChildren(parent value.Id, delta int64) fsevent.Event {
	op := fsevent.OpInc
	return fsevent.Event{
		Type:          fsevent.Xattr,
		ID:            parent,
		InodeXattrs:   map[string]value.Value{"nb_children": value.Int64(delta)},
		InodeXattrOps: map[string]fsevent.XattrOp{"nb_children": op},
	}
}

func parentTimeUpdate(parent value.Id, mask fsentry.StatxMask) fsevent.Event {
	return upsertStatx(parent, mask)
}

// createSequence is the batch shared by every record that links a new
// inode into the namespace (CREATE, MKDIR, SOFTLINK): the new edge, the
// fid xattr with a lustre hint, the new inode's statx (everything but
// uid/gid, which the changelog does not carry reliably), the parent's
// time update, and the parent's nb_children bump.
func createSequence(target, parent value.Id, name string, targetFID []byte) []fsevent.Event {
	return []fsevent.Event{
		{Type: fsevent.Link, ID: target, ParentID: parent, Name: name},
		{Type: fsevent.Xattr, ID: target, InodeXattrs: map[string]value.Value{"fid": value.Binary(targetFID)}, Xattrs: hint("lustre")},
		upsertStatx(target, statxExceptUIDGID),
		parentTimeUpdate(parent, fsentry.StatxAtime|fsentry.StatxCtime|fsentry.StatxMtime),
		nbChildren(parent, 1),
	}
}

// Expand turns one Lustre changelog record into its batch of fsevents.
// The returned events MUST be applied by the sink in the given order.
func Expand(r Record) []fsevent.Event {
	target := fid(r.TargetFID)
	parent := fid(r.ParentFID)

	switch r.Type {
	case RecCreate, RecMkdir:
		return createSequence(target, parent, r.Name, r.TargetFID)

	case RecSetattr:
		return []fsevent.Event{
			upsertStatx(target, allStatxFields),
			upsertLustreHint(target),
		}

	case RecClose, RecMtime:
		return []fsevent.Event{upsertStatx(target, fsentry.StatxMtime|fsentry.StatxSize|fsentry.StatxBlocks)}

	case RecCtime:
		return []fsevent.Event{upsertStatx(target, fsentry.StatxCtime)}

	case RecAtime:
		return []fsevent.Event{upsertStatx(target, fsentry.StatxAtime)}

	case RecSetxattr:
		return []fsevent.Event{
			upsertStatx(target, fsentry.StatxCtime),
			{Type: fsevent.Xattr, ID: target, InodeXattrs: map[string]value.Value{r.XattrName: value.Binary(r.XattrValue)}},
			upsertLustreHint(target),
		}

	case RecSoftlink:
		return append(createSequence(target, parent, r.Name, r.TargetFID),
			fsevent.Event{Type: fsevent.Upsert, ID: target, Xattrs: hint("symlink")})

	case RecHardlink:
		return []fsevent.Event{
			{Type: fsevent.Link, ID: target, ParentID: parent, Name: r.Name},
			upsertStatx(target, statxExceptUIDGID),
			parentTimeUpdate(parent, fsentry.StatxMtime|fsentry.StatxCtime),
			nbChildren(parent, 1),
		}

	case RecMknod:
		return []fsevent.Event{
			{Type: fsevent.Link, ID: target, ParentID: parent, Name: r.Name},
			{Type: fsevent.Xattr, ID: target, InodeXattrs: map[string]value.Value{"fid": value.Binary(r.TargetFID), "mdt_index": value.Uint32(r.MDTIndex)}},
			upsertStatx(target, statxExceptUIDGID),
			parentTimeUpdate(parent, fsentry.StatxMtime|fsentry.StatxCtime),
			nbChildren(parent, 1),
		}

	case RecUnlink, RecRmdir:
		events := []fsevent.Event{}
		if r.LastLink && r.HSMArchived {
			events = append(events, fsevent.Event{Type: fsevent.PartialUnlink, ID: target, RmTime: r.Ctime})
		} else if r.LastLink {
			events = append(events, fsevent.Event{Type: fsevent.Delete, ID: target})
		} else {
			events = append(events, fsevent.Event{Type: fsevent.Unlink, ID: target, ParentID: parent, Name: r.Name})
		}
		events = append(events, parentTimeUpdate(parent, fsentry.StatxMtime|fsentry.StatxCtime), nbChildren(parent, -1))
		return events

	case RecRename:
		sourceParent := fid(r.SourceParentFID)
		var events []fsevent.Event
		if r.Overwrite {
			events = append(events, fsevent.Event{Type: fsevent.Unlink, ID: target, ParentID: parent, Name: r.Name})
		}
		events = append(events,
			fsevent.Event{Type: fsevent.Link, ID: target, ParentID: parent, Name: r.Name},
			upsertStatx(target, statxExceptUIDGID),
			parentTimeUpdate(parent, fsentry.StatxMtime|fsentry.StatxCtime),
			parentTimeUpdate(sourceParent, fsentry.StatxMtime|fsentry.StatxCtime),
			fsevent.Event{Type: fsevent.Unlink, ID: target, ParentID: sourceParent, Name: r.SourceName},
		)
		// The destination only gains a child when nothing was replaced;
		// the source always loses one.
		if !r.Overwrite {
			events = append(events, nbChildren(parent, 1))
		}
		events = append(events, nbChildren(sourceParent, -1))
		return events

	case RecHSM:
		// trusted.lov's bytes are not in the changelog record; the event
		// names the key and the lustre hint so the enricher fetches it.
		return []fsevent.Event{
			upsertStatx(target, fsentry.StatxBlocks),
			upsertLustreHint(target),
			{Type: fsevent.Xattr, ID: target, InodeXattrs: map[string]value.Value{"trusted.lov": value.Binary(nil)}, Xattrs: hint("lustre")},
			{Type: fsevent.Xattr, ID: target, InodeXattrs: map[string]value.Value{"trusted.hsm": value.Boolean(true)}},
		}

	case RecTrunc:
		return []fsevent.Event{upsertStatx(target, fsentry.StatxCtime|fsentry.StatxMtime|fsentry.StatxSize)}

	case RecLayout:
		return []fsevent.Event{upsertStatx(target, fsentry.StatxCtime), upsertLustreHint(target)}

	case RecFLRW:
		return []fsevent.Event{upsertStatx(target, fsentry.StatxCtime|fsentry.StatxMtime|fsentry.StatxBlocks|fsentry.StatxSize), upsertLustreHint(target)}

	case RecResync:
		return []fsevent.Event{upsertStatx(target, fsentry.StatxCtime|fsentry.StatxBlocks), upsertLustreHint(target)}

	case RecMigrate:
		sourceFid := fid(r.SourceFID)
		sourceParent := fid(r.SourceParentFID)
		return []fsevent.Event{
			{Type: fsevent.Link, ID: target, ParentID: parent, Name: r.Name},
			upsertStatx(target, statxExceptUIDGID),
			parentTimeUpdate(parent, fsentry.StatxMtime|fsentry.StatxCtime),
			{Type: fsevent.Delete, ID: sourceFid},
			parentTimeUpdate(sourceParent, fsentry.StatxMtime|fsentry.StatxCtime),
			upsertLustreHint(target),
		}

	default:
		return nil
	}
}

const allStatxFields = fsentry.StatxMode | fsentry.StatxUID | fsentry.StatxGID | fsentry.StatxAtime |
	fsentry.StatxMtime | fsentry.StatxCtime | fsentry.StatxBtime | fsentry.StatxSize | fsentry.StatxBlocks |
	fsentry.StatxNlink | fsentry.StatxDev | fsentry.StatxRdev | fsentry.StatxIno | fsentry.StatxType

// statxExceptUIDGID is the mask every namespace-changing record uses
// for the affected inode: uid/gid are the one pair the changelog does
// not report, so only SETATTR refreshes them.
const statxExceptUIDGID = allStatxFields &^ (fsentry.StatxUID | fsentry.StatxGID)
