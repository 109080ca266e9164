package main

import (
	"context"

	"github.com/robinhood-suite/robinhood4-sub002/internal/backend"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
)

// flushBatch is the number of fsevents buffered before one bulk Update
// call, trading memory for fewer round trips.
const flushBatch = 500

// sliceIterator adapts a pre-built []fsevent.Event into fsevent.Iterator.
type sliceIterator struct {
	events []fsevent.Event
	i      int
}

func (s *sliceIterator) Next() (fsevent.Event, error) {
	if s.i >= len(s.events) {
		return fsevent.Event{}, rherr.New(rherr.NoMoreData, "slice iterator drained")
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}

func (s *sliceIterator) Close() error { return nil }

// entryToEvents turns one walked fsentry.Entry into the events an
// initial sync applies: a LINK (except for the root) and a statx UPSERT,
// mirroring what the Lustre CREATE expansion produces for a
// freshly-discovered entry, followed by a symlink UPSERT and an XATTR
// event for its inode xattrs when the entry has them.
func entryToEvents(e fsentry.Entry) []fsevent.Event {
	var events []fsevent.Event
	if !e.IsRoot() {
		events = append(events, fsevent.Event{
			Type: fsevent.Link, ID: e.ID, ParentID: e.ParentID, Name: e.Name, NsXattrs: e.NsXattrs,
		})
	}
	stx := e.Statx
	events = append(events, fsevent.Event{
		Type: fsevent.Upsert, ID: e.ID, Statx: &stx, StatxMask: stx.Mask,
	})
	if e.Symlink != "" {
		sym := e.Symlink
		events = append(events, fsevent.Event{Type: fsevent.Upsert, ID: e.ID, Symlink: &sym})
	}
	if len(e.InodeXattrs) > 0 {
		events = append(events, fsevent.Event{Type: fsevent.Xattr, ID: e.ID, InodeXattrs: e.InodeXattrs})
	}
	return events
}

// walkIter is the minimal shape drainWalk needs from a Walker, matching
// backend.EntryIter.
type walkIter interface {
	Next() (fsentry.Entry, error)
}

func drainWalk(ctx context.Context, store backend.Backend, w walkIter) (applied, total, skipped int, err error) {
	var buf []fsevent.Event
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		n, ferr := store.Update(ctx, &sliceIterator{events: buf})
		applied += n
		buf = buf[:0]
		return ferr
	}

	for {
		e, werr := w.Next()
		if rherr.Is(werr, rherr.NoMoreData) {
			break
		}
		if werr != nil {
			skipped++
			logger.Warnf("walk error: %s", werr)
			continue
		}
		total++
		buf = append(buf, entryToEvents(e)...)
		if len(buf) >= flushBatch {
			if ferr := flush(); ferr != nil {
				return applied, total, skipped, ferr
			}
		}
	}
	if ferr := flush(); ferr != nil {
		return applied, total, skipped, ferr
	}
	return applied, total, skipped, nil
}

// replayIter is the minimal shape drainReplay needs from a source.
type replayIter interface {
	Next() (fsevent.Event, error)
}

// drainReplay applies every event from src after skipping the first
// skip of them, letting a replay resume where a prior, interrupted run
// left off (cmd/rbh-sync's --checkpoint flag records that position).
func drainReplay(ctx context.Context, store backend.Backend, src replayIter, skip int64) (applied, total int, err error) {
	var buf []fsevent.Event
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		n, ferr := store.Update(ctx, &sliceIterator{events: buf})
		applied += n
		buf = buf[:0]
		return ferr
	}

	var seen int64
	for {
		ev, serr := src.Next()
		if rherr.Is(serr, rherr.NoMoreData) {
			break
		}
		if serr != nil {
			return applied, total, serr
		}
		seen++
		if seen <= skip {
			continue
		}
		if ev.Pending() {
			logger.Warnf("event for %s still carries unresolved enrichment hints; applying as-is", ev.ID)
		}
		total++
		buf = append(buf, ev)
		if len(buf) >= flushBatch {
			if ferr := flush(); ferr != nil {
				return applied, total, ferr
			}
		}
	}
	return applied, total, flush()
}
