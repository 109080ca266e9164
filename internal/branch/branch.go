// Package branch implements the generic branch iterator: a recursive
// directory-by-directory traversal that bounds memory to two
// fixed-size rings regardless of subtree width, built on top of any
// backend.Backend through its plain Filter RPC.
package branch

import (
	"context"

	"github.com/robinhood-suite/robinhood4-sub002/internal/backend"
	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/ringr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/sstack"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// ringCapacity matches the fixed 16 MiB budget per ring.
const ringCapacity = 16 * 1024 * 1024

const idChunkSize = 4096

// idRecord mirrors one Value record in the values ring: a fixed header
// plus a reference to the variable-length id bytes living in the ids
// ring. Every readable record's bytes live inside the ids ring, so the
// two rings ack in lockstep.
type idRecord struct {
	size int32
}

const idRecordSize = 4 // len(idRecord.size) encoded as a little-endian int32

// Iterator implements the bounded-memory recursive branch walk. It is
// the backend.EntryIter chained into the caller's pipeline by
// Backend.Branch.
//
// Every directory pulled from `directories` is both a candidate to
// recurse into (find its child directories, to keep exploring deeper)
// and a candidate to emit from (find its filter-matching children, the
// actual yielded output). The two rings exist so both readers can walk
// the same pushed id/value records independently, one producer with
// two cursors. A batch is only retired from the rings once both the
// recursion side and the emission side have consumed it.
type Iterator struct {
	ctx    context.Context
	store  backend.Backend
	filter filter.Filter
	out    filter.Output

	ids    *ringr.Ring
	values *ringr.Ring
	// idsRecur/valuesRecur track how far the recursion step (expanding
	// one batch of directory ids into their children) has consumed;
	// idsEmit/valuesEmit track how far the entries-production step has
	// consumed. Both readers trail the shared producer cursor.
	idsRecur, idsEmit       *ringr.Reader
	valuesRecur, valuesEmit *ringr.Reader

	arena *sstack.Arena

	// directories is the remaining frontier of directory fsentries whose
	// children have not yet been discovered/emitted. It starts as a
	// single pseudo-entry for the branch root and is replenished by
	// recurse() as deeper levels are found, so exhaustion genuinely means
	// "no more directories anywhere in the subtree".
	directories backend.EntryIter
	fsentries   backend.EntryIter

	// batch accumulates the ids pulled from `directories` since the last
	// flush, pushed into both rings as they are recorded.
	batch []value.Id

	// pendingDir holds a directory pulled from `directories` but not yet
	// recorded into the rings/batch, when a push failed for lack of
	// space and a flush is needed before it can be retried; Next is
	// safely re-invokable from this intermediate state.
	pendingDir *value.Id

	done bool
}

// New starts a branch walk rooted at rootID: f is the caller's filter,
// restricted to the subtree by ANDing in a parent-closure computed
// lazily as directories are discovered. skip/limit/sort are rejected
// outright, since a recursive walk has no stable global order to
// paginate over.
func New(ctx context.Context, store backend.Backend, rootID value.Id, f filter.Filter, opts filter.Options, out filter.Output) (*Iterator, error) {
	if opts.Skip != 0 || opts.Limit != 0 || len(opts.Sort) != 0 {
		return nil, rherr.New(rherr.NotSupported, "branch iteration does not support skip/limit/sort")
	}

	ids, err := ringr.New(ringCapacity)
	if err != nil {
		return nil, err
	}
	values, err := ringr.New(ringCapacity)
	if err != nil {
		return nil, err
	}

	it := &Iterator{
		ctx:    ctx,
		store:  store,
		filter: f,
		out:    out,
		ids:    ids,
		values: values,
		arena:  sstack.New(idChunkSize),
	}
	it.idsRecur = ids.Dup()
	it.idsEmit = ids.Dup()
	it.valuesRecur = values.Dup()
	it.valuesEmit = values.Dup()
	it.directories = &singleDir{id: rootID}
	return it, nil
}

// Next implements backend.EntryIter.
func (it *Iterator) Next() (fsentry.Entry, error) {
	if it.done {
		return fsentry.Entry{}, rherr.New(rherr.NoMoreData, "branch iterator exhausted")
	}

	for {
		if it.fsentries != nil {
			e, err := it.fsentries.Next()
			if err == nil {
				return e, nil
			}
			if !rherr.Is(err, rherr.NoMoreData) {
				return fsentry.Entry{}, err
			}
			it.fsentries.Close()
			it.fsentries = nil
		}

		if it.directories == nil {
			it.done = true
			return fsentry.Entry{}, rherr.New(rherr.NoMoreData, "branch iterator exhausted")
		}

		if err := it.fillBatch(); err != nil {
			return fsentry.Entry{}, err
		}
	}
}

// fillBatch pulls directories and pushes their ids into the rings
// until `directories` is exhausted or a push fails for lack of space,
// then flushes the accumulated batch.
func (it *Iterator) fillBatch() error {
	for {
		var id value.Id
		if it.pendingDir != nil {
			id = *it.pendingDir
			it.pendingDir = nil
		} else {
			d, err := it.directories.Next()
			if rherr.Is(err, rherr.NoMoreData) {
				it.directories.Close()
				it.directories = nil
				return it.flushBatch()
			}
			if err != nil {
				return err
			}
			id = d.ID
		}

		if err := it.pushID(id); err != nil {
			if !rherr.Is(err, rherr.NoBufferSpace) {
				return err
			}
			// Restart point: id has been read from `directories` but
			// not yet recorded; flush to free ring space, retrying on
			// the next fillBatch call.
			it.pendingDir = &id
			return it.flushBatch()
		}
		it.batch = append(it.batch, id)
	}
}

// flushBatch retires the accumulated batch: it recurses (discovering
// the batch's child directories, chained onto `directories` so deeper
// levels keep being explored) and emits (querying the batch's
// filter-matching children into `fsentries`), then frees both rings'
// space for this batch. A directory's own children are only ever
// surfaced through this emit step, so both must run for every batch or
// descendants below the first level would never be produced.
func (it *Iterator) flushBatch() error {
	if len(it.batch) == 0 {
		return nil
	}
	batch := it.batch
	it.batch = nil

	if err := it.recurse(batch); err != nil {
		return err
	}
	if err := it.emit(batch); err != nil {
		return err
	}
	it.ackBatch(it.idsRecur, it.valuesRecur)
	it.ackBatch(it.idsEmit, it.valuesEmit)
	return nil
}

// recurse expands batch's children directories into `directories` via
// a {parent_id ∈ batch ∧ is_dir} query, chained ahead of whatever
// remains so deeper levels are explored before returning to siblings.
func (it *Iterator) recurse(batch []value.Id) error {
	childIter, err := it.store.Filter(it.ctx, isDirUnderBatch(batch), filter.Options{}, filter.Output{Projection: dirProjection})
	if err != nil {
		return err
	}
	it.directories = &chainIter{first: childIter, second: it.directories}
	return nil
}

// emit issues {parent_id ∈ batch ∧ user_filter} for batch, feeding
// `fsentries`.
func (it *Iterator) emit(batch []value.Id) error {
	matchFilter := filter.And(parentIn(batch), it.filter)
	entIter, err := it.store.Filter(it.ctx, matchFilter, filter.Options{}, filter.Output{Projection: it.out.Projection})
	if err != nil {
		return err
	}
	it.fsentries = entIter
	return nil
}

func (it *Iterator) pushID(id value.Id) error {
	if err := it.ids.Push(id.Bytes); err != nil {
		return err
	}
	header := encodeRecord(idRecord{size: int32(len(id.Bytes))})
	return it.values.Push(header)
}

func (it *Iterator) ackBatch(idsReader, valuesReader *ringr.Reader) {
	n := len(idsReader.Peek())
	idsReader.Ack(n)
	valuesReader.Ack(len(valuesReader.Peek()))
}

func (it *Iterator) Close() error {
	if it.directories != nil {
		it.directories.Close()
	}
	if it.fsentries != nil {
		it.fsentries.Close()
	}
	it.idsRecur.Destroy()
	it.idsEmit.Destroy()
	it.valuesRecur.Destroy()
	it.valuesEmit.Destroy()
	it.arena.Destroy()
	return nil
}

func encodeRecord(r idRecord) []byte {
	b := make([]byte, idRecordSize)
	b[0] = byte(r.size)
	b[1] = byte(r.size >> 8)
	b[2] = byte(r.size >> 16)
	b[3] = byte(r.size >> 24)
	return b
}

// chainIter yields every entry from first, then every entry from
// second.
type chainIter struct {
	first, second backend.EntryIter
}

func (c *chainIter) Next() (fsentry.Entry, error) {
	if c.first != nil {
		e, err := c.first.Next()
		if err == nil {
			return e, nil
		}
		if !rherr.Is(err, rherr.NoMoreData) {
			return fsentry.Entry{}, err
		}
		c.first.Close()
		c.first = nil
	}
	if c.second == nil {
		return fsentry.Entry{}, rherr.New(rherr.NoMoreData, "chained iterator exhausted")
	}
	return c.second.Next()
}

func (c *chainIter) Close() error {
	if c.first != nil {
		c.first.Close()
	}
	if c.second != nil {
		return c.second.Close()
	}
	return nil
}

// singleDir seeds `directories` with the branch root itself: the first
// batch is {rootID}, so flushBatch's recurse/emit queries correctly
// surface root's own direct children as the first level of descendants.
type singleDir struct {
	id   value.Id
	done bool
}

func (s *singleDir) Next() (fsentry.Entry, error) {
	if s.done {
		return fsentry.Entry{}, rherr.New(rherr.NoMoreData, "single-directory iterator exhausted")
	}
	s.done = true
	return fsentry.Entry{Mask: fsentry.MaskID, ID: s.id}, nil
}

func (s *singleDir) Close() error { return nil }

var dirProjection = filter.Projection{FsentryMask: uint32(fsentry.MaskID | fsentry.MaskParentID | fsentry.MaskName)}

func isDirType() filter.Filter {
	return filter.Compare("statx.type", filter.OpEq, value.Uint32(uint32(fsentry.TypeDirectory)))
}

func isDirUnderBatch(batch []value.Id) filter.Filter {
	return filter.And(parentIn(batch), isDirType())
}

func parentIn(batch []value.Id) filter.Filter {
	clauses := make([]filter.Filter, len(batch))
	for i, id := range batch {
		clauses[i] = filter.Compare("namespace.parent_id", filter.OpEq, value.Binary(id.Bytes))
	}
	return filter.Or(clauses...)
}
