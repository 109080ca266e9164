package changelog

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// pendingBatch is one FIFO entry: a contiguous run of changelog records
// whose expanded fsevents have been handed to the driver but not yet
// confirmed applied.
type pendingBatch struct {
	id          uuid.UUID
	lastIndex   int64
	ackRequired int
	cleared     bool
}

// Source reads from an MDT changelog Reader and expands each record
// into a batch of fsevents. It is the only component in this
// module allowed to hold durable state between Next calls: the
// in-flight batch FIFO, guarded by one mutex.
type Source struct {
	Reader Reader
	MDT    string
	User   string
	// Dedup, when false, makes a record's batch that is queued behind
	// other in-flight batches require one ack more than its event count
	// (see saveBatch). Either way, the fsevents of one changelog record
	// form one batch.
	Dedup bool
	// DumpTo, when set, receives a formatted line per consumed record
	// (a file or stdout; dev/debug aid).
	DumpTo io.Writer

	mu    sync.Mutex
	fifo  []*pendingBatch
	queue []queuedEvent
}

type queuedEvent struct {
	event   fsevent.Event
	batchID uuid.UUID
}

// New constructs a Source. If the destination backend's info document
// carries "fsevents_source.<mdt>.last_read", the reader is expected to
// already be positioned at last_read+1 (ResumeIndex, below, reads
// last_read).
func New(reader Reader, mdt, user string, dedup bool) *Source {
	return &Source{Reader: reader, MDT: mdt, User: user, Dedup: dedup}
}

// ResumeIndex returns the sink's persisted
// "fsevents_source.<mdt>.last_read" value, the last changelog index
// already read (reading resumes at that value plus one), or -1 (i.e.
// "start from the beginning") if absent.
func ResumeIndex(info map[string]value.Value, mdt string) int64 {
	v, ok := info["fsevents_source."+mdt+".last_read"]
	if !ok || v.Tag != value.TagInt64 {
		return -1
	}
	return v.I64
}

// Next expands changelog records until it has at least one fsevent to
// hand back, recording a pendingBatch for each record consumed.
func (s *Source) Next() (fsevent.Event, uuid.UUID, error) {
	for len(s.queue) == 0 {
		rec, err := s.Reader.Recv()
		if err != nil {
			return fsevent.Event{}, uuid.UUID{}, err
		}
		if s.DumpTo != nil {
			fmt.Fprintf(s.DumpTo, "%d %d t=%q p=%q name=%q\n",
				rec.Index, rec.Type, rec.TargetFID, rec.ParentFID, rec.Name)
		}
		if rec.Type.skipped() {
			continue
		}
		events := Expand(rec)
		if len(events) == 0 {
			continue
		}
		batchID := s.saveBatch(rec.Index, len(events))
		for _, ev := range events {
			s.queue = append(s.queue, queuedEvent{event: ev, batchID: batchID})
		}
	}
	qe := s.queue[0]
	s.queue = s.queue[1:]
	return qe.event, qe.batchID, nil
}

func (s *Source) Close() error { return s.Reader.Close() }

// saveBatch records a FIFO entry for the changelog record at index,
// requiring ackCount acks before it can be cleared. Under Dedup=false,
// when other batches are already in flight, the required count is
// ackCount+1.
func (s *Source) saveBatch(index int64, ackCount int) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	required := ackCount
	if !s.Dedup && len(s.fifo) > 0 {
		required = ackCount + 1
	}
	b := &pendingBatch{id: uuid.New(), lastIndex: index, ackRequired: required}
	s.fifo = append(s.fifo, b)
	return b.id
}

// AckBatch decrements the ack counter for batchID, then clears every
// consecutive fully-acked batch from the head of the FIFO, calling
// Reader.Clear once for the last cleared batch's index.
func (s *Source) AckBatch(batchID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.fifo {
		if b.id == batchID {
			b.ackRequired--
			break
		}
	}

	var clearIndex int64 = -1
	i := 0
	for i < len(s.fifo) && s.fifo[i].ackRequired <= 0 {
		clearIndex = s.fifo[i].lastIndex
		i++
	}
	if i == 0 {
		return nil
	}
	s.fifo = s.fifo[i:]
	if clearIndex < 0 {
		return nil
	}
	if err := s.Reader.Clear(s.MDT, s.User, clearIndex); err != nil {
		return rherr.Wrap(rherr.BackendError, err)
	}
	return nil
}
