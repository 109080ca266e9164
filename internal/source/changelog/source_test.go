package changelog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

type fakeReader struct {
	records []Record
	i       int
	clears  []int64
	closed  bool
}

func (r *fakeReader) Recv() (Record, error) {
	if r.i >= len(r.records) {
		return Record{}, rherr.New(rherr.NoMoreData, "changelog drained")
	}
	rec := r.records[r.i]
	r.i++
	return rec, nil
}

func (r *fakeReader) Clear(mdt, user string, index int64) error {
	r.clears = append(r.clears, index)
	return nil
}

func (r *fakeReader) Close() error { r.closed = true; return nil }

func setattrRecord(index int64) Record {
	return Record{Index: index, Type: RecSetattr, TargetFID: []byte("T")}
}

func TestResumeIndex(t *testing.T) {
	info := map[string]value.Value{
		"fsevents_source.lustre-MDT0000.last_read": value.Int64(42),
	}
	assert.Equal(t, int64(42), ResumeIndex(info, "lustre-MDT0000"))
	assert.Equal(t, int64(-1), ResumeIndex(info, "lustre-MDT0001"))
	assert.Equal(t, int64(-1), ResumeIndex(nil, "lustre-MDT0000"))
}

func TestNextGroupsEventsOfOneRecordUnderOneBatch(t *testing.T) {
	reader := &fakeReader{records: []Record{setattrRecord(1)}}
	s := New(reader, "lustre-MDT0000", "cl1", true)

	ev1, id1, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, fsevent.Upsert, ev1.Type)

	ev2, id2, err := s.Next()
	require.NoError(t, err)
	_ = ev2
	assert.Equal(t, id1, id2, "both events of one SETATTR expansion share a batch")

	_, _, err = s.Next()
	assert.True(t, rherr.Is(err, rherr.NoMoreData))
}

func TestNextSkipsRecordTypesThatExpandToNothing(t *testing.T) {
	reader := &fakeReader{records: []Record{
		{Index: 1, Type: RecMark},
		setattrRecord(2),
	}}
	s := New(reader, "lustre-MDT0000", "cl1", true)

	_, _, err := s.Next()
	require.NoError(t, err)
	require.Len(t, s.fifo, 1)
	assert.Equal(t, int64(2), s.fifo[0].lastIndex)
}

// Five batches in flight, acks arrive for 1, 2, 3 and 5 — the
// changelog is cleared exactly once, at batch 3's index, and nothing
// more happens until batch 4 acks.
func TestAckBatchClearsConsecutivePrefixOnly(t *testing.T) {
	reader := &fakeReader{records: []Record{
		setattrRecord(43), setattrRecord(44), setattrRecord(45), setattrRecord(46), setattrRecord(47),
	}}
	s := New(reader, "lustre-MDT0000", "cl1", true)

	var ids []uuid.UUID
	var counts []int
	for i := 0; i < 5; i++ {
		ev, id, err := s.Next()
		require.NoError(t, err)
		_ = ev
		n := 1
		for len(s.queue) > 0 && s.queue[0].batchID == id {
			_, _, err := s.Next()
			require.NoError(t, err)
			n++
		}
		ids = append(ids, id)
		counts = append(counts, n)
	}

	ackAll := func(batch int) {
		for i := 0; i < counts[batch]; i++ {
			require.NoError(t, s.AckBatch(ids[batch]))
		}
	}

	ackAll(0)
	ackAll(1)
	ackAll(2)
	ackAll(4) // batch 5 acks out of order; batch 4 still pending

	require.Len(t, reader.clears, 1)
	assert.Equal(t, int64(45), reader.clears[0], "clear stops at the last consecutive acked batch")

	ackAll(3)
	require.Len(t, reader.clears, 2)
	assert.Equal(t, int64(47), reader.clears[1], "batch 4's ack releases it and the already-acked batch 5")
}

func TestDedupOffBumpsAckRequirement(t *testing.T) {
	reader := &fakeReader{records: []Record{setattrRecord(1), setattrRecord(2)}}
	s := New(reader, "lustre-MDT0000", "cl1", false)

	_, id1, err := s.Next()
	require.NoError(t, err)
	for len(s.queue) > 0 {
		_, _, err := s.Next()
		require.NoError(t, err)
	}
	_, _, err = s.Next()
	require.NoError(t, err)

	// The first batch's requirement equals its event count; every later
	// batch needs one extra ack before its changelog range may clear.
	require.Len(t, s.fifo, 2)
	assert.Equal(t, s.fifo[1].ackRequired, s.fifo[0].ackRequired+1)
	_ = id1
}

func TestCloseClosesReader(t *testing.T) {
	reader := &fakeReader{}
	s := New(reader, "lustre-MDT0000", "cl1", true)
	require.NoError(t, s.Close())
	assert.True(t, reader.closed)
}
