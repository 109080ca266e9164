// Package enrich implements the extension enrichers contributed by
// Lustre and the retention policy, grounded on the
// POSIX package's Enricher contract (internal/posix.Enricher).
package enrich

import (
	"github.com/robinhood-suite/robinhood4-sub002/internal/posix"
	"github.com/robinhood-suite/robinhood4-sub002/internal/sstack"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// LayoutComponent describes one PFL/FLR component of a Lustre layout.
type LayoutComponent struct {
	StripeCount int32
	StripeSize  int64
	Pattern     uint32
	CompFlags   uint32
	Pool        string
	MirrorID    uint32
	Begin       uint64
	End         uint64
	OST         []int32
}

// LayoutReader abstracts the llapi_* calls the real Lustre client would
// make. Tests and
// non-Lustre builds supply a fake.
type LayoutReader interface {
	FID(fd int) ([]byte, error)
	HSMState(fd int) (state uint32, archiveID uint32, ok bool, err error)
	Layout(fd int) (magic uint32, gen uint32, mirrorCount uint32, comps []LayoutComponent, err error)
	DirStriping(fd int) (childMDTIdx []int32, hash uint32, hashFlags uint32, mdtCount uint32, mdtIndex uint32, ok bool, err error)
}

// Lustre is the Lustre posix_extension enricher.
type Lustre struct {
	Reader LayoutReader
}

func (l *Lustre) Name() string { return "lustre" }

// Enrich appends fid/hsm/layout/mdt-striping keys as applicable to the
// file type being walked.
func (l *Lustre) Enrich(info posix.EntryInfo, flags posix.EnrichFlags, arena *sstack.Arena) (map[string]value.Value, error) {
	out := map[string]value.Value{}

	if fid, err := l.Reader.FID(info.Fd); err == nil && fid != nil {
		b, err := arena.Push(fid, len(fid))
		if err != nil {
			return nil, err
		}
		out["fid"] = value.Binary(b)
	}

	if state, archiveID, ok, err := l.Reader.HSMState(info.Fd); err != nil {
		return nil, err
	} else if ok {
		out["hsm_state"] = value.Uint32(state)
		out["hsm_archive_id"] = value.Uint32(archiveID)
	}

	if magic, gen, mirrorCount, comps, err := l.Reader.Layout(info.Fd); err != nil {
		return nil, err
	} else if magic != 0 {
		out["magic"] = value.Uint32(magic)
		out["gen"] = value.Uint32(gen)
		out["mirror_count"] = value.Uint32(mirrorCount)
		appendLayoutSequences(out, comps)
	}

	if childIdx, hash, hashFlags, mdtCount, mdtIndex, ok, err := l.Reader.DirStriping(info.Fd); err != nil {
		return nil, err
	} else if ok {
		seq := make([]value.Value, len(childIdx))
		for i, v := range childIdx {
			seq[i] = value.Int32(v)
		}
		out["child_mdt_idx"] = value.Sequence(seq)
		out["mdt_hash"] = value.Uint32(hash)
		out["mdt_hash_flags"] = value.Uint32(hashFlags)
		out["mdt_count"] = value.Uint32(mdtCount)
		out["mdt_index"] = value.Uint32(mdtIndex)
	}

	return out, nil
}

func appendLayoutSequences(out map[string]value.Value, comps []LayoutComponent) {
	stripeCount := make([]value.Value, len(comps))
	stripeSize := make([]value.Value, len(comps))
	pattern := make([]value.Value, len(comps))
	compFlags := make([]value.Value, len(comps))
	pool := make([]value.Value, len(comps))
	mirrorID := make([]value.Value, len(comps))
	begin := make([]value.Value, len(comps))
	end := make([]value.Value, len(comps))
	var ost []value.Value
	for i, c := range comps {
		stripeCount[i] = value.Int32(c.StripeCount)
		stripeSize[i] = value.Int64(c.StripeSize)
		pattern[i] = value.Uint32(c.Pattern)
		compFlags[i] = value.Uint32(c.CompFlags)
		pool[i] = value.String(c.Pool)
		mirrorID[i] = value.Uint32(c.MirrorID)
		begin[i] = value.Uint64(c.Begin)
		end[i] = value.Uint64(c.End)
		for _, o := range c.OST {
			ost = append(ost, value.Int32(o))
		}
	}
	out["stripe_count"] = value.Sequence(stripeCount)
	out["stripe_size"] = value.Sequence(stripeSize)
	out["pattern"] = value.Sequence(pattern)
	out["comp_flags"] = value.Sequence(compFlags)
	out["pool"] = value.Sequence(pool)
	out["mirror_id"] = value.Sequence(mirrorID)
	out["begin"] = value.Sequence(begin)
	out["end"] = value.Sequence(end)
	out["ost"] = value.Sequence(ost)
}
