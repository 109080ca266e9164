// Package enrich implements the enricher pipeline: it
// wraps a source's fsevent.Iterator and, for events still carrying
// "rbh-fsevents.<key>" hints, reopens the referenced inode by Id against
// a mount fd and substitutes the enriched payload before the event
// reaches the sink.
package enrich

import (
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rhlog"
	"github.com/robinhood-suite/robinhood4-sub002/internal/sstack"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

var logger = rhlog.Get("enrich")

// Opener resolves an event's Id back to an open file descriptor and a
// fresh statx, the one filesystem-specific operation this package
// needs (kept abstract so it can be satisfied by the posix package on
// Linux or a fake in tests). It must retry with O_PATH on ELOOP, the
// way the POSIX walker does.
type Opener interface {
	Open(id value.Id) (fd int, statx fsentry.Statx, closeFn func() error, err error)
	// Readlink reads the symlink target of an fd returned by Open, for
	// the "symlink" enrichment hint a SOFTLINK record carries.
	Readlink(fd int) (string, error)
}

// Extension runs one named enrichment hint ("lustre", "retention", ...)
// against an opened inode and returns the xattr pairs to merge.
type Extension interface {
	Name() string
	EnrichEvent(fd int, statx fsentry.Statx, arena *sstack.Arena) (map[string]value.Value, error)
}

// Pipeline wraps a source iterator, materializing every event before
// it is handed to a sink.
type Pipeline struct {
	Source     fsevent.Iterator
	Opener     Opener
	Extensions map[string]Extension
	SkipError  bool

	arena *sstack.Arena
}

// NewPipeline builds a Pipeline over source. arena owns every value
// produced while enriching one event and is reset on each Next call.
func NewPipeline(source fsevent.Iterator, opener Opener, extensions map[string]Extension, skipError bool) *Pipeline {
	return &Pipeline{
		Source:     source,
		Opener:     opener,
		Extensions: extensions,
		SkipError:  skipError,
		arena:      sstack.New(256 * 1024),
	}
}

// Next returns the next fully-materialized event.
func (p *Pipeline) Next() (fsevent.Event, error) {
	p.arena.PopAll()

	for {
		ev, err := p.Source.Next()
		if err != nil {
			return fsevent.Event{}, err
		}
		if err := p.materialize(&ev); err != nil {
			if (rherr.Is(err, rherr.Stale) || rherr.Is(err, rherr.NotFound)) && p.SkipError {
				logger.Warnf("skipping event for %s: %s", ev.ID, err)
				continue
			}
			return fsevent.Event{}, err
		}
		return ev, nil
	}
}

// Close drains the underlying source; it is safe to call more than
// once.
func (p *Pipeline) Close() error { return p.Source.Close() }

// materialize resolves every "rbh-fsevents.<key>" hint still attached
// to ev, reopening the inode at most once per event even if several
// hints require it.
func (p *Pipeline) materialize(ev *fsevent.Event) error {
	hints := ev.EnrichHints()
	if len(hints) == 0 {
		return nil
	}

	fd, statx, closeFn, err := p.Opener.Open(ev.ID)
	if err != nil {
		return err
	}
	defer closeFn()

	for _, h := range hints {
		switch {
		case h == "statx":
			ev.Statx = &statx
			ev.StatxMask = statx.Mask
		case h == "symlink":
			target, err := p.Opener.Readlink(fd)
			if err != nil {
				return err
			}
			ev.Symlink = &target
			ev.Statx = &statx
			ev.StatxMask = statx.Mask
		default:
			ext, ok := p.Extensions[h]
			if !ok {
				break
			}
			pairs, err := ext.EnrichEvent(fd, statx, p.arena)
			if err != nil {
				return err
			}
			if len(pairs) > 0 {
				if ev.InodeXattrs == nil {
					ev.InodeXattrs = map[string]value.Value{}
				}
				for k, v := range pairs {
					ev.InodeXattrs[k] = v
				}
			}
		}
		ev.ClearHint(h)
	}
	return nil
}
