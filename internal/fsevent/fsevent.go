// Package fsevent implements the change-event algebra:
// UPSERT, LINK, UNLINK, XATTR, DELETE and PARTIAL_UNLINK, plus the
// sink-contract semantics each event type must preserve.
package fsevent

import (
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// Type discriminates the fsevent sum type.
type Type int

const (
	Upsert Type = iota
	Link
	Unlink
	Xattr
	Delete
	PartialUnlink
)

func (t Type) String() string {
	switch t {
	case Upsert:
		return "UPSERT"
	case Link:
		return "LINK"
	case Unlink:
		return "UNLINK"
	case Xattr:
		return "XATTR"
	case Delete:
		return "DELETE"
	case PartialUnlink:
		return "PARTIAL_UNLINK"
	default:
		return "UNKNOWN"
	}
}

// XattrOp distinguishes a plain merge from the nested {op: set|inc}
// envelope used for counters such as nb_children.
type XattrOp int

const (
	OpSet XattrOp = iota
	OpInc
)

// NamedXattrs is the name-scoped XATTR payload: "ns { parent_id, name, xattrs }".
type NamedXattrs struct {
	ParentID value.Id
	Name     string
	Xattrs   map[string]value.Value
}

// Event is one fsevent. Only the fields relevant to Type are populated;
// the rest are zero. Xattrs carries the optional top-level enrichment
// hints ("rbh-fsevents.<key>").
type Event struct {
	Type Type
	ID   value.Id

	// UPSERT
	Statx    *fsentry.Statx
	Symlink  *string
	StatxMask fsentry.StatxMask

	// LINK / UNLINK
	ParentID value.Id
	Name     string
	NsXattrs map[string]value.Value

	// XATTR
	InodeXattrs map[string]value.Value
	InodeXattrOps map[string]XattrOp
	Named       *NamedXattrs

	// PARTIAL_UNLINK
	RmTime int64

	// Top-level enrichment hints, e.g. "rbh-fsevents.lustre".
	Xattrs map[string]value.Value
}

// EnrichHints returns the set of "rbh-fsevents.<key>" hints still
// attached to e, in unspecified order (they are read from a map).
func (e *Event) EnrichHints() []string {
	const prefix = "rbh-fsevents."
	var hints []string
	for k := range e.Xattrs {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			hints = append(hints, k[len(prefix):])
		}
	}
	return hints
}

// ClearHint removes a consumed enrichment hint so the event can be
// reported as "fully materialized" once every hint is gone.
func (e *Event) ClearHint(key string) {
	delete(e.Xattrs, "rbh-fsevents."+key)
}

// Pending reports whether e still carries unconsumed enrichment hints.
func (e *Event) Pending() bool { return len(e.EnrichHints()) > 0 }

// Iterator yields one owned Event per Next call. Implementations are
// single-pass: ID/ack semantics live one level up (Source).
type Iterator interface {
	// Next returns the next event, or a rherr.NoMoreData error when
	// the iterator is exhausted.
	Next() (Event, error)
	Close() error
}

// Sink applies a batch of fsevents and is then asked to Ack it once the
// whole batch has been durably applied.
type Sink interface {
	// Apply applies every event in the batch in order, as one logical
	// unit (implementations may use an unordered bulk write as long as
	// per-event ordering within a single semantic change is honored).
	Apply(events []Event) (applied int, err error)
}
