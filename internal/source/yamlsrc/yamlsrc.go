// Package yamlsrc implements the YAML file fsevent source: a
// single-pass iterator over a stream of YAML documents, one per
// fsevent.
package yamlsrc

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// doc is the on-the-wire shape of one YAML fsevent document.
type doc struct {
	Type string `yaml:"type"`

	ID       string `yaml:"id"`
	ParentID string `yaml:"parent_id"`
	Name     string `yaml:"name"`

	Statx   *docStatx         `yaml:"statx,omitempty"`
	Symlink *string           `yaml:"symlink,omitempty"`
	NsXattrs map[string]any   `yaml:"ns_xattrs,omitempty"`
	InodeXattrs map[string]any `yaml:"inode_xattrs,omitempty"`
	Xattrs  map[string]any    `yaml:"xattrs,omitempty"`
	RmTime  int64             `yaml:"rm_time,omitempty"`
}

type docStatx struct {
	Mode   uint16 `yaml:"mode"`
	UID    uint32 `yaml:"uid"`
	GID    uint32 `yaml:"gid"`
	Size   uint64 `yaml:"size"`
	Blocks uint64 `yaml:"blocks"`
	Nlink  uint32 `yaml:"nlink"`
	Type   uint8  `yaml:"type"`
}

// Source is a single-pass fsevent.Iterator over a YAML document stream.
type Source struct {
	dec *yaml.Decoder
}

// New wraps r as a YAML fsevent source.
func New(r io.Reader) *Source {
	return &Source{dec: yaml.NewDecoder(bufio.NewReader(r))}
}

// Next decodes the next YAML document into an fsevent.Event, returning
// rherr.NoMoreData at end of stream.
func (s *Source) Next() (fsevent.Event, error) {
	var d doc
	if err := s.dec.Decode(&d); err != nil {
		if err == io.EOF {
			return fsevent.Event{}, rherr.New(rherr.NoMoreData, "end of yaml stream")
		}
		return fsevent.Event{}, rherr.New(rherr.Invalid, "decoding yaml fsevent: %s", err)
	}
	return fromDoc(d)
}

func (s *Source) Close() error { return nil }

func fromDoc(d doc) (fsevent.Event, error) {
	ev := fsevent.Event{
		ID:       value.Id{Bytes: []byte(d.ID)},
		ParentID: value.Id{Bytes: []byte(d.ParentID)},
		Name:     d.Name,
		RmTime:   d.RmTime,
	}
	if d.NsXattrs != nil {
		ev.NsXattrs = toValueMap(d.NsXattrs)
	}
	if d.InodeXattrs != nil {
		ev.InodeXattrs = toValueMap(d.InodeXattrs)
	}
	if d.Xattrs != nil {
		ev.Xattrs = toValueMap(d.Xattrs)
	}
	if d.Statx != nil {
		stx := &fsentry.Statx{
			Mode: d.Statx.Mode, UID: d.Statx.UID, GID: d.Statx.GID,
			Size: d.Statx.Size, Blocks: d.Statx.Blocks, Nlink: d.Statx.Nlink,
			Type: fsentry.FileType(d.Statx.Type),
		}
		ev.Statx = stx
	}
	ev.Symlink = d.Symlink

	switch d.Type {
	case "UPSERT":
		ev.Type = fsevent.Upsert
	case "LINK":
		ev.Type = fsevent.Link
	case "UNLINK":
		ev.Type = fsevent.Unlink
	case "XATTR":
		ev.Type = fsevent.Xattr
	case "DELETE":
		ev.Type = fsevent.Delete
	case "PARTIAL_UNLINK":
		ev.Type = fsevent.PartialUnlink
	default:
		return fsevent.Event{}, rherr.New(rherr.Invalid, "unknown fsevent type %q", d.Type)
	}
	return ev, nil
}

// toValueMap projects a generic YAML-decoded map into value.Value,
// covering the scalar shapes the wire format actually uses; sequences
// and nested maps recurse.
func toValueMap(m map[string]any) map[string]value.Value {
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v any) value.Value {
	switch t := v.(type) {
	case string:
		return value.String(t)
	case bool:
		return value.Boolean(t)
	case int:
		return value.Int64(int64(t))
	case int64:
		return value.Int64(t)
	case uint64:
		return value.Uint64(t)
	case float64:
		return value.Int64(int64(t))
	case []byte:
		return value.Binary(t)
	case []any:
		seq := make([]value.Value, len(t))
		for i, e := range t {
			seq[i] = toValue(e)
		}
		return value.Sequence(seq)
	case map[string]any:
		return value.Map(toValueMap(t))
	default:
		return value.String("")
	}
}
