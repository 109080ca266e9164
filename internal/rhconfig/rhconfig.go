// Package rhconfig implements the hierarchical key-value config tree:
// mongo/address, mongo/cursor_timeout, backends/<type>/iterator,
// backends/<type>/enrichers, and the
// retention xattr name, grounded on rclone's fs.ConfigMap/option
// registration idiom (options keyed by dotted/slashed path, with
// per-backend defaults resolved lazily).
package rhconfig

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

const (
	defaultMongoAddress = "mongodb://localhost:27017"
	defaultIterator     = "fts"
	defaultRetentionKey = "user.expires"
)

// Tree is a flat map keyed by slash-separated path ("mongo/address",
// "backends/posix/enrichers"), the way robinhood's own config store is
// a key-value tree rather than a nested document.
type Tree struct {
	values map[string]value.Value
}

// New builds an empty Tree; defaults are supplied by the accessor
// methods below, not baked into the map, so an explicit "unset" is
// distinguishable from "default".
func New() *Tree {
	return &Tree{values: map[string]value.Value{}}
}

// Load parses a YAML document of the form:
//
//	mongo:
//	  address: mongodb://host:27017
//	  cursor_timeout: 30
//	backends:
//	  posix:
//	    iterator: fts
//	    enrichers: [lustre, retention]
//	posix:
//	  retention_xattr: user.expires
//
// into the flat Tree representation.
func Load(data []byte) (*Tree, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, rherr.New(rherr.Invalid, "parsing config: %s", err)
	}
	t := New()
	flatten("", raw, t.values)
	return t, nil
}

func flatten(prefix string, node interface{}, out map[string]value.Value) {
	switch v := node.(type) {
	case map[string]interface{}:
		for k, child := range v {
			key := k
			if prefix != "" {
				key = prefix + "/" + k
			}
			flatten(key, child, out)
		}
	case []interface{}:
		seq := make([]value.Value, len(v))
		for i, e := range v {
			seq[i] = toLeaf(e)
		}
		out[prefix] = value.Sequence(seq)
	default:
		out[prefix] = toLeaf(v)
	}
}

func toLeaf(v interface{}) value.Value {
	switch t := v.(type) {
	case string:
		return value.String(t)
	case bool:
		return value.Boolean(t)
	case int:
		return value.Int64(int64(t))
	case int64:
		return value.Int64(t)
	case float64:
		return value.Int64(int64(t))
	default:
		return value.String("")
	}
}

// Get returns the raw value at key, if set.
func (t *Tree) Get(key string) (value.Value, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Set installs v at key.
func (t *Tree) Set(key string, v value.Value) {
	t.values[key] = v
}

// AsMap exposes the tree as the map[string]value.Value shape backend
// constructors expect for their config parameter.
func (t *Tree) AsMap() map[string]value.Value {
	out := make(map[string]value.Value, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

// MongoAddress returns mongo/address or its default.
func (t *Tree) MongoAddress() string {
	if v, ok := t.values["mongo/address"]; ok && v.Tag == value.TagString {
		return v.Str
	}
	return defaultMongoAddress
}

// Iterator returns backends/<type>/iterator or the "fts" default.
func (t *Tree) Iterator(backendType string) string {
	if v, ok := t.values["backends/"+backendType+"/iterator"]; ok && v.Tag == value.TagString {
		return v.Str
	}
	return defaultIterator
}

// Enrichers returns backends/<type>/enrichers, the ordered list of
// extension-provided enricher names to run during a walk.
func (t *Tree) Enrichers(backendType string) []string {
	v, ok := t.values["backends/"+backendType+"/enrichers"]
	if !ok || v.Tag != value.TagSequence {
		return nil
	}
	out := make([]string, 0, len(v.Seq))
	for _, e := range v.Seq {
		if e.Tag == value.TagString {
			out = append(out, e.Str)
		}
	}
	return out
}

// RetentionXattr returns posix/retention_xattr or the "user.expires" default.
func (t *Tree) RetentionXattr() string {
	if v, ok := t.values["posix/retention_xattr"]; ok && v.Tag == value.TagString {
		return v.Str
	}
	return defaultRetentionKey
}

// HasPrefix reports whether any key under the tree starts with prefix,
// used by CLI help/introspection to list a config subtree.
func (t *Tree) HasPrefix(prefix string) bool {
	for k := range t.values {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}
