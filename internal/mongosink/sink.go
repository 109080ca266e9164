package mongosink

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robinhood-suite/robinhood4-sub002/internal/backend"
	"github.com/robinhood-suite/robinhood4-sub002/internal/branch"
	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

const (
	collEntries  = "entries"
	collInfo     = "info"
	collReaders  = "readers"
	collLog      = "log"
	defaultAddr  = "mongodb://localhost:27017"
	pluginName   = "mongo"
	pluginGCName = "mongo-gc"
)

// Backend is the MongoDB mirror: one document per inode in
// entries, plus info/readers/log bookkeeping collections.
type Backend struct {
	client *mongo.Client
	db     *mongo.Database

	entries *mongo.Collection
	info    *mongo.Collection
	readers *mongo.Collection
	log     *mongo.Collection

	readOnly bool
	// gc switches Filter/Report/Root into the garbage-collection view.
	gc bool
}

// buildURI folds a robinhood URI's authority (or the configured
// mongo/address) into a Mongo connection string.
func buildURI(u backend.URI, config map[string]value.Value) string {
	if u.Authority == "" {
		if v, ok := config["mongo/address"]; ok && v.Tag == value.TagString {
			return v.Str
		}
		return defaultAddr
	}
	return "mongodb://" + u.Authority
}

func cursorTimeout(config map[string]value.Value) time.Duration {
	if v, ok := config["mongo/cursor_timeout"]; ok && v.Tag == value.TagInt64 {
		return time.Duration(v.I64) * time.Second
	}
	return 0
}

// New connects to the configured Mongo deployment and opens the
// database named by the URI's fsname.
func New(ctx context.Context, u backend.URI, config map[string]value.Value, readOnly, gc bool) (*Backend, error) {
	clientOpts := options.Client().ApplyURI(buildURI(u, config))
	if to := cursorTimeout(config); to > 0 {
		clientOpts.SetSocketTimeout(to)
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, rherr.Wrap(rherr.NotConnected, err)
	}
	dbName := u.Fsname
	if dbName == "" {
		dbName = "robinhood"
	}
	db := client.Database(dbName)
	return &Backend{
		client:   client,
		db:       db,
		entries:  db.Collection(collEntries),
		info:     db.Collection(collInfo),
		readers:  db.Collection(collReaders),
		log:      db.Collection(collLog),
		readOnly: readOnly,
		gc:       gc,
	}, nil
}

func (b *Backend) GetOption(ctx context.Context, key string) (value.Value, error) {
	return value.Value{}, rherr.New(rherr.NotSupported, "mongo backend has no per-call options")
}

func (b *Backend) SetOption(ctx context.Context, key string, v value.Value) error {
	return rherr.New(rherr.NotSupported, "mongo backend has no per-call options")
}

// Branch returns a view of the subtree rooted at id (see scopedBackend);
// path is recorded on the view but not used to scope queries.
func (b *Backend) Branch(ctx context.Context, id value.Id, path string) (backend.Backend, error) {
	return &scopedBackend{Backend: b, rootID: id, rootPath: path}, nil
}

func (b *Backend) Root(ctx context.Context, proj filter.Projection) (fsentry.Entry, error) {
	return b.rootEntry(ctx, value.Id{}, proj)
}

func (b *Backend) rootEntry(ctx context.Context, scopeID value.Id, proj filter.Projection) (fsentry.Entry, error) {
	f := filter.Compare("_id", filter.OpEq, value.Binary(scopeID.Bytes))
	it, err := b.Filter(ctx, f, filter.Options{One: true}, filter.Output{Projection: proj})
	if err != nil {
		return fsentry.Entry{}, err
	}
	defer it.Close()
	return it.Next()
}

func (b *Backend) Filter(ctx context.Context, f filter.Filter, opts filter.Options, out filter.Output) (backend.EntryIter, error) {
	pipeline, err := buildPipeline(f, opts, out, b.gc)
	if err != nil {
		return nil, err
	}
	aggOpts := options.Aggregate().SetAllowDiskUse(true)
	cur, err := b.entries.Aggregate(ctx, pipeline, aggOpts)
	if err != nil {
		return nil, classifyMongoErr(err)
	}
	return &cursorIter{ctx: ctx, cur: cur, gc: b.gc}, nil
}

func (b *Backend) Report(ctx context.Context, f filter.Filter, groupBy []string, opts filter.Options, out filter.Output) (backend.EntryIter, error) {
	out.Type = filter.OutputAggregation
	out.GroupBy = groupBy
	return b.Filter(ctx, f, opts, out)
}

// Update applies a batch of fsevents as one unordered bulk write. The
// events are drained from the iterator first so ordering within one
// semantic change is preserved before the bulk write flattens it into
// WriteModels.
func (b *Backend) Update(ctx context.Context, events fsevent.Iterator) (int, error) {
	if b.readOnly {
		return 0, rherr.New(rherr.NotSupported, "backend opened read-only")
	}
	var batch []fsevent.Event
	for {
		ev, err := events.Next()
		if rherr.Is(err, rherr.NoMoreData) {
			break
		}
		if err != nil {
			return 0, err
		}
		batch = append(batch, ev)
	}
	models := buildWriteModels(batch)
	if len(models) == 0 {
		return 0, nil
	}
	res, err := b.entries.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	applied := 0
	if res != nil {
		applied = int(res.ModifiedCount + res.UpsertedCount + res.DeletedCount)
	}
	if err != nil {
		return applied, classifyMongoErr(err)
	}
	return applied, nil
}

func (b *Backend) GetAttribute(ctx context.Context, flags uint32, ctxValue value.Value, pairs []string) (map[string]value.Value, error) {
	return nil, rherr.New(rherr.NotSupported, "mongo backend has no ad-hoc attribute RPC")
}

func (b *Backend) Destroy(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

// classifyMongoErr maps a driver error to the "again" retryable kind
// when it's flagged as a transient transaction error, else a generic
// backend error carrying the driver message.
func classifyMongoErr(err error) error {
	if cmdErr, ok := err.(mongo.CommandError); ok && cmdErr.HasErrorLabel("TransientTransactionError") {
		return rherr.New(rherr.Again, "transient mongo transaction: %s", err)
	}
	return rherr.New(rherr.BackendError, "%s", err)
}

// cursorIter adapts a mongo.Cursor to backend.EntryIter.
type cursorIter struct {
	ctx context.Context
	cur *mongo.Cursor
	gc  bool
}

func (c *cursorIter) Next() (fsentry.Entry, error) {
	if !c.cur.Next(c.ctx) {
		if err := c.cur.Err(); err != nil {
			return fsentry.Entry{}, classifyMongoErr(err)
		}
		return fsentry.Entry{}, rherr.New(rherr.NoMoreData, "cursor exhausted")
	}
	var raw bson.M
	if err := c.cur.Decode(&raw); err != nil {
		return fsentry.Entry{}, rherr.Wrap(rherr.BackendError, err)
	}
	return decodeProjected(raw), nil
}

func (c *cursorIter) Close() error { return c.cur.Close(c.ctx) }

// decodeProjected reconstructs a partial fsentry.Entry from one
// $unwind+$project result row, which mixes top-level and
// "namespace.<field>" flattened keys depending on the projection.
func decodeProjected(raw bson.M) fsentry.Entry {
	e := fsentry.Entry{Mask: fsentry.MaskID}
	if id, ok := idBytes(raw["_id"]); ok {
		e.ID = value.Id{Bytes: id}
	}
	if ns, ok := raw["namespace"].(bson.M); ok {
		if pid, ok := idBytes(ns["parent_id"]); ok {
			e.ParentID = value.Id{Bytes: pid}
			e.Mask |= fsentry.MaskParentID
		}
		if name, ok := ns["name"].(string); ok {
			e.Name = name
			e.Mask |= fsentry.MaskName
		}
		if xattrs, ok := ns["xattrs"].(bson.M); ok {
			e.NsXattrs = fromBSONMap(toGenericMap(xattrs))
			e.Mask |= fsentry.MaskNsXattrs
		}
	}
	if stx, ok := raw["statx"].(bson.M); ok {
		e.Statx = statxFromBSON(toGenericMap(stx))
		e.Mask |= fsentry.MaskStatx
	}
	if ix, ok := raw["inode_xattrs"].(bson.M); ok {
		e.InodeXattrs = fromBSONMap(toGenericMap(ix))
		e.Mask |= fsentry.MaskInodeXattrs
	}
	if sym, ok := raw["symlink"].(string); ok {
		e.Symlink = sym
		e.Mask |= fsentry.MaskSymlink
	}
	return e
}

// idBytes normalizes the two shapes the driver may hand back for a
// []byte field decoded into a bson.M: primitive.Binary or a raw slice.
func idBytes(v interface{}) ([]byte, bool) {
	switch t := v.(type) {
	case primitive.Binary:
		return t.Data, true
	case []byte:
		return t, true
	default:
		return nil, false
	}
}

func toGenericMap(m bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// scopedBackend implements the Branch(id, path) view: Root returns the
// entry for rootID, and Filter runs the generic branch iterator
// (internal/branch) over the embedded Backend from rootID. Every other
// method, Report included, is the embedded Backend's and is not
// restricted to the subtree.
type scopedBackend struct {
	*Backend
	rootID   value.Id
	rootPath string
}

func (s *scopedBackend) Root(ctx context.Context, proj filter.Projection) (fsentry.Entry, error) {
	return s.rootEntry(ctx, s.rootID, proj)
}

func (s *scopedBackend) Branch(ctx context.Context, id value.Id, path string) (backend.Backend, error) {
	return &scopedBackend{Backend: s.Backend, rootID: id, rootPath: path}, nil
}

// Filter on a scoped view runs the generic bounded-memory branch
// iterator (internal/branch) rooted at rootID instead of Backend's
// flat aggregation query, since the subtree must be discovered
// recursively rather than matched in one pipeline.
func (s *scopedBackend) Filter(ctx context.Context, f filter.Filter, opts filter.Options, out filter.Output) (backend.EntryIter, error) {
	return branch.New(ctx, s.Backend, s.rootID, f, opts, out)
}
