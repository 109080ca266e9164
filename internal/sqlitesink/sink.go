package sqlitesink

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/robinhood-suite/robinhood4-sub002/internal/backend"
	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id BLOB PRIMARY KEY,
	statx TEXT,
	symlink TEXT,
	inode_xattrs TEXT
);
CREATE TABLE IF NOT EXISTS namespace (
	parent_id BLOB,
	name TEXT,
	entry_id BLOB NOT NULL,
	xattrs TEXT,
	rm_time INTEGER,
	PRIMARY KEY (parent_id, name)
);
CREATE INDEX IF NOT EXISTS namespace_entry_id ON namespace(entry_id);
CREATE TABLE IF NOT EXISTS info (key TEXT PRIMARY KEY, value TEXT);
CREATE TABLE IF NOT EXISTS log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	start_time INTEGER, end_time INTEGER,
	inserted INTEGER, total INTEGER, mountpoint TEXT
);
`

// Backend mirrors a filesystem tree into one SQLite database — the
// mongo sink's document shape, adapted to two flat tables joined on
// entry id instead of one server-side document — for single-node
// deployments without a Mongo cluster to point at.
type Backend struct {
	db       *sql.DB
	readOnly bool
}

// New opens (creating if absent) the SQLite file named by u.Path, or by
// u.Fsname when u.Path is empty.
func New(ctx context.Context, u backend.URI, config map[string]value.Value, readOnly bool) (*Backend, error) {
	path := u.Fsname
	if u.Path != "" {
		path = u.Path
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, rherr.Wrap(rherr.BackendError, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, rherr.Wrap(rherr.BackendError, err)
	}
	return &Backend{db: db, readOnly: readOnly}, nil
}

func (b *Backend) GetOption(ctx context.Context, key string) (value.Value, error) {
	return value.Value{}, rherr.New(rherr.NotSupported, "sqlite backend has no per-call options")
}

func (b *Backend) SetOption(ctx context.Context, key string, v value.Value) error {
	return rherr.New(rherr.NotSupported, "sqlite backend has no per-call options")
}

// Branch returns a view restricted to the subtree rooted at id, walked
// in memory over the same full scan Filter already performs — the
// whole result set fits in memory for the embedded single-node case
// this sink targets, so there is no need for mongosink's bounded-memory
// branch iterator.
func (b *Backend) Branch(ctx context.Context, id value.Id, path string) (backend.Backend, error) {
	return &scopedBackend{Backend: b, rootID: id}, nil
}

func (b *Backend) Root(ctx context.Context, proj filter.Projection) (fsentry.Entry, error) {
	it, err := b.Filter(ctx, filter.Filter{Op: filter.OpNot, Children: []filter.Filter{{Op: filter.OpExists, Field: "namespace.parent_id"}}}, filter.Options{One: true}, filter.Output{Projection: proj})
	if err != nil {
		return fsentry.Entry{}, err
	}
	defer it.Close()
	return it.Next()
}

func (b *Backend) Filter(ctx context.Context, f filter.Filter, opts filter.Options, out filter.Output) (backend.EntryIter, error) {
	rows, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}
	var matched []fsentry.Entry
	for _, r := range rows {
		if !evalFilter(f, r) {
			continue
		}
		matched = append(matched, rowToEntry(r))
		if opts.One && len(matched) == 1 {
			break
		}
	}
	if opts.Skip > 0 {
		if int(opts.Skip) >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return &sliceIter{entries: matched}, nil
}

func (b *Backend) Update(ctx context.Context, events fsevent.Iterator) (int, error) {
	if b.readOnly {
		return 0, rherr.New(rherr.NotSupported, "backend opened read-only")
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, rherr.Wrap(rherr.BackendError, err)
	}
	applied := 0
	for {
		ev, err := events.Next()
		if rherr.Is(err, rherr.NoMoreData) {
			break
		}
		if err != nil {
			tx.Rollback()
			return applied, err
		}
		n, err := applyEvent(ctx, tx, ev)
		if err != nil {
			tx.Rollback()
			return applied, rherr.Wrap(rherr.BackendError, err)
		}
		applied += n
	}
	if err := tx.Commit(); err != nil {
		return applied, rherr.Wrap(rherr.BackendError, err)
	}
	return applied, nil
}

func (b *Backend) Report(ctx context.Context, f filter.Filter, groupBy []string, opts filter.Options, out filter.Output) (backend.EntryIter, error) {
	return nil, rherr.New(rherr.NotSupported, "sqlite backend does not implement aggregation reports")
}

func (b *Backend) GetInfo(ctx context.Context, flags backend.InfoFlags) (map[string]value.Value, error) {
	out := map[string]value.Value{}
	if flags&backend.InfoMountpoint != 0 {
		var v string
		if err := b.db.QueryRowContext(ctx, "SELECT value FROM info WHERE key = 'mountpoint'").Scan(&v); err == nil {
			out["mountpoint"] = value.String(v)
		}
	}
	if flags&backend.InfoCount != 0 {
		var n int64
		if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n); err == nil {
			out["count"] = value.Int64(n)
		}
	}
	return out, nil
}

func (b *Backend) SetInfo(ctx context.Context, info map[string]value.Value, flags backend.InfoFlags) error {
	if v, ok := info["mountpoint"]; ok {
		_, err := b.db.ExecContext(ctx, "INSERT INTO info(key, value) VALUES ('mountpoint', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", v.Str)
		if err != nil {
			return rherr.Wrap(rherr.BackendError, err)
		}
	}
	return nil
}

func (b *Backend) GetAttribute(ctx context.Context, flags uint32, ctxValue value.Value, pairs []string) (map[string]value.Value, error) {
	return nil, rherr.New(rherr.NotSupported, "sqlite backend has no ad-hoc attribute RPC")
}

func (b *Backend) Destroy(ctx context.Context) error { return b.db.Close() }

// scopedBackend restricts Filter/Root to the subtree under rootID. It
// walks parent_id edges in memory rather than a SQL recursive CTE,
// since Filter already materializes the whole entries⋈namespace join
// for in-process AST evaluation (see eval.go).
type scopedBackend struct {
	*Backend
	rootID value.Id
}

func (s *scopedBackend) Root(ctx context.Context, proj filter.Projection) (fsentry.Entry, error) {
	it, err := s.Backend.Filter(ctx, filter.Compare("_id", filter.OpEq, value.Binary(s.rootID.Bytes)), filter.Options{One: true}, filter.Output{Projection: proj})
	if err != nil {
		return fsentry.Entry{}, err
	}
	defer it.Close()
	return it.Next()
}

func (s *scopedBackend) Filter(ctx context.Context, f filter.Filter, opts filter.Options, out filter.Output) (backend.EntryIter, error) {
	rows, err := s.Backend.scan(ctx)
	if err != nil {
		return nil, err
	}
	subtree := descendantIDs(rows, s.rootID.Bytes)
	rootKey := string(s.rootID.Bytes)
	var matched []fsentry.Entry
	for _, r := range rows {
		// Filter yields descendants only; the root entry itself is
		// reached through Root, matching the iteration split
		// internal/branch.Iterator also draws between its directories
		// seed query and its emitted fsentries.
		if string(r.id) == rootKey || !subtree[string(r.id)] {
			continue
		}
		if !evalFilter(f, r) {
			continue
		}
		matched = append(matched, rowToEntry(r))
		if opts.One && len(matched) == 1 {
			break
		}
	}
	if opts.Skip > 0 {
		if int(opts.Skip) >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return &sliceIter{entries: matched}, nil
}

// descendantIDs returns the set of ids reachable from root by
// following parent_id edges downward, root included.
func descendantIDs(rows []row, root []byte) map[string]bool {
	childrenOf := map[string][]string{}
	for _, r := range rows {
		if r.hasParent {
			childrenOf[string(r.parentID)] = append(childrenOf[string(r.parentID)], string(r.id))
		}
	}
	visited := map[string]bool{string(root): true}
	queue := []string{string(root)}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range childrenOf[id] {
			if !visited[child] {
				visited[child] = true
				queue = append(queue, child)
			}
		}
	}
	return visited
}

// sliceIter adapts a pre-materialized []fsentry.Entry into
// backend.EntryIter, since the in-process scan above already has the
// whole result set in memory.
type sliceIter struct {
	entries []fsentry.Entry
	i       int
}

func (s *sliceIter) Next() (fsentry.Entry, error) {
	if s.i >= len(s.entries) {
		return fsentry.Entry{}, rherr.New(rherr.NoMoreData, "sqlite result set exhausted")
	}
	e := s.entries[s.i]
	s.i++
	return e, nil
}

func (s *sliceIter) Close() error { return nil }

func rowToEntry(r row) fsentry.Entry {
	e := fsentry.Entry{Mask: fsentry.MaskID, ID: value.Id{Bytes: r.id}}
	if r.hasParent {
		e.Mask |= fsentry.MaskParentID | fsentry.MaskName
		e.ParentID = value.Id{Bytes: r.parentID}
		e.Name = r.name
		if r.nsXattrs != nil {
			e.NsXattrs = r.nsXattrs
			e.Mask |= fsentry.MaskNsXattrs
		}
	}
	if r.inodeXattrs != nil {
		e.InodeXattrs = r.inodeXattrs
		e.Mask |= fsentry.MaskInodeXattrs
	}
	return e
}

// scan pulls the full entries⋈namespace join into memory, the
// necessary tradeoff for evaluating the generic filter AST in Go
// (see eval.go).
func (b *Backend) scan(ctx context.Context) ([]row, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT e.id, e.inode_xattrs, n.parent_id, n.name, n.xattrs
		FROM entries e LEFT JOIN namespace n ON n.entry_id = e.id
	`)
	if err != nil {
		return nil, rherr.Wrap(rherr.BackendError, err)
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var id, parentID []byte
		var inodeXattrsJSON, name, nsXattrsJSON sql.NullString
		if err := rows.Scan(&id, &inodeXattrsJSON, &parentID, &name, &nsXattrsJSON); err != nil {
			return nil, rherr.Wrap(rherr.BackendError, err)
		}
		r := row{
			id:          id,
			inodeXattrs: unmarshalXattrs(inodeXattrsJSON.String),
		}
		if parentID != nil {
			r.hasParent = true
			r.parentID = parentID
			r.name = name.String
			r.nsXattrs = unmarshalXattrs(nsXattrsJSON.String)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, rherr.Wrap(rherr.BackendError, err)
	}
	return out, nil
}
