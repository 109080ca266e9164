package sqlitesink

import (
	"context"
	"database/sql"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// applyEvent runs the SQL equivalent of mongosink.writeModels for one
// fsevent within tx, returning the number of rows it touched.
func applyEvent(ctx context.Context, tx *sql.Tx, ev fsevent.Event) (int, error) {
	switch ev.Type {
	case fsevent.Delete:
		if _, err := tx.ExecContext(ctx, "DELETE FROM namespace WHERE entry_id = ?", ev.ID.Bytes); err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", ev.ID.Bytes)
		return rowsAffected(res), err

	case fsevent.Unlink:
		res, err := tx.ExecContext(ctx, "DELETE FROM namespace WHERE parent_id = ? AND name = ?", ev.ParentID.Bytes, ev.Name)
		return rowsAffected(res), err

	case fsevent.Link:
		if _, err := tx.ExecContext(ctx, "DELETE FROM namespace WHERE parent_id = ? AND name = ?", ev.ParentID.Bytes, ev.Name); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO entries(id) VALUES (?)", ev.ID.Bytes); err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO namespace(parent_id, name, entry_id, xattrs) VALUES (?, ?, ?, ?)
			ON CONFLICT(parent_id, name) DO UPDATE SET entry_id = excluded.entry_id, xattrs = excluded.xattrs`,
			ev.ParentID.Bytes, ev.Name, ev.ID.Bytes, marshalXattrs(ev.NsXattrs))
		return rowsAffected(res), err

	case fsevent.Upsert:
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO entries(id) VALUES (?)", ev.ID.Bytes); err != nil {
			return 0, err
		}
		if ev.Statx != nil {
			if _, err := tx.ExecContext(ctx, "UPDATE entries SET statx = ? WHERE id = ?", marshalStatx(*ev.Statx), ev.ID.Bytes); err != nil {
				return 0, err
			}
		}
		if ev.Symlink != nil {
			if _, err := tx.ExecContext(ctx, "UPDATE entries SET symlink = ? WHERE id = ?", *ev.Symlink, ev.ID.Bytes); err != nil {
				return 0, err
			}
		}
		return 1, nil

	case fsevent.Xattr:
		if ev.Named != nil {
			existing, err := readNsXattrs(ctx, tx, ev.Named.ParentID.Bytes, ev.Named.Name)
			if err != nil {
				return 0, err
			}
			merged := mergeXattrs(existing, ev.Named.Xattrs, nil)
			res, err := tx.ExecContext(ctx, "UPDATE namespace SET xattrs = ? WHERE parent_id = ? AND name = ?",
				marshalXattrs(merged), ev.Named.ParentID.Bytes, ev.Named.Name)
			return rowsAffected(res), err
		}
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO entries(id) VALUES (?)", ev.ID.Bytes); err != nil {
			return 0, err
		}
		existing, err := readInodeXattrs(ctx, tx, ev.ID.Bytes)
		if err != nil {
			return 0, err
		}
		merged := mergeXattrs(existing, ev.InodeXattrs, ev.InodeXattrOps)
		res, err := tx.ExecContext(ctx, "UPDATE entries SET inode_xattrs = ? WHERE id = ?", marshalXattrs(merged), ev.ID.Bytes)
		return rowsAffected(res), err

	case fsevent.PartialUnlink:
		// Drops the namespace (the file is gone from the directory tree)
		// but keeps the entries row, recording rm_time as an inode xattr
		// rather than the mongo sink's namespace.xattrs.rm_time: a tombstone
		// here has no namespace rows left to carry it.
		if _, err := tx.ExecContext(ctx, "DELETE FROM namespace WHERE entry_id = ?", ev.ID.Bytes); err != nil {
			return 0, err
		}
		existing, err := readInodeXattrs(ctx, tx, ev.ID.Bytes)
		if err != nil {
			return 0, err
		}
		existing = mergeXattrs(existing, map[string]value.Value{"rm_time": value.Int64(ev.RmTime)}, nil)
		res, err := tx.ExecContext(ctx, "UPDATE entries SET inode_xattrs = ? WHERE id = ?", marshalXattrs(existing), ev.ID.Bytes)
		return rowsAffected(res), err

	default:
		return 0, nil
	}
}

// mergeXattrs applies new on top of existing, honoring per-key OpInc
// the way mongosink's $inc does.
func mergeXattrs(existing, updates map[string]value.Value, ops map[string]fsevent.XattrOp) map[string]value.Value {
	out := make(map[string]value.Value, len(existing)+len(updates))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range updates {
		if ops != nil && ops[k] == fsevent.OpInc {
			out[k] = value.Int64(uintAsInt64(out[k]) + uintAsInt64(v))
			continue
		}
		out[k] = v
	}
	return out
}

func uintAsInt64(v value.Value) int64 {
	switch v.Tag {
	case value.TagInt64:
		return v.I64
	case value.TagInt32:
		return int64(v.I32)
	case value.TagUint64:
		return int64(v.U64)
	case value.TagUint32:
		return int64(v.U32)
	default:
		return 0
	}
}

func readNsXattrs(ctx context.Context, tx *sql.Tx, parentID []byte, name string) (map[string]value.Value, error) {
	var xattrs sql.NullString
	err := tx.QueryRowContext(ctx, "SELECT xattrs FROM namespace WHERE parent_id = ? AND name = ?", parentID, name).Scan(&xattrs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalXattrs(xattrs.String), nil
}

func readInodeXattrs(ctx context.Context, tx *sql.Tx, id []byte) (map[string]value.Value, error) {
	var xattrs sql.NullString
	err := tx.QueryRowContext(ctx, "SELECT inode_xattrs FROM entries WHERE id = ?", id).Scan(&xattrs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalXattrs(xattrs.String), nil
}

func rowsAffected(res sql.Result) int {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
