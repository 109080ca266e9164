package mongosink

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robinhood-suite/robinhood4-sub002/internal/backend"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

const infoDocID = 1

// GetInfo retrieves the singleton info document plus any derived
// facets flags asks for.
func (b *Backend) GetInfo(ctx context.Context, flags backend.InfoFlags) (map[string]value.Value, error) {
	out := map[string]value.Value{}

	if flags&(backend.InfoBackendSource|backend.InfoMountpoint) != 0 {
		var doc bson.M
		err := b.info.FindOne(ctx, bson.M{"_id": infoDocID}).Decode(&doc)
		if err != nil && err != mongo.ErrNoDocuments {
			return nil, classifyMongoErr(err)
		}
		if flags&backend.InfoBackendSource != 0 {
			if plugin, ok := doc["plugin"].(string); ok {
				out["plugin"] = value.String(plugin)
			}
		}
		if flags&backend.InfoMountpoint != 0 {
			if mp, ok := doc["mountpoint"].(string); ok {
				out["mountpoint"] = value.String(mp)
			}
		}
	}

	if flags&backend.InfoFsEventsSource != 0 {
		cur, err := b.readers.Find(ctx, bson.M{})
		if err != nil {
			return nil, classifyMongoErr(err)
		}
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			var r bson.M
			if err := cur.Decode(&r); err != nil {
				return nil, rherr.Wrap(rherr.BackendError, err)
			}
			id, _ := r["_id"].(string)
			lastRead, _ := r["last_read"].(int64)
			out["fsevents_source."+id+".last_read"] = value.Int64(lastRead)
		}
		if err := cur.Err(); err != nil {
			return nil, classifyMongoErr(err)
		}
	}

	if flags&backend.InfoCount != 0 {
		n, err := b.entries.CountDocuments(ctx, bson.M{})
		if err != nil {
			return nil, classifyMongoErr(err)
		}
		out["count"] = value.Int64(n)
	}

	if flags&(backend.InfoSize|backend.InfoAvgObjSize) != 0 {
		var stats bson.M
		cmd := bson.D{{Key: "collStats", Value: collEntries}}
		if err := b.db.RunCommand(ctx, cmd).Decode(&stats); err != nil {
			return nil, classifyMongoErr(err)
		}
		if flags&backend.InfoSize != 0 {
			out["size"] = value.Int64(bsonToInt64(stats["size"]))
		}
		if flags&backend.InfoAvgObjSize != 0 {
			out["avg_obj_size"] = value.Int64(bsonToInt64(stats["avgObjSize"]))
		}
	}

	if flags&(backend.InfoFirstSync|backend.InfoLastSync) != 0 {
		if flags&backend.InfoFirstSync != 0 {
			if t, ok := syncTime(ctx, b.log, 1); ok {
				out["first_sync"] = value.Int64(t)
			}
		}
		if flags&backend.InfoLastSync != 0 {
			if t, ok := syncTime(ctx, b.log, -1); ok {
				out["last_sync"] = value.Int64(t)
			}
		}
	}

	return out, nil
}

func bsonToInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int32:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	default:
		return 0
	}
}

// syncTime reads the "start" field of the first/last log record,
// ordered by _id (insertion order), order=1 for first, -1 for last.
func syncTime(ctx context.Context, log *mongo.Collection, order int) (int64, bool) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: order}})
	var doc bson.M
	if err := log.FindOne(ctx, bson.M{}, opts).Decode(&doc); err != nil {
		return 0, false
	}
	return bsonToInt64(doc["start"]), true
}

// SetInfo inserts/updates the singleton info document, the per-source
// readers entries, and appends one log record per completed sync.
func (b *Backend) SetInfo(ctx context.Context, info map[string]value.Value, flags backend.InfoFlags) error {
	if b.readOnly {
		return rherr.New(rherr.NotSupported, "backend opened read-only")
	}

	if flags&(backend.InfoBackendSource|backend.InfoMountpoint) != 0 {
		set := bson.M{}
		if v, ok := info["plugin"]; ok && v.Tag == value.TagString {
			set["plugin"] = v.Str
		}
		if v, ok := info["mountpoint"]; ok && v.Tag == value.TagString {
			set["mountpoint"] = v.Str
		}
		if len(set) > 0 {
			_, err := b.info.UpdateOne(ctx, bson.M{"_id": infoDocID}, bson.M{"$set": set}, options.Update().SetUpsert(true))
			if err != nil {
				return classifyMongoErr(err)
			}
		}
	}

	if flags&backend.InfoFsEventsSource != 0 {
		const prefix = "fsevents_source."
		const suffix = ".last_read"
		for k, v := range info {
			if len(k) <= len(prefix) || k[:len(prefix)] != prefix || v.Tag != value.TagInt64 {
				continue
			}
			rest := k[len(prefix):]
			if len(rest) <= len(suffix) || rest[len(rest)-len(suffix):] != suffix {
				continue
			}
			source := rest[:len(rest)-len(suffix)]
			_, err := b.readers.UpdateOne(ctx,
				bson.M{"_id": source},
				bson.M{"$set": bson.M{"last_read": v.I64}},
				options.Update().SetUpsert(true))
			if err != nil {
				return classifyMongoErr(err)
			}
		}
	}

	if flags&(backend.InfoFirstSync|backend.InfoLastSync) != 0 {
		doc := bson.M{}
		for _, k := range []string{"start", "end", "duration", "inserted", "skipped", "total", "mountpoint", "command_line"} {
			if v, ok := info[k]; ok {
				doc[k] = valueToBSON(v)
			}
		}
		if len(doc) > 0 {
			if _, err := b.log.InsertOne(ctx, doc); err != nil {
				return classifyMongoErr(err)
			}
		}
	}

	return nil
}
