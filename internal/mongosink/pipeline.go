package mongosink

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
)

// buildPipeline assembles the aggregation pipeline: $unwind, $match,
// optional $group, optional $sort, $project, then $skip/$limit. gc
// strips parent_id/name/ns_xattrs from the projection, since they are
// meaningless for documents with no live namespace edge.
func buildPipeline(f filter.Filter, opts filter.Options, out filter.Output, gc bool) (bson.A, error) {
	if err := validateSkipLimit(opts); err != nil {
		return nil, err
	}

	pipeline := bson.A{
		bson.M{"$unwind": bson.M{"path": "$namespace", "preserveNullAndEmptyArrays": gc}},
	}

	match, err := translateFilter(f)
	if err != nil {
		return nil, err
	}
	if len(match) > 0 {
		pipeline = append(pipeline, bson.M{"$match": match})
	}

	if len(out.GroupBy) > 0 {
		pipeline = append(pipeline, bson.M{"$group": groupStage(out.GroupBy)})
	}

	if len(opts.Sort) > 0 {
		sort := bson.D{}
		for _, key := range opts.Sort {
			dir := 1
			if key.Desc {
				dir = -1
			}
			sort = append(sort, bson.E{Key: key.Field, Value: dir})
		}
		pipeline = append(pipeline, bson.M{"$sort": sort})
	}

	pipeline = append(pipeline, bson.M{"$project": projectStage(out.Projection, gc)})

	if opts.Skip > 0 {
		pipeline = append(pipeline, bson.M{"$skip": opts.Skip})
	}
	if opts.Limit > 0 {
		pipeline = append(pipeline, bson.M{"$limit": opts.Limit})
	}
	return pipeline, nil
}

func validateSkipLimit(opts filter.Options) error {
	const i64max = int64(1<<63 - 1)
	if opts.Skip < 0 || opts.Skip > i64max {
		return rherr.New(rherr.NotSupported, "skip out of i64 range")
	}
	if opts.Limit < 0 || opts.Limit > i64max {
		return rherr.New(rherr.NotSupported, "limit out of i64 range")
	}
	return nil
}

func groupStage(groupBy []string) bson.M {
	id := bson.M{}
	for _, field := range groupBy {
		id[sanitizeGroupKey(field)] = "$" + field
	}
	return bson.M{"_id": id, "count": bson.M{"$sum": 1}}
}

// sanitizeGroupKey turns a dotted field path into a flat key usable as
// a $group._id sub-field name.
func sanitizeGroupKey(field string) string {
	out := make([]byte, len(field))
	for i := 0; i < len(field); i++ {
		if field[i] == '.' {
			out[i] = '_'
		} else {
			out[i] = field[i]
		}
	}
	return string(out)
}

func projectStage(p filter.Projection, gc bool) bson.M {
	proj := bson.M{"_id": 1}
	if !gc {
		proj["namespace.parent_id"] = 1
		proj["namespace.name"] = 1
		for _, k := range p.NsXattrs {
			proj["namespace.xattrs."+k] = 1
		}
	}
	if p.StatxMask != 0 {
		proj["statx"] = 1
	}
	for _, k := range p.InodeXattrs {
		proj["inode_xattrs."+k] = 1
	}
	if len(p.InodeXattrs) == 0 {
		proj["inode_xattrs"] = 1
	}
	proj["symlink"] = 1
	return proj
}
