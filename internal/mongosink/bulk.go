package mongosink

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsevent"
)

// writeModels synthesizes the selector+update models for one fsevent.
// Event types needing two models (LINK's implicit unlink-first step,
// PARTIAL_UNLINK's stamp-then-strip) return both, in apply order.
func writeModels(ev fsevent.Event) []mongo.WriteModel {
	selector := bson.M{"_id": ev.ID.Bytes}

	switch ev.Type {
	case fsevent.Delete:
		return []mongo.WriteModel{mongo.NewDeleteOneModel().SetFilter(selector)}

	case fsevent.Unlink:
		update := bson.M{"$pull": bson.M{"namespace": bson.M{"parent_id": ev.ParentID.Bytes, "name": ev.Name}}}
		return []mongo.WriteModel{mongo.NewUpdateOneModel().SetFilter(selector).SetUpdate(update)}

	case fsevent.Link:
		unlinkFirst := bson.M{"$pull": bson.M{"namespace": bson.M{"parent_id": ev.ParentID.Bytes, "name": ev.Name}}}
		entry := bson.M{"parent_id": ev.ParentID.Bytes, "name": ev.Name}
		if ev.NsXattrs != nil {
			entry["xattrs"] = xattrsToBSON(ev.NsXattrs)
		}
		addToSet := bson.M{"$addToSet": bson.M{"namespace": entry}}
		return []mongo.WriteModel{
			mongo.NewUpdateOneModel().SetFilter(selector).SetUpdate(unlinkFirst),
			mongo.NewUpdateOneModel().SetFilter(selector).SetUpdate(addToSet).SetUpsert(true),
		}

	case fsevent.Upsert:
		set := bson.M{}
		if ev.Statx != nil {
			for k, v := range statxToBSON(*ev.Statx) {
				set["statx."+k] = v
			}
		}
		if ev.Symlink != nil {
			set["symlink"] = *ev.Symlink
		}
		update := bson.M{}
		if len(set) > 0 {
			update["$set"] = set
		}
		return []mongo.WriteModel{mongo.NewUpdateOneModel().SetFilter(selector).SetUpdate(update).SetUpsert(true)}

	case fsevent.Xattr:
		if ev.Named != nil {
			namedSelector := bson.M{
				"_id":       ev.ID.Bytes,
				"namespace": bson.M{"$elemMatch": bson.M{"parent_id": ev.Named.ParentID.Bytes, "name": ev.Named.Name}},
			}
			set := bson.M{}
			for k, v := range ev.Named.Xattrs {
				set["namespace.$.xattrs."+k] = valueToBSON(v)
			}
			update := bson.M{"$set": set}
			return []mongo.WriteModel{mongo.NewUpdateOneModel().SetFilter(namedSelector).SetUpdate(update)}
		}
		set := bson.M{}
		inc := bson.M{}
		for k, v := range ev.InodeXattrs {
			if op, ok := ev.InodeXattrOps[k]; ok && op == fsevent.OpInc {
				inc["inode_xattrs."+k] = valueToBSON(v)
			} else {
				set["inode_xattrs."+k] = valueToBSON(v)
			}
		}
		update := bson.M{}
		if len(set) > 0 {
			update["$set"] = set
		}
		if len(inc) > 0 {
			update["$inc"] = inc
		}
		if len(update) == 0 {
			return nil
		}
		return []mongo.WriteModel{mongo.NewUpdateOneModel().SetFilter(selector).SetUpdate(update).SetUpsert(true)}

	case fsevent.PartialUnlink:
		// Stamp rm_time while the namespace elements still exist (their
		// xattrs keep the surviving path), then strip parent_id/name so
		// no live edge remains and only the tombstoned xattrs survive.
		stamp := bson.M{"$set": bson.M{"namespace.$[].xattrs.rm_time": ev.RmTime}}
		strip := bson.M{"$unset": bson.M{"namespace.$[].parent_id": "", "namespace.$[].name": ""}}
		return []mongo.WriteModel{
			mongo.NewUpdateOneModel().SetFilter(selector).SetUpdate(stamp),
			mongo.NewUpdateOneModel().SetFilter(selector).SetUpdate(strip),
		}

	default:
		return nil
	}
}

// buildWriteModels flattens writeModels across a batch, preserving
// per-event ordering within one logical change even though
// the batch as a whole is submitted unordered.
func buildWriteModels(events []fsevent.Event) []mongo.WriteModel {
	var models []mongo.WriteModel
	for _, ev := range events {
		models = append(models, writeModels(ev)...)
	}
	return models
}
