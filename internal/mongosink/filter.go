package mongosink

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// translateFilter walks f into a Mongo query document for a $match
// stage. Bit-set tests compile to
// $expr using the server-side bit operators so they run after $unwind
// alongside the rest of the match.
func translateFilter(f filter.Filter) (bson.M, error) {
	switch f.Op {
	case filter.OpAnd:
		return combine("$and", f.Children)
	case filter.OpOr:
		return combine("$or", f.Children)
	case filter.OpNot:
		if len(f.Children) != 1 {
			return nil, rherr.New(rherr.Invalid, "NOT filter requires exactly one child")
		}
		inner, err := translateFilter(f.Children[0])
		if err != nil {
			return nil, err
		}
		return bson.M{"$nor": bson.A{inner}}, nil
	case filter.OpExists:
		return bson.M{f.Field: bson.M{"$exists": true}}, nil
	case filter.OpEq:
		return bson.M{f.Field: valueToBSON(f.Value)}, nil
	case filter.OpNe:
		return bson.M{f.Field: bson.M{"$ne": valueToBSON(f.Value)}}, nil
	case filter.OpLt:
		return bson.M{f.Field: bson.M{"$lt": valueToBSON(f.Value)}}, nil
	case filter.OpLe:
		return bson.M{f.Field: bson.M{"$lte": valueToBSON(f.Value)}}, nil
	case filter.OpGt:
		return bson.M{f.Field: bson.M{"$gt": valueToBSON(f.Value)}}, nil
	case filter.OpGe:
		return bson.M{f.Field: bson.M{"$gte": valueToBSON(f.Value)}}, nil
	case filter.OpRegex:
		return bson.M{f.Field: bson.M{"$regex": primitiveRegex(f.Value.Str, f.Value.Flags)}}, nil
	case filter.OpBitsAnySet:
		return bitExpr("$bitsAnySet", f.Field, f.Value), nil
	case filter.OpBitsAllSet:
		return bitExpr("$bitsAllSet", f.Field, f.Value), nil
	case filter.OpBitsAnyClear:
		return bitExpr("$bitsAnyClear", f.Field, f.Value), nil
	case filter.OpBitsAllClear:
		return bitExpr("$bitsAllClear", f.Field, f.Value), nil
	default:
		return nil, rherr.New(rherr.Invalid, "unknown filter op %d", f.Op)
	}
}

func combine(op string, children []filter.Filter) (bson.M, error) {
	clauses := make(bson.A, 0, len(children))
	for _, c := range children {
		m, err := translateFilter(c)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, m)
	}
	return bson.M{op: clauses}, nil
}

// bitExpr compiles one of the four bit-set predicates into an $expr
// using the server-side bit operators, since plain query operators
// can't express them.
func bitExpr(op, field string, v value.Value) bson.M {
	return bson.M{"$expr": bson.M{op: bson.A{"$" + field, valueToBSON(v)}}}
}
