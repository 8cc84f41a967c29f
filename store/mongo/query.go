package mongo

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/unkn0wn-root/tagcache/store"
)

// Query translates f into a find/delete filter document.
func Query(f store.Filter) bson.D {
	tags := f.Tags
	if tags == nil {
		tags = []string{} // nil encodes as null, which $all/$in/$nin reject
	}
	switch f.Op {
	case store.MatchAll:
		return bson.D{}
	case store.MatchExpired:
		// l is null or 0 for infinite entries; $ifNull folds both onto 0.
		lifetime := bson.D{{Key: "$ifNull", Value: bson.A{"$" + store.FieldLifetime, 0}}}
		return bson.D{{Key: "$expr", Value: bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$ne", Value: bson.A{lifetime, 0}}},
			bson.D{{Key: "$lt", Value: bson.A{
				bson.D{{Key: "$add", Value: bson.A{"$" + store.FieldCreatedAt, lifetime}}},
				f.Now,
			}}},
		}}}}}
	case store.MatchTagsAll:
		return bson.D{{Key: store.FieldTags, Value: bson.D{{Key: "$all", Value: tags}}}}
	case store.MatchTagsNone:
		return bson.D{{Key: store.FieldTags, Value: bson.D{{Key: "$nin", Value: tags}}}}
	case store.MatchTagsAny:
		return bson.D{{Key: store.FieldTags, Value: bson.D{{Key: "$in", Value: tags}}}}
	default:
		// Unknown operations match nothing rather than everything.
		return bson.D{{Key: store.FieldKey, Value: bson.D{{Key: "$in", Value: bson.A{}}}}}
	}
}

// TagPipeline counts documents per tag, ordered by tag.
func TagPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$unwind", Value: "$" + store.FieldTags}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + store.FieldTags},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}
