package repository

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// An empty sort field is passed through under the key "undefined", which no
// document carries, so the store falls back to its natural order.
const undefinedSortKey = "undefined"

func sortKey(field string) string {
	if field == "" {
		return undefinedSortKey
	}
	return field
}

func titleFilter(pattern string) bson.M {
	return bson.M{"title": primitive.Regex{Pattern: pattern, Options: "i"}}
}

func relatedFilter(category string, exclude primitive.ObjectID) bson.M {
	return bson.M{"category": category, "_id": bson.M{"$ne": exclude}}
}

// averageRatingStage projects the requested fields plus the mean of the rating array.
func averageRatingStage(fields ...string) bson.D {
	project := bson.D{}
	for _, f := range fields {
		project = append(project, bson.E{Key: f, Value: 1})
	}
	project = append(project, bson.E{Key: "rating", Value: bson.D{{Key: "$avg", Value: "$rating"}}})
	return bson.D{{Key: "$project", Value: project}}
}

// ratingPipeline sorts by the computed average descending and paginates. A zero limit means no limit.
func ratingPipeline(skip, limit int, fields ...string) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		averageRatingStage(fields...),
		bson.D{{Key: "$sort", Value: bson.D{{Key: "rating", Value: -1}}}},
	}
	if skip > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: int64(skip)}})
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: int64(limit)}})
	}
	return pipeline
}

var (
	summaryFields = []string{"_id", "title", "cover", "description", "category", "date", "tags"}
	topRatedField = []string{"_id", "title", "cover"}
)
