package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/cppla/blogposts/models"
)

type postDocument struct {
	ID          primitive.ObjectID `bson:"_id"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Author      string             `bson:"author"`
	Category    string             `bson:"category"`
	Content     string             `bson:"content"`
	Cover       string             `bson:"cover"`
	Tags        []string           `bson:"tags"`
	Date        time.Time          `bson:"date"`
	Views       int64              `bson:"views"`
	Rating      []float64          `bson:"rating"`
}

// ratedDocument is an aggregation row; rating is null when the array is empty.
type ratedDocument struct {
	ID          primitive.ObjectID `bson:"_id"`
	Title       string             `bson:"title"`
	Cover       string             `bson:"cover"`
	Description string             `bson:"description"`
	Category    string             `bson:"category"`
	Date        time.Time          `bson:"date"`
	Tags        []string           `bson:"tags"`
	Rating      *float64           `bson:"rating"`
}

func (d postDocument) toPost() models.Post {
	p := models.Post{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Author:      d.Author,
		Category:    d.Category,
		Content:     d.Content,
		Cover:       d.Cover,
		Tags:        d.Tags,
		Date:        d.Date,
		Views:       d.Views,
		Rating:      d.Rating,
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Rating == nil {
		p.Rating = []float64{}
	}
	return p
}

// MongoPostRepository stores posts as documents in a single collection.
type MongoPostRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoPostRepository wraps an already connected client and its posts collection.
func NewMongoPostRepository(client *mongo.Client, coll *mongo.Collection) *MongoPostRepository {
	return &MongoPostRepository{client: client, coll: coll}
}

// EnsureIndexes creates the indexes backing the sorted and filtered reads.
func (r *MongoPostRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: -1}}},
		{Keys: bson.D{{Key: "views", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
	})
	return err
}

func (r *MongoPostRepository) Count(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{})
}

func (r *MongoPostRepository) List(ctx context.Context, sortField string, skip, limit int) ([]models.Post, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: sortKey(sortField), Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	return r.find(ctx, bson.M{}, opts)
}

func (r *MongoPostRepository) ListByRating(ctx context.Context, skip, limit int) ([]models.Post, error) {
	rows, err := r.aggregateRated(ctx, ratingPipeline(skip, limit, summaryFields...))
	if err != nil {
		return nil, err
	}
	posts := make([]models.Post, 0, len(rows))
	for _, d := range rows {
		posts = append(posts, models.Post{
			ID:          d.ID.Hex(),
			Title:       d.Title,
			Cover:       d.Cover,
			Description: d.Description,
			Category:    d.Category,
			Date:        d.Date,
			Tags:        d.Tags,
		})
	}
	return posts, nil
}

func (r *MongoPostRepository) CountByTitle(ctx context.Context, pattern string) (int64, error) {
	return r.coll.CountDocuments(ctx, titleFilter(pattern))
}

func (r *MongoPostRepository) SearchByTitle(ctx context.Context, pattern string, skip, limit int) ([]models.Post, error) {
	opts := options.Find().SetSkip(int64(skip)).SetLimit(int64(limit))
	return r.find(ctx, titleFilter(pattern), opts)
}

func (r *MongoPostRepository) TopRated(ctx context.Context, limit int) ([]models.RatedPost, error) {
	rows, err := r.aggregateRated(ctx, ratingPipeline(0, limit, topRatedField...))
	if err != nil {
		return nil, err
	}
	out := make([]models.RatedPost, 0, len(rows))
	for _, d := range rows {
		rp := models.RatedPost{ID: d.ID.Hex(), Title: d.Title, Cover: d.Cover}
		if d.Rating != nil {
			rp.Rating = *d.Rating
		}
		out = append(out, rp)
	}
	return out, nil
}

func (r *MongoPostRepository) Recent(ctx context.Context, limit int) ([]models.Post, error) {
	return r.List(ctx, "date", 0, limit)
}

func (r *MongoPostRepository) TopViewed(ctx context.Context, limit int) ([]models.Post, error) {
	return r.List(ctx, "views", 0, limit)
}

func (r *MongoPostRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	var doc postDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	p := doc.toPost()
	return &p, nil
}

func (r *MongoPostRepository) IncrementViews(ctx context.Context, id string) (*models.Post, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc postDocument
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$inc": bson.M{"views": 1}}, opts).Decode(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	p := doc.toPost()
	return &p, nil
}

func (r *MongoPostRepository) FindRelated(ctx context.Context, category, excludeID string, limit int) ([]models.Post, error) {
	oid, err := parseObjectID(excludeID)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, relatedFilter(category, oid), options.Find().SetLimit(int64(limit)))
}

func (r *MongoPostRepository) Create(ctx context.Context, post *models.Post) error {
	doc := postDocument{
		ID:          primitive.NewObjectID(),
		Title:       post.Title,
		Description: post.Description,
		Author:      post.Author,
		Category:    post.Category,
		Content:     post.Content,
		Cover:       post.Cover,
		Tags:        post.Tags,
		Date:        post.Date,
		Views:       post.Views,
		Rating:      post.Rating,
	}
	// $push on a null field fails, so the array must exist from the start
	if doc.Rating == nil {
		doc.Rating = []float64{}
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return err
	}
	post.ID = doc.ID.Hex()
	post.Tags, post.Rating = doc.Tags, doc.Rating
	return nil
}

func (r *MongoPostRepository) AddRating(ctx context.Context, id string, value float64) error {
	oid, err := parseObjectID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$push": bson.M{"rating": value}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *MongoPostRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

func (r *MongoPostRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoPostRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Post, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []postDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	posts := make([]models.Post, 0, len(docs))
	for _, d := range docs {
		posts = append(posts, d.toPost())
	}
	return posts, nil
}

func (r *MongoPostRepository) aggregateRated(ctx context.Context, pipeline mongo.Pipeline) ([]ratedDocument, error) {
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []ratedDocument
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("cast to ObjectId failed for value %q: %w", id, err)
	}
	return oid, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrPostNotFound
	}
	return err
}
