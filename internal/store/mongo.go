package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dshills/auditlens/internal/review"
)

const findingsCollection = "findings"

// Mongo keeps findings in a MongoDB collection, one document per finding
// keyed by its ID.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongo uses the findings collection of db.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		client:     db.Client(),
		collection: db.Collection(findingsCollection),
	}
}

// ConnectMongo connects to uri and checks the connection.
func ConnectMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	if database == "" {
		database = "auditlens"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	return NewMongo(client.Database(database)), nil
}

func (m *Mongo) Load(ctx context.Context, id string) (review.Finding, error) {
	var f review.Finding
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&f)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return review.Finding{}, fmt.Errorf("%s: %w", id, review.ErrNotFound)
	}
	if err != nil {
		return review.Finding{}, fmt.Errorf("loading finding %s: %w", id, err)
	}
	return f, nil
}

func (m *Mongo) Save(ctx context.Context, f review.Finding) error {
	if f.ID == "" {
		return errors.New("finding has no id")
	}
	if f.ReviewStatus == "" {
		f.ReviewStatus = review.StatusPending
	}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": f.ID}, f, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("saving finding %s: %w", f.ID, err)
	}
	return nil
}

func (m *Mongo) ListIDs(ctx context.Context, status review.Status, limit int) ([]string, error) {
	filter := bson.M{}
	if status != "" {
		filter["reviewStatus"] = string(status)
	}
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("listing findings: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
