package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoAppName = "faqrecall"

// MongoOptions configures the MongoDB Atlas engine.
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
	// AllowInvalidCertificates skips TLS certificate validation. Opt-in only.
	AllowInvalidCertificates bool
}

// MongoDB queries an Atlas collection with the $vectorSearch aggregation stage.
// Vector indexes are created in Atlas, outside of this process.
type MongoDB struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoFaq struct {
	ID        any     `bson:"_id,omitempty"`
	Question  string  `bson:"question"`
	Answer    string  `bson:"answer"`
	Content   string  `bson:"content"`
	PageURL   string  `bson:"page_url"`
	PageTitle string  `bson:"page_title"`
	Score     float64 `bson:"score,omitempty"`
}

// NewMongoDBCollection connects to MongoDB and pings the primary.
func NewMongoDBCollection(ctx context.Context, o MongoOptions) (*MongoDB, error) {
	if o.URI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required for MongoDB engine")
	}

	opts := options.Client().ApplyURI(o.URI).SetAppName(mongoAppName)
	if o.AllowInvalidCertificates {
		xlog.Warn("TLS certificate validation disabled for MongoDB connection")
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoDB{
		client:     client,
		collection: client.Database(o.Database).Collection(o.Collection),
	}, nil
}

func (m *MongoDB) HasEmbedding(ctx context.Context, field string) (bool, error) {
	filter := bson.D{{Key: field, Value: bson.D{{Key: "$exists", Value: true}}}}
	opts := options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 1}})

	err := m.collection.FindOne(ctx, filter, opts).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", field, err)
	}
	return true, nil
}

func (m *MongoDB) VectorSearch(ctx context.Context, q types.VectorQuery) ([]types.Result, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: q.Index},
			{Key: "path", Value: q.Field},
			{Key: "queryVector", Value: q.Vector},
			{Key: "numCandidates", Value: q.NumCandidates},
			{Key: "limit", Value: q.Limit},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "question", Value: 1},
			{Key: "answer", Value: 1},
			{Key: "content", Value: 1},
			{Key: "page_url", Value: 1},
			{Key: "page_title", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search on %s failed: %w", q.Index, err)
	}
	defer cursor.Close(ctx)

	var docs []mongoFaq
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	results := make([]types.Result, 0, len(docs))
	for _, d := range docs {
		results = append(results, types.Result{
			ID:         mongoID(d.ID),
			Question:   d.Question,
			Answer:     d.Answer,
			Content:    d.Content,
			PageURL:    d.PageURL,
			PageTitle:  d.PageTitle,
			Similarity: float32(d.Score),
		})
	}
	return results, nil
}

func (m *MongoDB) Upsert(ctx context.Context, records ...types.FaqRecord) error {
	if len(records) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record without id: %s", r)
		}

		set := bson.D{
			{Key: "question", Value: r.Question},
			{Key: "answer", Value: r.Answer},
			{Key: "content", Value: r.Content},
			{Key: "page_url", Value: r.PageURL},
			{Key: "page_title", Value: r.PageTitle},
		}
		for _, provider := range types.Providers {
			if v, ok := r.Embedding(provider); ok {
				set = append(set, bson.E{Key: provider.EmbeddingField(), Value: v})
			}
		}

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "_id", Value: r.ID}}).
			SetUpdate(bson.D{{Key: "$set", Value: set}}).
			SetUpsert(true))
	}

	if _, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to upsert records: %w", err)
	}
	return nil
}

func (m *MongoDB) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}
	if _, err := m.collection.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func mongoID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
