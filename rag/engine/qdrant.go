package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
	"github.com/qdrant/go-client/qdrant"
)

const payloadRecordID = "record_id"

// QdrantOptions configures the Qdrant engine.
type QdrantOptions struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions map[types.Provider]int
}

// QdrantDB keeps one named vector per provider on every point. Points that were
// never embedded by a provider simply lack that named vector.
type QdrantDB struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantDBCollection connects to Qdrant and creates the collection if missing.
func NewQdrantDBCollection(ctx context.Context, o QdrantOptions) (*QdrantDB, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   o.Host,
		Port:   o.Port,
		APIKey: o.APIKey,
		UseTLS: o.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	if _, err := client.HealthCheck(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant health check failed: %w", err)
	}

	q := &QdrantDB{
		client:     client,
		collection: o.Collection,
	}

	if err := q.setupCollection(ctx, o.Dimensions); err != nil {
		client.Close()
		return nil, err
	}

	return q, nil
}

func (q *QdrantDB) setupCollection(ctx context.Context, dimensions map[types.Provider]int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	vectors := map[string]*qdrant.VectorParams{}
	for _, provider := range types.Providers {
		dims := dimensions[provider]
		if dims <= 0 {
			return fmt.Errorf("missing embedding dimensions for provider %s", provider)
		}
		vectors[provider.EmbeddingField()] = &qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig:  qdrant.NewVectorsConfigMap(vectors),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
	}
	xlog.Info("Created qdrant collection", "collection", q.collection)

	return nil
}

func (q *QdrantDB) HasEmbedding(ctx context.Context, field string) (bool, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				{
					ConditionOneOf: &qdrant.Condition_HasVector{
						HasVector: &qdrant.HasVectorCondition{HasVector: field},
					},
				},
			},
		},
		Exact: qdrant.PtrOf(false),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", field, err)
	}
	return count > 0, nil
}

func (q *QdrantDB) VectorSearch(ctx context.Context, vq types.VectorQuery) ([]types.Result, error) {
	query := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vq.Vector),
		Using:          qdrant.PtrOf(vq.Field),
		Limit:          qdrant.PtrOf(uint64(vq.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if vq.NumCandidates > 0 {
		query.Params = &qdrant.SearchParams{HnswEf: qdrant.PtrOf(uint64(vq.NumCandidates))}
	}

	points, err := q.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dense search failed: %w", err)
	}

	results := make([]types.Result, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		results = append(results, types.Result{
			ID:         stringValue(payload, payloadRecordID),
			Question:   stringValue(payload, metaQuestion),
			Answer:     stringValue(payload, metaAnswer),
			Content:    stringValue(payload, "content"),
			PageURL:    stringValue(payload, metaPageURL),
			PageTitle:  stringValue(payload, metaPageTitle),
			Similarity: p.GetScore(),
		})
	}
	return results, nil
}

func (q *QdrantDB) Upsert(ctx context.Context, records ...types.FaqRecord) error {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record without id: %s", r)
		}

		vectors := map[string]*qdrant.Vector{}
		for _, provider := range types.Providers {
			if v, ok := r.Embedding(provider); ok {
				vectors[provider.EmbeddingField()] = &qdrant.Vector{Data: v}
			}
		}
		if len(vectors) == 0 {
			xlog.Warn("Skipping record without embeddings", "id", r.ID)
			continue
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(r.ID)),
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vectors{
					Vectors: &qdrant.NamedVectors{Vectors: vectors},
				},
			},
			Payload: qdrant.NewValueMap(map[string]any{
				payloadRecordID: r.ID,
				metaQuestion:    r.Question,
				metaAnswer:      r.Answer,
				"content":       r.Content,
				metaPageURL:     r.PageURL,
				metaPageTitle:   r.PageTitle,
			}),
		})
	}
	if len(points) == 0 {
		return nil
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (q *QdrantDB) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	points := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		points = append(points, qdrant.NewIDUUID(pointID(id)))
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(points...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

func (q *QdrantDB) Close(ctx context.Context) error {
	return q.client.Close()
}

// pointID maps a record id onto the UUID space qdrant accepts.
func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func stringValue(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}
