package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/mudler/faqrecall/rag/interfaces"
	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
	"github.com/philippgille/chromem-go"
)

const (
	metaQuestion  = "question"
	metaAnswer    = "answer"
	metaPageURL   = "page_url"
	metaPageTitle = "page_title"
)

// ChromemDB is an embedded document store. chromem keeps a single embedding per
// document, so every embedding field lives in its own collection named
// "<collection>-<field>". Search is exact cosine similarity.
type ChromemDB struct {
	sync.Mutex
	db             *chromem.DB
	collectionName string
	embedder       interfaces.EmbeddingProvider
}

// NewChromemDBCollection opens (or creates) a persistent chromem database at path.
// embedder is only used for documents upserted without a precomputed vector and may be nil.
func NewChromemDBCollection(collection, path string, embedder interfaces.EmbeddingProvider) (*ChromemDB, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem database at %s: %w", path, err)
	}

	return NewChromemDB(db, collection, embedder), nil
}

// NewChromemDB wraps an existing chromem database, e.g. chromem.NewDB() for an in-memory store.
func NewChromemDB(db *chromem.DB, collection string, embedder interfaces.EmbeddingProvider) *ChromemDB {
	return &ChromemDB{
		db:             db,
		collectionName: collection,
		embedder:       embedder,
	}
}

func (c *ChromemDB) name(field string) string {
	return c.collectionName + "-" + field
}

func (c *ChromemDB) collection(field string) *chromem.Collection {
	return c.db.GetCollection(c.name(field), c.embedding(field))
}

func (c *ChromemDB) HasEmbedding(ctx context.Context, field string) (bool, error) {
	col := c.collection(field)
	return col != nil && col.Count() > 0, nil
}

func (c *ChromemDB) VectorSearch(ctx context.Context, q types.VectorQuery) ([]types.Result, error) {
	col := c.collection(q.Field)
	if col == nil {
		return []types.Result{}, nil
	}

	// chromem rejects nResults greater than the collection size
	n := q.Limit
	if count := col.Count(); n > count {
		n = count
	}
	if n == 0 {
		return []types.Result{}, nil
	}

	res, err := col.QueryEmbedding(ctx, q.Vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("error querying collection %s: %w", col.Name, err)
	}

	results := make([]types.Result, 0, len(res))
	for _, r := range res {
		results = append(results, types.Result{
			ID:         r.ID,
			Question:   r.Metadata[metaQuestion],
			Answer:     r.Metadata[metaAnswer],
			Content:    r.Content,
			PageURL:    r.Metadata[metaPageURL],
			PageTitle:  r.Metadata[metaPageTitle],
			Similarity: r.Similarity,
		})
	}

	return results, nil
}

func (c *ChromemDB) Upsert(ctx context.Context, records ...types.FaqRecord) error {
	c.Lock()
	defer c.Unlock()

	documents := map[string][]chromem.Document{}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record without id: %s", r)
		}
		for provider, vector := range r.Embeddings {
			field := provider.EmbeddingField()
			documents[field] = append(documents[field], chromem.Document{
				ID:        r.ID,
				Content:   r.Content,
				Embedding: vector,
				Metadata: map[string]string{
					metaQuestion:  r.Question,
					metaAnswer:    r.Answer,
					metaPageURL:   r.PageURL,
					metaPageTitle: r.PageTitle,
				},
			})
		}
	}

	for field, docs := range documents {
		col, err := c.db.GetOrCreateCollection(c.name(field), nil, c.embedding(field))
		if err != nil {
			return fmt.Errorf("error creating collection: %w", err)
		}
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("error adding documents to %s: %w", col.Name, err)
		}
		xlog.Debug("Stored documents", "collection", col.Name, "count", len(docs))
	}

	return nil
}

// Delete removes the records from every embedding collection.
func (c *ChromemDB) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	c.Lock()
	defer c.Unlock()

	for _, p := range types.Providers {
		col := c.collection(p.EmbeddingField())
		if col == nil {
			continue
		}
		if err := col.Delete(ctx, nil, nil, ids...); err != nil {
			return fmt.Errorf("error deleting documents from %s: %w", col.Name, err)
		}
	}
	return nil
}

// Count returns the number of records carrying the given embedding field.
func (c *ChromemDB) Count(field string) int {
	col := c.collection(field)
	if col == nil {
		return 0
	}
	return col.Count()
}

// Reset deletes every collection of this store.
func (c *ChromemDB) Reset() error {
	c.Lock()
	defer c.Unlock()

	for _, p := range types.Providers {
		if err := c.db.DeleteCollection(c.name(p.EmbeddingField())); err != nil {
			return fmt.Errorf("error deleting collection: %w", err)
		}
	}
	return nil
}

func (c *ChromemDB) Close(ctx context.Context) error {
	return nil
}

func (c *ChromemDB) embedding(field string) chromem.EmbeddingFunc {
	return chromem.EmbeddingFunc(
		func(ctx context.Context, text string) ([]float32, error) {
			if c.embedder == nil {
				return nil, fmt.Errorf("no embedder configured for %s, documents must carry their vector", field)
			}
			for _, p := range types.Providers {
				if p.EmbeddingField() == field {
					return c.embedder.Embed(ctx, text, p)
				}
			}
			return nil, fmt.Errorf("%w: field %s", types.ErrUnsupportedProvider, field)
		},
	)
}
