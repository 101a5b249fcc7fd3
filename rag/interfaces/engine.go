package interfaces

import (
	"context"

	"github.com/mudler/faqrecall/rag/types"
)

// DocumentStore is the persistent collection of FAQ records queried by the retriever.
// Implementations are safe for concurrent use.
type DocumentStore interface {
	// HasEmbedding reports whether at least one record carries the given embedding field.
	HasEmbedding(ctx context.Context, field string) (bool, error)
	// VectorSearch returns up to q.Limit records ordered by descending similarity.
	VectorSearch(ctx context.Context, q types.VectorQuery) ([]types.Result, error)
	// Upsert inserts or replaces records. Only ingestion writes to the store.
	Upsert(ctx context.Context, records ...types.FaqRecord) error
	// Delete removes records by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error
	Close(ctx context.Context) error
}
