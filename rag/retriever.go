package rag

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
)

// DefaultNumCandidates is the ANN candidate pool size used when none is configured.
const DefaultNumCandidates = 100

// RetrieverOptions configures a Retriever.
type RetrieverOptions struct {
	// Indexes maps each provider to the name of its similarity index in the store.
	Indexes map[types.Provider]string
	// NumCandidates is the ANN candidate pool size. It is raised to the limit when smaller.
	NumCandidates int
	// SearchTimeout bounds the embedding lookup and search together.
	SearchTimeout time.Duration
}

// DefaultRetrieverOptions returns the options used when none are given.
func DefaultRetrieverOptions() RetrieverOptions {
	return RetrieverOptions{
		Indexes:       map[types.Provider]string{},
		NumCandidates: DefaultNumCandidates,
		SearchTimeout: 30 * time.Second,
	}
}

// Retriever finds the FAQ records most similar to a query.
type Retriever struct {
	embedder EmbeddingProvider
	store    DocumentStore
	opts     RetrieverOptions
}

// NewRetriever creates a retriever over an open store.
func NewRetriever(embedder EmbeddingProvider, store DocumentStore, opts RetrieverOptions) *Retriever {
	if opts.NumCandidates <= 0 {
		opts.NumCandidates = DefaultNumCandidates
	}
	if opts.Indexes == nil {
		opts.Indexes = map[types.Provider]string{}
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		opts:     opts,
	}
}

// Retrieve returns at most limit records ordered by descending similarity. An empty
// result means the store has no record embedded by the provider. Embedding failures
// are returned unchanged; store failures and bad selectors are RetrievalErrors.
func (r *Retriever) Retrieve(ctx context.Context, query string, provider types.Provider, limit int) ([]types.Result, error) {
	if !provider.Valid() {
		return nil, types.RetrievalError("invalid backend selector "+string(provider), types.ErrUnsupportedProvider)
	}
	if limit <= 0 {
		return nil, types.RetrievalError("invalid limit", types.ErrInvalidLimit)
	}
	if strings.TrimSpace(query) == "" {
		return nil, types.RetrievalError("invalid query", types.ErrEmptyQuery)
	}

	vector, err := r.embedder.Embed(ctx, query, provider)
	if err != nil {
		return nil, err
	}

	if r.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.SearchTimeout)
		defer cancel()
	}

	field := provider.EmbeddingField()
	found, err := r.store.HasEmbedding(ctx, field)
	if err != nil {
		return nil, types.RetrievalError("embedding lookup failed", err)
	}
	if !found {
		xlog.Debug("No records carry the embedding field", "field", field)
		return []types.Result{}, nil
	}

	numCandidates := r.opts.NumCandidates
	if numCandidates < limit {
		numCandidates = limit
	}

	results, err := r.store.VectorSearch(ctx, types.VectorQuery{
		Field:         field,
		Index:         r.opts.Indexes[provider],
		Vector:        vector,
		NumCandidates: numCandidates,
		Limit:         limit,
	})
	if err != nil {
		return nil, types.RetrievalError("vector search failed", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}

	xlog.Debug("Retrieved records", "provider", provider, "count", len(results))
	return results, nil
}
