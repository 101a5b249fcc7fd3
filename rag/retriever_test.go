package rag_test

import (
	"context"
	"errors"

	. "github.com/mudler/faqrecall/rag"
	"github.com/mudler/faqrecall/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Retriever", func() {
	var (
		ctx      context.Context
		embedder *fakeEmbedder
		store    *fakeStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = &fakeEmbedder{}
		store = &fakeStore{
			found: true,
			results: []types.Result{
				{ID: "b", PageURL: "https://help.example.com/b", Similarity: 0.5},
				{ID: "a", PageURL: "https://help.example.com/a", Similarity: 0.9},
				{ID: "c", PageURL: "https://help.example.com/c", Similarity: 0.7},
				{ID: "d", PageURL: "https://help.example.com/d", Similarity: 0.1},
			},
		}
	})

	It("returns at most limit records by descending similarity", func() {
		retriever := NewRetriever(embedder, store, DefaultRetrieverOptions())
		results, err := retriever.Retrieve(ctx, "Where is my order?", types.ProviderOpenAI, 3)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(3))
		Expect([]string{results[0].ID, results[1].ID, results[2].ID}).To(Equal([]string{"a", "c", "b"}))
	})

	It("searches the provider's field with at least limit candidates", func() {
		opts := DefaultRetrieverOptions()
		opts.NumCandidates = 2
		opts.Indexes = map[types.Provider]string{types.ProviderHuggingFace: "vector_index_hf"}
		retriever := NewRetriever(embedder, store, opts)

		_, err := retriever.Retrieve(ctx, "Where is my order?", types.ProviderHuggingFace, 5)
		Expect(err).ToNot(HaveOccurred())
		Expect(store.queries).To(HaveLen(1))
		q := store.queries[0]
		Expect(q.Field).To(Equal("content_embedding_hf"))
		Expect(q.Index).To(Equal("vector_index_hf"))
		Expect(q.Limit).To(Equal(5))
		Expect(q.NumCandidates).To(Equal(5))
		Expect(embedder.calls).To(Equal([]types.Provider{types.ProviderHuggingFace}))
	})

	It("uses 100 candidates by default", func() {
		retriever := NewRetriever(embedder, store, RetrieverOptions{})
		_, err := retriever.Retrieve(ctx, "Where is my order?", types.ProviderOpenAI, 3)
		Expect(err).ToNot(HaveOccurred())
		Expect(store.queries[0].NumCandidates).To(Equal(100))
	})

	It("returns an empty result without searching when no record has the field", func() {
		store.found = false
		retriever := NewRetriever(embedder, store, DefaultRetrieverOptions())
		results, err := retriever.Retrieve(ctx, "Where is my order?", types.ProviderOpenAI, 3)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(BeEmpty())
		Expect(store.queries).To(BeEmpty())
	})

	It("propagates embedding errors unchanged", func() {
		embeddingErr := types.EmbeddingRequestError(types.ProviderOpenAI, "unauthorized", errors.New("401"))
		embedder.err = embeddingErr
		retriever := NewRetriever(embedder, store, DefaultRetrieverOptions())

		_, err := retriever.Retrieve(ctx, "Where is my order?", types.ProviderOpenAI, 3)
		Expect(err).To(BeIdenticalTo(error(embeddingErr)))
		Expect(types.IsRetrievalError(err)).To(BeFalse())
	})

	It("wraps store failures into retrieval errors", func() {
		store.searchErr = errors.New("connection reset")
		retriever := NewRetriever(embedder, store, DefaultRetrieverOptions())

		_, err := retriever.Retrieve(ctx, "Where is my order?", types.ProviderOpenAI, 3)
		Expect(types.IsRetrievalError(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("connection reset"))
	})

	It("wraps embedding lookup failures into retrieval errors", func() {
		store.hasErr = errors.New("timeout")
		retriever := NewRetriever(embedder, store, DefaultRetrieverOptions())

		_, err := retriever.Retrieve(ctx, "Where is my order?", types.ProviderOpenAI, 3)
		Expect(types.IsRetrievalError(err)).To(BeTrue())
	})

	DescribeTable("rejects unusable requests before embedding",
		func(query string, provider types.Provider, limit int, sentinel error) {
			retriever := NewRetriever(embedder, store, DefaultRetrieverOptions())
			_, err := retriever.Retrieve(ctx, query, provider, limit)
			Expect(types.IsRetrievalError(err)).To(BeTrue())
			Expect(errors.Is(err, sentinel)).To(BeTrue())
			Expect(embedder.calls).To(BeEmpty())
		},
		Entry("unknown provider", "q", types.Provider("cohere"), 3, types.ErrUnsupportedProvider),
		Entry("zero limit", "q", types.ProviderOpenAI, 0, types.ErrInvalidLimit),
		Entry("blank query", "   ", types.ProviderOpenAI, 3, types.ErrEmptyQuery),
	)
})
