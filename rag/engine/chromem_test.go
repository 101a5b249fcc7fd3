package engine_test

import (
	"context"

	. "github.com/mudler/faqrecall/rag/engine"
	"github.com/mudler/faqrecall/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/philippgille/chromem-go"
)

var _ = Describe("ChromemDB", func() {
	var (
		ctx   context.Context
		store *ChromemDB
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = NewChromemDB(chromem.NewDB(), "faqs", nil)
	})

	It("reports no embeddings on an empty store", func() {
		found, err := store.HasEmbedding(ctx, types.ProviderOpenAI.EmbeddingField())
		Expect(err).ToNot(HaveOccurred())
		Expect(found).To(BeFalse())

		results, err := store.VectorSearch(ctx, types.VectorQuery{
			Field:  types.ProviderOpenAI.EmbeddingField(),
			Vector: []float32{1, 0, 0},
			Limit:  3,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("stores each provider's vectors in its own field", func() {
		Expect(store.Upsert(ctx, fixtures()...)).To(Succeed())

		Expect(store.Count(types.ProviderOpenAI.EmbeddingField())).To(Equal(3))
		Expect(store.Count(types.ProviderHuggingFace.EmbeddingField())).To(Equal(2))

		found, err := store.HasEmbedding(ctx, types.ProviderHuggingFace.EmbeddingField())
		Expect(err).ToNot(HaveOccurred())
		Expect(found).To(BeTrue())
	})

	It("returns the nearest records first", func() {
		Expect(store.Upsert(ctx, fixtures()...)).To(Succeed())

		results, err := store.VectorSearch(ctx, types.VectorQuery{
			Field:         types.ProviderOpenAI.EmbeddingField(),
			Vector:        []float32{0.1, 0.9, 0.2},
			NumCandidates: 100,
			Limit:         2,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].Question).To(Equal("How do I cancel?"))
		Expect(results[0].PageURL).To(Equal("https://help.example.com/cancel"))
		Expect(results[0].Content).To(Equal("Question: How do I cancel?\nAnswer: Answer to How do I cancel?"))
		Expect(results[0].Similarity).To(BeNumerically(">=", results[1].Similarity))
	})

	It("caps the result size to the stored records", func() {
		Expect(store.Upsert(ctx, fixtures()...)).To(Succeed())

		results, err := store.VectorSearch(ctx, types.VectorQuery{
			Field:  types.ProviderHuggingFace.EmbeddingField(),
			Vector: []float32{1, 0},
			Limit:  10,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].ID).To(Equal("11111111-1111-1111-1111-111111111111"))
	})

	It("replaces records with the same id", func() {
		Expect(store.Upsert(ctx, fixtures()...)).To(Succeed())

		updated := record("11111111-1111-1111-1111-111111111111", "Where is my parcel?", "https://help.example.com/orders", []float32{1, 0, 0}, nil)
		Expect(store.Upsert(ctx, updated)).To(Succeed())
		Expect(store.Count(types.ProviderOpenAI.EmbeddingField())).To(Equal(3))

		results, err := store.VectorSearch(ctx, types.VectorQuery{
			Field:  types.ProviderOpenAI.EmbeddingField(),
			Vector: []float32{1, 0, 0},
			Limit:  1,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(results[0].Question).To(Equal("Where is my parcel?"))
	})

	It("rejects records without an id", func() {
		r := record("", "q", "u", []float32{1, 0, 0}, nil)
		Expect(store.Upsert(ctx, r)).ToNot(Succeed())
	})

	It("resets every field", func() {
		Expect(store.Upsert(ctx, fixtures()...)).To(Succeed())
		Expect(store.Reset()).To(Succeed())
		Expect(store.Count(types.ProviderOpenAI.EmbeddingField())).To(BeZero())
	})

	It("persists to disk", func() {
		dir := GinkgoT().TempDir()
		persistent, err := NewChromemDBCollection("faqs", dir, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(persistent.Upsert(ctx, fixtures()...)).To(Succeed())

		reopened, err := NewChromemDBCollection("faqs", dir, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(reopened.Count(types.ProviderOpenAI.EmbeddingField())).To(Equal(3))
	})
})
