package integration_test

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/mudler/faqrecall/rag"
	"github.com/mudler/faqrecall/rag/embedding"
	"github.com/mudler/faqrecall/rag/engine"
	"github.com/mudler/faqrecall/rag/evaluation/evaltest"
	"github.com/mudler/faqrecall/rag/faq"
	"github.com/mudler/faqrecall/rag/sources"
	"github.com/mudler/faqrecall/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type pages map[string][]sources.Page

func (p pages) Fetch(_ context.Context, source string) ([]sources.Page, error) {
	return p[source], nil
}

// The local hashing encoder stands in for both providers so the pipeline runs
// against a real pgvector database without remote embedding APIs.
var _ = Describe("Ingestion and retrieval on PostgreSQL", Label("postgres"), func() {
	var (
		ctx       context.Context
		store     *engine.PostgresDB
		embedder  *embedding.Provider
		retriever *rag.Retriever
	)

	BeforeEach(func() {
		url := os.Getenv("DATABASE_URL")
		if url == "" {
			Skip("DATABASE_URL not set")
		}
		ctx = context.Background()

		encoder := evaltest.NewHashingEncoder(evaltest.Dimensions)
		embedder = embedding.NewProvider(0).
			Register(types.ProviderOpenAI, encoder).
			Register(types.ProviderHuggingFace, encoder)

		var err error
		store, err = engine.NewPostgresDBCollection(ctx, url, "faqs_it_"+uuid.NewString()[:8], map[types.Provider]int{
			types.ProviderOpenAI:      evaltest.Dimensions,
			types.ProviderHuggingFace: evaltest.Dimensions,
		}, nil)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() {
			Expect(store.Reset(context.Background())).To(Succeed())
			Expect(store.Close(context.Background())).To(Succeed())
		})

		state, err := rag.NewIngestState("")
		Expect(err).ToNot(HaveOccurred())
		ingestor := rag.NewIngestor(store, embedder, types.Providers, faq.NewRegexExtractor(), pages{
			"help-center": {
				{URL: "https://help.example.com/orders", Title: "Where is my order?", Text: "Track your order from the Orders section of your account."},
				{URL: "https://help.example.com/refunds", Title: "How do refunds work?", Text: "Refunds are issued to the original payment method within five days."},
				{URL: "https://help.example.com/gift-cards", Title: "Do gift cards expire?", Text: "Gift cards never expire."},
			},
		}, state)

		stats, err := ingestor.IngestSource(ctx, "help-center")
		Expect(err).ToNot(HaveOccurred())
		Expect(stats.Records).To(Equal(3))

		retriever = rag.NewRetriever(embedder, store, rag.DefaultRetrieverOptions())
	})

	It("stores one vector per provider", func() {
		for _, p := range types.Providers {
			count, err := store.Count(ctx, p.EmbeddingField())
			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(3))
		}
	})

	It("retrieves the closest FAQ first", func() {
		for _, p := range types.Providers {
			results, err := retriever.Retrieve(ctx, "where is my order", p, 3)
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(3))
			Expect(results[0].PageURL).To(Equal("https://help.example.com/orders"))
		}
	})

	It("answers from the retrieved records", func() {
		chat := &echoChat{}
		generator := rag.NewGenerator(retriever, chat, rag.GeneratorOptions{Model: "gpt-4o-mini"})
		answer := generator.Generate(ctx, "How do refunds work?")
		Expect(answer.Outcome).To(Equal(types.OutcomeOK))
		Expect(answer.References[0]).To(Equal("https://help.example.com/refunds"))
	})
})
