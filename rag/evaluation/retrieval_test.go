package evaluation_test

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/mudler/faqrecall/rag/evaluation"
	"github.com/mudler/faqrecall/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeRetriever returns canned results keyed by provider and question.
type fakeRetriever struct {
	mu      sync.Mutex
	results map[types.Provider]map[string][]types.Result
	limits  []int
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, provider types.Provider, limit int) ([]types.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)

	byQuestion, ok := f.results[provider]
	if !ok {
		return nil, types.RetrievalError("embedding backend not configured", errors.New(string(provider)))
	}
	return byQuestion[query], nil
}

func page(url, answer string) types.Result {
	return types.Result{PageURL: url, Answer: answer}
}

var _ = DescribeTable("AveragePrecision",
	func(relevant []bool, expected float64) {
		Expect(AveragePrecision(relevant)).To(BeNumerically("~", expected, 1e-9))
	},
	Entry("nothing retrieved", []bool{}, 0.0),
	Entry("nothing relevant", []bool{false, false}, 0.0),
	Entry("relevant first", []bool{true, false, false}, 1.0),
	Entry("relevant second", []bool{false, true}, 0.5),
	Entry("two relevant", []bool{true, false, true}, (1.0+2.0/3.0)/2),
)

var _ = Describe("RetrievalEvaluation", func() {
	var (
		ctx       context.Context
		retriever *fakeRetriever
	)

	BeforeEach(func() {
		ctx = context.Background()
		retriever = &fakeRetriever{results: map[types.Provider]map[string][]types.Result{
			types.ProviderOpenAI: {
				"Where is my order?": {
					page("https://example.com/orders/faq", "Track it from your account."),
					page("https://example.com/refunds", "Refunds take five days."),
				},
				"How do refunds work?": {
					page("https://example.com/orders/faq", "Track it from your account."),
					page("https://example.com/refunds", "Refunds take five days."),
				},
			},
			types.ProviderHuggingFace: {
				"Where is my order?": {
					page("https://example.com/gift-cards", "Gift cards never expire."),
				},
			},
		}}
	})

	It("scores every backend against the reference page", func() {
		rows := []Row{
			{Index: 0, Question: "Where is my order?", GroundTruth: "unused", ReferenceURL: "https://example.com/orders/faq"},
			{Index: 1, Question: "How do refunds work?", GroundTruth: "unused", ReferenceURL: "https://example.com/refunds"},
		}

		summaries := NewRetrievalEvaluation(retriever, nil, RetrievalOptions{}).Run(ctx, rows)
		Expect(summaries).To(HaveLen(len(types.Providers)))

		Expect(summaries[0].EmbeddingType).To(Equal(types.ProviderOpenAI))
		Expect(summaries[0].Total).To(Equal(2))
		Expect(summaries[0].Errors).To(BeZero())
		Expect(summaries[0].ContextPrecision).To(BeNumerically("~", 0.75, 1e-9))
		Expect(summaries[0].ContextRecall).To(Equal(1.0))

		Expect(summaries[1].EmbeddingType).To(Equal(types.ProviderHuggingFace))
		Expect(summaries[1].ContextPrecision).To(BeZero())
		Expect(summaries[1].ContextRecall).To(BeZero())

		Expect(retriever.limits).To(HaveEach(DefaultRetrievalLimit))
	})

	It("falls back to ground-truth similarity without a reference page", func() {
		rows := []Row{{Index: 0, Question: "How do refunds work?", GroundTruth: "Refunds take five days."}}

		summaries := NewRetrievalEvaluation(retriever, lexicalSimilarity(), RetrievalOptions{
			Providers: []types.Provider{types.ProviderOpenAI},
			Limit:     2,
		}).Run(ctx, rows)

		Expect(summaries).To(HaveLen(1))
		Expect(summaries[0].ContextPrecision).To(BeNumerically("~", 0.5, 1e-9))
		Expect(summaries[0].ContextRecall).To(Equal(1.0))
		Expect(retriever.limits).To(ConsistOf(2))
	})

	It("counts failed retrievals as errors and averages the rest", func() {
		delete(retriever.results, types.ProviderHuggingFace)
		rows := []Row{{Index: 0, Question: "Where is my order?", ReferenceURL: "https://example.com/orders/faq"}}

		summaries := NewRetrievalEvaluation(retriever, nil, RetrievalOptions{}).Run(ctx, rows)
		Expect(summaries[0].Errors).To(BeZero())
		Expect(summaries[0].ContextPrecision).To(Equal(1.0))
		Expect(summaries[1].Total).To(Equal(1))
		Expect(summaries[1].Errors).To(Equal(1))
		Expect(summaries[1].ContextPrecision).To(BeZero())
	})

	It("records rows as errors once cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		summaries := NewRetrievalEvaluation(retriever, nil, RetrievalOptions{
			Providers: []types.Provider{types.ProviderOpenAI},
		}).Run(cancelled, []Row{{Question: "Where is my order?"}})
		Expect(summaries[0].Errors).To(Equal(1))
		Expect(retriever.limits).To(BeEmpty())
	})

	It("writes one summary row per backend", func() {
		path := RetrievalReportPath(GinkgoT().TempDir(), time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC))
		Expect(filepath.Base(path)).To(Equal("retrieval_results_20240501_103000.csv"))

		Expect(WriteRetrievalReport(path, []RetrievalSummary{
			{EmbeddingType: types.ProviderOpenAI, Total: 2, ContextPrecision: 0.75, ContextRecall: 1, TimeTaken: 1500 * time.Millisecond},
			{EmbeddingType: types.ProviderHuggingFace, Total: 2, Errors: 1},
		})).To(Succeed())

		f, err := os.Open(path)
		Expect(err).ToNot(HaveOccurred())
		defer f.Close()
		lines, err := csv.NewReader(f).ReadAll()
		Expect(err).ToNot(HaveOccurred())
		Expect(lines).To(Equal([][]string{
			RetrievalReportHeader,
			{"openai", "2", "0", "0.7500", "1.0000", "1.50"},
			{"hf", "2", "1", "0.0000", "0.0000", "0.00"},
		}))
	})
})
