package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/mudler/faqrecall/rag"
	"github.com/mudler/faqrecall/rag/evaluation"
	"github.com/mudler/faqrecall/rag/evaluation/evaltest"
	"github.com/mudler/faqrecall/rag/faq"
	"github.com/mudler/faqrecall/rag/sources"
	"github.com/mudler/faqrecall/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubGenerator struct {
	answer types.Answer
	calls  int
}

func (s *stubGenerator) Generate(context.Context, string) types.Answer {
	s.calls++
	return s.answer
}

type stubRetriever struct {
	results  []types.Result
	err      error
	provider types.Provider
	limit    int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, p types.Provider, limit int) ([]types.Result, error) {
	s.provider = p
	s.limit = limit
	return s.results, s.err
}

type memoryStore struct {
	mu      sync.Mutex
	records []types.FaqRecord
}

func (m *memoryStore) HasEmbedding(context.Context, string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records) > 0, nil
}
func (m *memoryStore) VectorSearch(context.Context, types.VectorQuery) ([]types.Result, error) {
	return nil, nil
}
func (m *memoryStore) Upsert(_ context.Context, records ...types.FaqRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}
func (m *memoryStore) Delete(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = slices.DeleteFunc(m.records, func(r types.FaqRecord) bool {
		return slices.Contains(ids, r.ID)
	})
	return nil
}
func (m *memoryStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
func (m *memoryStore) Close(context.Context) error { return nil }

type constantEmbedder struct{}

func (constantEmbedder) Embed(context.Context, string, types.Provider) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type noFetch struct{}

func (noFetch) Fetch(_ context.Context, source string) ([]sources.Page, error) {
	return []sources.Page{{URL: source, Title: "Orders", Text: "Track it."}}, nil
}

var _ = Describe("API", func() {
	var (
		generator *stubGenerator
		retriever *stubRetriever
		a         *api
		e         *echo.Echo
	)

	do := func(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
		var payload []byte
		if body != nil {
			var err error
			payload, err = json.Marshal(body)
			Expect(err).ToNot(HaveOccurred())
		}
		req := httptest.NewRequest(method, path, bytes.NewReader(payload))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		var out map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		return rec, out
	}

	BeforeEach(func() {
		generator = &stubGenerator{}
		retriever = &stubRetriever{}
		a = &api{
			generator:       generator,
			retriever:       retriever,
			defaultProvider: types.ProviderOpenAI,
			defaultLimit:    rag.DefaultRetrievalLimit,
			uploadDir:       GinkgoT().TempDir(),
		}
		e = newRouter(a)
	})

	It("reports health", func() {
		rec, body := do(http.MethodGet, "/", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("status", "healthy"))
		Expect(body).To(HaveKeyWithValue("service", "faqrecall"))
		Expect(body["endpoints"]).To(HaveKey("/generate"))
	})

	Describe("POST /generate", func() {
		It("answers questions", func() {
			generator.answer = types.NewAnswer("Track it.", []string{"https://help.example.com/a", "https://help.example.com/b"}, []string{"c1", "c2"})
			rec, body := do(http.MethodPost, "/generate", map[string]string{"question": "Where is my order?"})

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("answer", "Track it."))
			Expect(body).To(HaveKeyWithValue("success", true))
			Expect(body["references"]).To(Equal([]any{"https://help.example.com/a", "https://help.example.com/b"}))
			Expect(body).ToNot(HaveKey("evaluation"))
		})

		It("rejects blank questions without generating", func() {
			rec, body := do(http.MethodPost, "/generate", map[string]string{"question": "   "})

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("answer", "Please provide a valid question."))
			Expect(body).To(HaveKeyWithValue("success", false))
			Expect(body).To(HaveKeyWithValue("error", "Question cannot be empty"))
			Expect(generator.calls).To(BeZero())
		})

		It("reports missing context as unsuccessful", func() {
			generator.answer = types.NoContext()
			rec, body := do(http.MethodPost, "/generate", map[string]string{"question": "What is the meaning of life?"})

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("answer", types.NoContextAnswer))
			Expect(body).To(HaveKeyWithValue("success", false))
			Expect(body).To(HaveKeyWithValue("error", "No relevant information found"))
			Expect(body["references"]).To(BeEmpty())
		})

		It("returns 500 on generation failures", func() {
			generator.answer = types.Failed(errors.New("store unreachable"))
			rec, body := do(http.MethodPost, "/generate", map[string]string{"question": "q"})

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(body).To(HaveKeyWithValue("error", "Error generating answer: store unreachable"))
		})

		It("evaluates answers inline when enabled", func() {
			a.inlineEvaluate = true
			a.evaluator = evaluation.NewEvaluator(evaluation.NewSimilarity(evaltest.NewHashingEncoder(0)), nil)
			generator.answer = types.NewAnswer("Track it.", []string{"u"}, []string{"Track it."})

			rec, body := do(http.MethodPost, "/generate", map[string]string{"question": "q"})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body["evaluation"]).To(HaveKey("semantic_similarity"))
		})
	})

	Describe("POST /retrieve", func() {
		It("uses the default provider and limit", func() {
			retriever.results = []types.Result{{ID: "1", PageURL: "u", Similarity: 0.9}}
			rec, _ := do(http.MethodPost, "/retrieve", map[string]any{"query": "refunds"})

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(retriever.provider).To(Equal(types.ProviderOpenAI))
			Expect(retriever.limit).To(Equal(3))
			Expect(rec.Body.String()).To(ContainSubstring(`"page_url":"u"`))
		})

		It("accepts a provider and limit", func() {
			rec, _ := do(http.MethodPost, "/retrieve", map[string]any{"query": "refunds", "provider": "huggingface", "limit": 5})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(retriever.provider).To(Equal(types.ProviderHuggingFace))
			Expect(retriever.limit).To(Equal(5))
		})

		DescribeTable("maps failures to status codes",
			func(body map[string]any, err error, status int) {
				retriever.err = err
				rec, _ := do(http.MethodPost, "/retrieve", body)
				Expect(rec.Code).To(Equal(status))
			},
			Entry("missing query", map[string]any{}, nil, http.StatusBadRequest),
			Entry("limit too large", map[string]any{"query": "q", "limit": 1000}, nil, http.StatusBadRequest),
			Entry("unknown provider", map[string]any{"query": "q", "provider": "cohere"}, nil, http.StatusBadRequest),
			Entry("embedding failure", map[string]any{"query": "q"}, types.EmbeddingRequestError(types.ProviderOpenAI, "unauthorized", nil), http.StatusBadGateway),
			Entry("store failure", map[string]any{"query": "q"}, types.RetrievalError("vector search failed", errors.New("timeout")), http.StatusInternalServerError),
		)
	})

	Describe("POST /evaluate", func() {
		It("is unavailable without an evaluator", func() {
			rec, _ := do(http.MethodPost, "/evaluate", map[string]any{"question": "q", "response": "r"})
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("scores answers", func() {
			a.evaluator = evaluation.NewEvaluator(evaluation.NewSimilarity(evaltest.NewHashingEncoder(0)), nil)
			rec, body := do(http.MethodPost, "/evaluate", map[string]any{
				"question": "q", "response": "track order", "context": []string{"track order"},
			})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body["semantic_similarity"]).To(BeNumerically("~", 1, 1e-6))
		})

		It("validates the request", func() {
			a.evaluator = evaluation.NewEvaluator(evaluation.NewSimilarity(evaltest.NewHashingEncoder(0)), nil)
			rec, _ := do(http.MethodPost, "/evaluate", map[string]any{"question": "q"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("ingestion", func() {
		var store *memoryStore

		BeforeEach(func() {
			store = &memoryStore{}
			state, err := rag.NewIngestState("")
			Expect(err).ToNot(HaveOccurred())
			a.ingestor = rag.NewIngestor(store, constantEmbedder{}, []types.Provider{types.ProviderOpenAI}, faq.NewRegexExtractor(), noFetch{}, state)
			a.sourceManager = rag.NewSourceManager(a.ingestor, state)
		})

		It("ingests a source", func() {
			rec, body := do(http.MethodPost, "/ingest", map[string]string{"source": "https://help.example.com/orders"})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("records", 1.0))
			Expect(store.len()).To(Equal(1))
		})

		It("ingests uploaded documents", func() {
			var buf bytes.Buffer
			w := multipart.NewWriter(&buf)
			part, err := w.CreateFormFile("file", "orders.md")
			Expect(err).ToNot(HaveOccurred())
			_, err = part.Write([]byte("# Where is my order?\n\nTrack it from your account.\n"))
			Expect(err).ToNot(HaveOccurred())
			Expect(w.Close()).To(Succeed())

			req := httptest.NewRequest(http.MethodPost, "/ingest/upload", &buf)
			req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(store.len()).To(Equal(1))
			Expect(store.records[0].Question).To(Equal("Where is my order?"))
		})

		It("manages sources", func() {
			rec, _ := do(http.MethodPost, "/sources", map[string]any{"url": "https://help.example.com/sitemap.xml", "update_interval": 60})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec, _ = do(http.MethodGet, "/sources", nil)
			Expect(rec.Body.String()).To(ContainSubstring("https://help.example.com/sitemap.xml"))

			Eventually(func() bool {
				return !a.sourceManager.Sources()[0].LastUpdate.IsZero()
			}).Should(BeTrue())
			Expect(store.len()).To(Equal(1))

			rec, _ = do(http.MethodDelete, "/sources", map[string]any{"url": "https://help.example.com/sitemap.xml"})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(store.len()).To(BeZero())

			rec, _ = do(http.MethodDelete, "/sources", map[string]any{"url": "https://help.example.com/sitemap.xml"})
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(strings.TrimSpace(rec.Body.String())).To(ContainSubstring("not found"))
		})
	})
})
