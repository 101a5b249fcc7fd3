package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mudler/faqrecall/pkg/config"
	"github.com/mudler/faqrecall/rag"
	"github.com/mudler/faqrecall/rag/embedding"
	"github.com/mudler/faqrecall/rag/evaluation"
	"github.com/mudler/faqrecall/rag/faq"
	"github.com/mudler/faqrecall/rag/interfaces"
	"github.com/mudler/faqrecall/rag/sources"
	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
	"github.com/redis/go-redis/v9"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// pipeline holds the long-lived components shared by every command.
type pipeline struct {
	cfg       *config.Config
	chat      *openai.Client
	embedder  *embedding.Provider
	store     rag.DocumentStore
	cache     *redis.Client
	retriever *rag.Retriever
	generator *rag.Generator
	evaluator *evaluation.Evaluator
}

func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	p := &pipeline{cfg: cfg}

	clientConfig := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAI.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	p.chat = openai.NewClientWithConfig(clientConfig)

	if cfg.Cache.RedisURL != "" {
		client, err := embedding.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			xlog.Warn("Embedding cache disabled", "error", err)
		} else {
			p.cache = client
		}
	}

	p.embedder = embedding.NewProvider(cfg.RequestTimeout)
	if cfg.OpenAI.APIKey == "" {
		xlog.Warn("OPENAI_API_KEY is not set, the openai embedding backend is disabled")
	} else {
		p.register(types.ProviderOpenAI, embedding.NewOpenAIEmbedderWithClient(p.chat, cfg.OpenAI.EmbeddingModel), cfg.OpenAI.EmbeddingModel)
	}
	hf, err := embedding.NewHuggingFaceEmbedder(cfg.HuggingFace.APIKey, cfg.HuggingFace.URL)
	if err != nil {
		xlog.Warn("The hf embedding backend is disabled", "error", err)
	} else {
		p.register(types.ProviderHuggingFace, hf, cfg.HuggingFace.URL)
	}

	storeCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	store, err := rag.OpenStore(storeCtx, cfg.Store, p.embedder)
	if err != nil {
		p.Close(ctx)
		return nil, err
	}
	p.store = store

	retrieverOpts := rag.DefaultRetrieverOptions()
	retrieverOpts.Indexes = cfg.Store.Indexes()
	retrieverOpts.NumCandidates = cfg.Store.NumCandidates
	retrieverOpts.SearchTimeout = cfg.RequestTimeout
	p.retriever = rag.NewRetriever(p.embedder, p.store, retrieverOpts)

	p.generator = rag.NewGenerator(p.retriever, p.chat, rag.GeneratorOptions{
		Model:        cfg.OpenAI.Model,
		Provider:     cfg.GenerationProvider(),
		Limit:        cfg.Retrieval.Limit,
		Capabilities: rag.Capabilities(cfg.OpenAI.Model, cfg.OpenAI.NoTemperatureModels...),
		Support: rag.SupportContacts{
			CompanyName: cfg.Support.CompanyName,
			Email:       cfg.Support.Email,
			Phone:       cfg.Support.Phone,
			Hours:       cfg.Support.Hours,
		},
		ChatTimeout: cfg.RequestTimeout,
	})

	p.evaluator = evaluation.NewEvaluator(
		evaluation.NewSimilarity(p.similarityEncoder()),
		evaluation.NewJudge(p.chat, cfg.OpenAI.JudgeModel, cfg.RequestTimeout, cfg.OpenAI.NoTemperatureModels...),
	)

	return p, nil
}

func (p *pipeline) register(provider types.Provider, e interfaces.Embedder, model string) {
	if p.cache != nil {
		e = embedding.NewCachedEmbedder(e, p.cache, fmt.Sprintf("%s:%s", provider, model), p.cfg.Cache.TTL)
	}
	p.embedder.Register(provider, e)
}

// similarityEncoder picks the sentence encoder used for answer similarity.
func (p *pipeline) similarityEncoder() interfaces.Embedder {
	if p.cfg.Evaluation.Encoder == config.EncoderHF {
		if p.embedder.Has(types.ProviderHuggingFace) {
			return p.embedder.Embedder(types.ProviderHuggingFace)
		}
		xlog.Warn("The hf embedding backend is disabled, using the local sentence encoder")
	}
	return evaluation.NewSentenceEncoder(evaluation.SentenceEncoderOptions{
		ModelsDir: p.cfg.Evaluation.ModelsDir,
		ModelName: p.cfg.Evaluation.EncoderModel,
		HubToken:  p.cfg.HuggingFace.APIKey,
	})
}

// providers lists the embedding backends that are configured.
func (p *pipeline) providers() []types.Provider {
	var out []types.Provider
	for _, provider := range types.Providers {
		if p.embedder.Has(provider) {
			out = append(out, provider)
		}
	}
	return out
}

func (p *pipeline) ingestor() (*rag.Ingestor, *rag.IngestState, error) {
	state, err := rag.NewIngestState(p.cfg.Ingest.StateFile)
	if err != nil {
		return nil, nil, err
	}

	var extractor faq.Extractor
	switch p.cfg.Ingest.Extractor {
	case "llm":
		extractor = faq.NewLLMExtractor(p.chat, p.cfg.OpenAI.Model, p.cfg.Ingest.MinConfidence, p.cfg.Ingest.MaxChunkSize)
	default:
		extractor = faq.NewRegexExtractor()
	}

	fetcher := sources.NewFetcher(sources.FetcherOptions{
		Timeout:        p.cfg.RequestTimeout,
		PagesPerSecond: p.cfg.Ingest.PagesPerSecond,
		GitPrivateKey:  p.cfg.Ingest.GitPrivateKey,
	})

	return rag.NewIngestor(p.store, p.embedder, p.providers(), extractor, fetcher, state), state, nil
}

func (p *pipeline) Close(ctx context.Context) {
	if p.store != nil {
		if err := p.store.Close(ctx); err != nil {
			xlog.Warn("Error closing document store", "error", err)
		}
	}
	if p.cache != nil {
		p.cache.Close()
	}
}
