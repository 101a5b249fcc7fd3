package embedding

import (
	"context"
	"fmt"

	"github.com/mudler/faqrecall/rag/types"
	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = string(openai.AdaEmbeddingV2)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint (backend A).
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates a backend A embedder. baseURL may be empty to use api.openai.com,
// or point to any OpenAI-compatible server.
func NewOpenAIEmbedder(apiKey, baseURL, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, types.EmbeddingRequestError(types.ProviderOpenAI, "OPENAI_API_KEY is not set", types.ErrMissingCredentials)
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return NewOpenAIEmbedderWithClient(openai.NewClientWithConfig(config), model), nil
}

// NewOpenAIEmbedderWithClient creates a backend A embedder sharing an existing client.
func NewOpenAIEmbedderWithClient(client *openai.Client, model string) *OpenAIEmbedder {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEmbedder{
		client: client,
		model:  model,
	}
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx,
		openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: openai.EmbeddingModel(e.model),
		},
	)
	if err != nil {
		return nil, types.EmbeddingRequestError(types.ProviderOpenAI, "error getting embedding", err)
	}

	if len(resp.Data) == 0 {
		return nil, types.EmbeddingRequestError(types.ProviderOpenAI, "no response from OpenAI API", nil)
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) == 0 {
		return nil, types.EmbeddingRequestError(types.ProviderOpenAI, fmt.Sprintf("empty embedding returned by model %s", e.model), nil)
	}

	return embedding, nil
}
