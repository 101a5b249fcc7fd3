package interfaces

import (
	"context"

	"github.com/mudler/faqrecall/rag/types"
	"github.com/sashabaranov/go-openai"
)

// ChatClient is the subset of the OpenAI client used for generation and judging.
// *openai.Client satisfies it.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Retriever returns the records most similar to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, provider types.Provider, limit int) ([]types.Result, error)
}

// AnswerGenerator answers a question from retrieved context. It never fails:
// failures are reported through the answer's outcome.
type AnswerGenerator interface {
	Generate(ctx context.Context, question string) types.Answer
}
