package rag

import (
	"context"
	"strings"
	"time"

	"github.com/mudler/faqrecall/rag/interfaces"
	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

// DefaultRetrievalLimit is the number of records used to ground an answer.
const DefaultRetrievalLimit = 3

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	Model        string
	Provider     types.Provider
	Limit        int
	Capabilities ModelCapabilities
	Support      SupportContacts
	ChatTimeout  time.Duration
}

// Generator answers questions from retrieved FAQ records.
type Generator struct {
	retriever interfaces.Retriever
	chat      ChatClient
	opts      GeneratorOptions
}

// NewGenerator creates an answer generator. Zero options fall back to the openai
// provider and DefaultRetrievalLimit.
func NewGenerator(retriever interfaces.Retriever, chat ChatClient, opts GeneratorOptions) *Generator {
	if opts.Provider == "" {
		opts.Provider = types.ProviderOpenAI
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultRetrievalLimit
	}
	return &Generator{
		retriever: retriever,
		chat:      chat,
		opts:      opts,
	}
}

// Model returns the generation model name.
func (g *Generator) Model() string {
	return g.opts.Model
}

// Provider returns the embedding provider used for retrieval.
func (g *Generator) Provider() types.Provider {
	return g.opts.Provider
}

// Generate answers a question. It never fails: an empty retrieval yields the no-context
// answer without calling the model, and any failure yields the error answer.
func (g *Generator) Generate(ctx context.Context, question string) types.Answer {
	xlog.Info("Generating answer", "question", question)

	records, err := g.retriever.Retrieve(ctx, question, g.opts.Provider, g.opts.Limit)
	if err != nil {
		xlog.Error("Error generating answer", "stage", "retrieval", "error", err)
		return types.Failed(err)
	}

	if len(records) == 0 {
		xlog.Warn("No relevant documents found", "question", question)
		return types.NoContext()
	}

	references := make([]string, 0, len(records))
	contents := make([]string, 0, len(records))
	for _, r := range records {
		references = append(references, r.PageURL)
		contents = append(contents, r.Content)
	}
	xlog.Info("Found reference documents", "count", len(references))

	text, err := g.complete(ctx, question, contents)
	if err != nil {
		xlog.Error("Error generating answer", "stage", "generation", "error", err)
		return types.Failed(err)
	}

	return types.NewAnswer(text, references, contents)
}

func (g *Generator) complete(ctx context.Context, question string, contents []string) (string, error) {
	prompt, err := BuildPrompt(g.opts.Support, question, contents)
	if err != nil {
		return "", types.GenerationError("failed to build prompt", err)
	}

	req := openai.ChatCompletionRequest{
		Model: g.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}
	if g.opts.Capabilities.SupportsTemperature {
		req.Temperature = MinimumTemperature
	}

	if g.opts.ChatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.ChatTimeout)
		defer cancel()
	}

	resp, err := g.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", types.GenerationError("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", types.GenerationError("no choices returned by model "+g.opts.Model, nil)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", types.GenerationError("empty completion returned by model "+g.opts.Model, nil)
	}
	return text, nil
}
