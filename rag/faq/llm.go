package faq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mudler/faqrecall/pkg/chunk"
	"github.com/mudler/faqrecall/rag/interfaces"
	"github.com/mudler/faqrecall/rag/sources"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

// DefaultMinConfidence is the confidence below which extracted items are discarded.
const DefaultMinConfidence = 0.7

const extractionSystemPrompt = `You are an assistant that extracts FAQ content from HTML or markdown pages.
You are not allowed to change anything in the text.
You will be given a webpage which should contain one question and one detailed answer.
Identify the question and the detailed answer and respond without changing any word from them.
Strictly determine whether the page is a true FAQ page with proper questions and detailed answers.
Pages that only contain links are not FAQ pages.
Respond with JSON: {"is_faq_page": bool, "faqs": [{"question": string, "answer": string, "is_faq": bool, "confidence": number between 0 and 1}]}`

type extraction struct {
	IsFAQPage bool   `json:"is_faq_page"`
	FAQs      []Item `json:"faqs"`
}

// LLMExtractor extracts FAQ items with a chat model using JSON structured output.
// Long pages are split into chunks, each extracted separately.
type LLMExtractor struct {
	chat          interfaces.ChatClient
	model         string
	minConfidence float64
	maxChunkSize  int
}

func NewLLMExtractor(chat interfaces.ChatClient, model string, minConfidence float64, maxChunkSize int) *LLMExtractor {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &LLMExtractor{
		chat:          chat,
		model:         model,
		minConfidence: minConfidence,
		maxChunkSize:  maxChunkSize,
	}
}

// Extract keeps items flagged as FAQ with at least the minimum confidence.
func (e *LLMExtractor) Extract(ctx context.Context, page sources.Page) ([]Item, error) {
	content := CleanPage(page.Text)
	if content == "" {
		return nil, nil
	}

	pieces := []string{content}
	if e.maxChunkSize > 0 {
		pieces = chunk.SplitTextIntoChunks(content, e.maxChunkSize)
	}

	var items []Item
	for _, piece := range pieces {
		extracted, err := e.extract(ctx, page, piece)
		if err != nil {
			return nil, fmt.Errorf("extracting FAQ from %s: %w", page.URL, err)
		}
		if !extracted.IsFAQPage {
			continue
		}
		for _, item := range extracted.FAQs {
			if !item.IsFAQ || item.Confidence < e.minConfidence {
				xlog.Debug("Discarding extracted item", "url", page.URL, "question", item.Question, "confidence", item.Confidence)
				continue
			}
			if strings.TrimSpace(item.Question) == "" || strings.TrimSpace(item.Answer) == "" {
				continue
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func (e *LLMExtractor) extract(ctx context.Context, page sources.Page, content string) (extraction, error) {
	resp, err := e.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractionSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Extract FAQ content from this page:\n\nURL: %s\nTitle: %s\n\nContent:\n%s", page.URL, page.Title, content),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return extraction{}, err
	}
	if len(resp.Choices) == 0 {
		return extraction{}, fmt.Errorf("no choices returned by model %s", e.model)
	}

	var out extraction
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return extraction{}, fmt.Errorf("malformed extraction response: %w", err)
	}
	return out, nil
}
