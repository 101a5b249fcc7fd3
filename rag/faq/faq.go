// Package faq turns fetched pages into question/answer pairs.
package faq

import (
	"context"

	"github.com/mudler/faqrecall/rag/sources"
)

// Item is one extracted question and answer.
type Item struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	IsFAQ      bool    `json:"is_faq"`
	Confidence float64 `json:"confidence"`
}

// Extractor extracts FAQ items from a page.
type Extractor interface {
	Extract(ctx context.Context, page sources.Page) ([]Item, error)
}
