package faq

import (
	"context"
	"regexp"
	"strings"

	"github.com/mudler/faqrecall/rag/sources"
)

var (
	skipToContent   = regexp.MustCompile(`(?m)^.*\[?Skip to main content\]?.*(\n|$)`)
	relatedArticles = regexp.MustCompile(`(?m)^(#{1,6}[ \t]*)?Related articles[\s\S]*$`)
)

// RegexExtractor treats every page as a single FAQ item: the page title is the
// question and the cleaned page text is the answer.
type RegexExtractor struct{}

func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

// Extract returns no items for pages without a URL, title or content.
func (RegexExtractor) Extract(_ context.Context, page sources.Page) ([]Item, error) {
	content := CleanPage(page.Text)
	title := strings.TrimSpace(page.Title)
	if page.URL == "" || title == "" || content == "" {
		return nil, nil
	}
	return []Item{{
		Question:   title,
		Answer:     content,
		IsFAQ:      true,
		Confidence: 1,
	}}, nil
}

// CleanPage drops "Skip to main content" navigation lines and everything from
// the "Related articles" section on.
func CleanPage(text string) string {
	text = skipToContent.ReplaceAllString(text, "")
	text = relatedArticles.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
