package types

import "fmt"

const (
	contentQuestionPrefix = "Question: "
	contentAnswerPrefix   = "\nAnswer: "
)

// FaqRecord is a stored question/answer pair with its page metadata and
// one embedding vector per provider.
type FaqRecord struct {
	ID         string                 `json:"id"`
	Question   string                 `json:"question"`
	Answer     string                 `json:"answer"`
	Content    string                 `json:"content"`
	PageURL    string                 `json:"page_url"`
	PageTitle  string                 `json:"page_title"`
	Embeddings map[Provider][]float32 `json:"-"`
}

// NewFaqRecord builds a record and its embedding input from a question/answer pair.
func NewFaqRecord(question, answer, pageURL, pageTitle string) FaqRecord {
	return FaqRecord{
		Question:   question,
		Answer:     answer,
		Content:    FaqContent(question, answer),
		PageURL:    pageURL,
		PageTitle:  pageTitle,
		Embeddings: map[Provider][]float32{},
	}
}

// FaqContent is the text embedded for a question/answer pair.
func FaqContent(question, answer string) string {
	return contentQuestionPrefix + question + contentAnswerPrefix + answer
}

// Embedding returns the record's vector for the given provider, if any.
func (r FaqRecord) Embedding(p Provider) ([]float32, bool) {
	v, ok := r.Embeddings[p]
	return v, ok && len(v) > 0
}

// SetEmbedding stores the vector for the given provider.
func (r *FaqRecord) SetEmbedding(p Provider, v []float32) {
	if r.Embeddings == nil {
		r.Embeddings = map[Provider][]float32{}
	}
	r.Embeddings[p] = v
}

func (r FaqRecord) String() string {
	return fmt.Sprintf("FaqRecord{id=%s url=%s question=%q}", r.ID, r.PageURL, r.Question)
}
