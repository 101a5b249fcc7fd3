// Package evaluation scores generated answers offline: a local semantic similarity,
// an LLM judge and a batch harness over a CSV test set.
package evaluation

import (
	"context"
	"strings"

	"github.com/mudler/faqrecall/rag/types"
)

// Request is one (question, answer, context) triple to score.
type Request struct {
	Question string   `json:"question" validate:"required"`
	Response string   `json:"response" validate:"required"`
	Context  []string `json:"context"`
	// ReferenceAnswer is compared with the response; the joined context is used when empty.
	ReferenceAnswer string `json:"reference_answer,omitempty"`
}

// Evaluator combines the similarity metric and the LLM judge. Either may be nil.
type Evaluator struct {
	similarity *Similarity
	judge      *Judge
}

func NewEvaluator(similarity *Similarity, judge *Judge) *Evaluator {
	return &Evaluator{similarity: similarity, judge: judge}
}

// Evaluate scores a response. Sub-evaluations that cannot run are left nil.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) types.EvaluationScore {
	var score types.EvaluationScore

	if e.similarity != nil {
		reference := req.ReferenceAnswer
		if reference == "" {
			reference = strings.Join(req.Context, " ")
		}
		if reference != "" {
			sim := e.similarity.Calculate(ctx, req.Response, reference)
			score.SemanticSimilarity = &sim
		}
	}

	if e.judge != nil {
		judged := e.judge.Score(ctx, req.Question, req.Response, req.Context)
		score.Judged = &judged
	}

	return score
}

// Similarity returns the similarity scorer, or nil.
func (e *Evaluator) Similarity() *Similarity {
	return e.similarity
}
