package types

import "strings"

// Judged score dimensions.
const (
	DimensionFactualAccuracy = "factual_accuracy"
	DimensionRelevance       = "relevance"
	DimensionCompleteness    = "completeness"
	DimensionContextUsage    = "context_usage"
)

// Dimensions lists the judged dimensions in prompt order.
var Dimensions = []string{
	DimensionFactualAccuracy,
	DimensionRelevance,
	DimensionCompleteness,
	DimensionContextUsage,
}

// Score bounds for judged dimensions.
const (
	MinJudgedScore = 0.0
	MaxJudgedScore = 10.0
)

// JudgeFailurePrefix starts the raw response of a failed judgement.
const JudgeFailurePrefix = "Evaluation failed"

// JudgedScores are the LLM-judged quality scores, each in [0, 10].
// RawResponse holds the model output, or the failure detail when all scores are zero.
type JudgedScores struct {
	FactualAccuracy float64 `json:"factual_accuracy"`
	Relevance       float64 `json:"relevance"`
	Completeness    float64 `json:"completeness"`
	ContextUsage    float64 `json:"context_usage"`
	RawResponse     string  `json:"raw_response,omitempty"`
}

// Map returns the scores keyed by dimension name.
func (s JudgedScores) Map() map[string]float64 {
	return map[string]float64{
		DimensionFactualAccuracy: s.FactualAccuracy,
		DimensionRelevance:       s.Relevance,
		DimensionCompleteness:    s.Completeness,
		DimensionContextUsage:    s.ContextUsage,
	}
}

// Failed reports whether judging failed.
func (s JudgedScores) Failed() bool {
	return strings.HasPrefix(s.RawResponse, JudgeFailurePrefix)
}

// FailedJudgement returns the zero scores carrying the failure detail.
func FailedJudgement(detail string) JudgedScores {
	if detail == "" {
		return JudgedScores{RawResponse: JudgeFailurePrefix}
	}
	return JudgedScores{RawResponse: JudgeFailurePrefix + ": " + detail}
}

// EvaluationScore is produced per (question, answer, context) triple.
// Either part is nil when its sub-evaluation did not run.
type EvaluationScore struct {
	SemanticSimilarity *float64      `json:"semantic_similarity,omitempty"`
	Judged             *JudgedScores `json:"judged_scores,omitempty"`
}
