package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/mudler/faqrecall/rag"
	"github.com/mudler/faqrecall/rag/interfaces"
	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

// DefaultJudgeModel is the model used to judge answers.
const DefaultJudgeModel = "o3-mini"

var judgeTemplate = template.Must(template.New("judge").Parse(`Please evaluate this question-answer pair with the given context:

Question: {{.Question}}
Response: {{.Response}}
Context: {{.Context}}

Evaluate on the following criteria (score 0-10):
1. Factual Accuracy: Does the response align with facts in the context?
2. Relevance: How well does the response address the question?
3. Completeness: Does the response cover all important aspects?
4. Context Usage: How well does it use the provided context?

Return only the scores in JSON format like this:
{"factual_accuracy": score, "relevance": score, "completeness": score, "context_usage": score}`))

// Judge scores answers with an LLM.
type Judge struct {
	chat         interfaces.ChatClient
	model        string
	capabilities rag.ModelCapabilities
	timeout      time.Duration
}

// NewJudge creates an LLM judge. An empty model selects DefaultJudgeModel.
func NewJudge(chat interfaces.ChatClient, model string, timeout time.Duration, noTemperatureModels ...string) *Judge {
	if model == "" {
		model = DefaultJudgeModel
	}
	return &Judge{
		chat:         chat,
		model:        model,
		capabilities: rag.Capabilities(model, noTemperatureModels...),
		timeout:      timeout,
	}
}

// Model returns the judge model name.
func (j *Judge) Model() string {
	return j.model
}

// Score judges a response. It never fails: on any error all dimensions are zero
// and RawResponse carries the failure.
func (j *Judge) Score(ctx context.Context, question, response string, contexts []string) types.JudgedScores {
	scores, err := j.score(ctx, question, response, contexts)
	if err != nil {
		xlog.Error("Error in LLM evaluation", "model", j.model, "error", err)
		return types.FailedJudgement(err.Error())
	}
	return scores
}

func (j *Judge) score(ctx context.Context, question, response string, contexts []string) (types.JudgedScores, error) {
	var prompt bytes.Buffer
	err := judgeTemplate.Execute(&prompt, struct {
		Question, Response, Context string
	}{question, response, strings.Join(contexts, " ")})
	if err != nil {
		return types.JudgedScores{}, types.EvaluationError("failed to build judge prompt", err)
	}

	req := openai.ChatCompletionRequest{
		Model: j.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt.String(),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if j.capabilities.SupportsTemperature {
		req.Temperature = rag.MinimumTemperature
	}

	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	resp, err := j.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		return types.JudgedScores{}, types.EvaluationError("judge request failed", err)
	}
	if len(resp.Choices) == 0 {
		return types.JudgedScores{}, types.EvaluationError("no choices returned by model "+j.model, nil)
	}

	scores, err := ParseJudgement(resp.Choices[0].Message.Content)
	if err != nil {
		return types.JudgedScores{}, types.EvaluationError("malformed judgement", err)
	}
	return scores, nil
}

// ParseJudgement decodes the judge output. Every dimension must be present and
// numeric within [0, 10].
func ParseJudgement(raw string) (types.JudgedScores, error) {
	var values map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &values); err != nil {
		return types.JudgedScores{}, fmt.Errorf("malformed judge response: %w", err)
	}

	parsed := make(map[string]float64, len(types.Dimensions))
	for _, d := range types.Dimensions {
		v, ok := values[d]
		if !ok {
			return types.JudgedScores{}, fmt.Errorf("judge response is missing %q", d)
		}
		n, ok := v.(float64)
		if !ok {
			return types.JudgedScores{}, fmt.Errorf("judge score %q is not a number: %v", d, v)
		}
		if n < types.MinJudgedScore || n > types.MaxJudgedScore {
			return types.JudgedScores{}, fmt.Errorf("judge score %q out of range: %v", d, n)
		}
		parsed[d] = n
	}

	return types.JudgedScores{
		FactualAccuracy: parsed[types.DimensionFactualAccuracy],
		Relevance:       parsed[types.DimensionRelevance],
		Completeness:    parsed[types.DimensionCompleteness],
		ContextUsage:    parsed[types.DimensionContextUsage],
		RawResponse:     raw,
	}, nil
}
