package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mudler/faqrecall/rag/interfaces"
	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Batch defaults.
const (
	DefaultWorkers = 4
	DefaultMaxWait = 180 * time.Second
)

// ContextRecallThreshold is the minimum ground-truth similarity for a retrieved context
// to count as recalling the answer.
const ContextRecallThreshold = 0.5

// InterruptedError is recorded for rows that never ran because the batch was cancelled.
const InterruptedError = "interrupted"

// BatchOptions configures a batch evaluation run.
type BatchOptions struct {
	Workers int
	// MaxWait bounds generation and evaluation of a single row.
	MaxWait time.Duration
	// RatePerSecond limits how many rows start per second. Zero disables the limit.
	RatePerSecond float64
	// Model and Provider are recorded with each row.
	Model    string
	Provider types.Provider
}

// Summary aggregates a batch run.
type Summary struct {
	Model         string         `json:"model"`
	EmbeddingType types.Provider `json:"embedding_type"`
	Total         int            `json:"total"`
	Successes     int            `json:"successes"`
	Errors        int            `json:"errors"`
	SuccessRate   float64        `json:"success_rate"`
	ErrorRate     float64        `json:"error_rate"`

	Faithfulness       float64 `json:"faithfulness"`
	AnswerRelevancy    float64 `json:"answer_relevancy"`
	SemanticSimilarity float64 `json:"semantic_similarity"`
	ContextRecall      float64 `json:"context_recall"`

	Interrupted bool          `json:"interrupted"`
	TimeTaken   time.Duration `json:"time_taken"`
}

// Batch runs generation and evaluation over a test set.
type Batch struct {
	generator interfaces.AnswerGenerator
	evaluator *Evaluator
	sink      Sink
	opts      BatchOptions
}

// NewBatch creates a batch runner. Records are appended to sink as rows complete.
func NewBatch(generator interfaces.AnswerGenerator, evaluator *Evaluator, sink Sink, opts BatchOptions) *Batch {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.Provider == "" {
		opts.Provider = types.ProviderOpenAI
	}
	return &Batch{
		generator: generator,
		evaluator: evaluator,
		sink:      sink,
		opts:      opts,
	}
}

// Run evaluates every row and returns one record per row, in row order. Cancelling ctx
// stops new rows from starting; rows that did not run are recorded as interrupted.
// The error reports sink failures only.
func (b *Batch) Run(ctx context.Context, rows []Row) ([]Record, Summary, error) {
	start := time.Now()
	xlog.Info("Starting evaluation", "model", b.opts.Model, "embedding_type", b.opts.Provider, "rows", len(rows), "workers", b.opts.Workers)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if b.opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(b.opts.RatePerSecond), 1)
	}

	records := make([]Record, len(rows))
	var (
		mu       sync.Mutex
		sinkErrs []error
	)
	emit := func(i int, rec Record) {
		records[i] = rec
		if b.sink == nil {
			return
		}
		if err := b.sink.Append(rec); err != nil {
			xlog.Error("Error appending evaluation record", "index", rec.Index, "error", err)
			mu.Lock()
			sinkErrs = append(sinkErrs, fmt.Errorf("row %d: %w", rec.Index, err))
			mu.Unlock()
		}
	}

	var g errgroup.Group
	g.SetLimit(b.opts.Workers)

	for i, row := range rows {
		if ctx.Err() != nil {
			emit(i, b.interrupted(row, ctx.Err()))
			continue
		}

		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				emit(i, b.interrupted(row, err))
				return nil
			}
			emit(i, b.evaluateRow(ctx, row))
			return nil
		})
	}
	_ = g.Wait()

	summary := b.summarize(records, time.Since(start))
	summary.Interrupted = ctx.Err() != nil

	xlog.Info("Evaluation finished",
		"model", summary.Model,
		"embedding_type", summary.EmbeddingType,
		"success_rate", summary.SuccessRate,
		"error_rate", summary.ErrorRate,
		"faithfulness", summary.Faithfulness,
		"answer_relevancy", summary.AnswerRelevancy,
		"semantic_similarity", summary.SemanticSimilarity,
		"context_recall", summary.ContextRecall,
		"time_taken", summary.TimeTaken,
	)

	return records, summary, errors.Join(sinkErrs...)
}

func (b *Batch) evaluateRow(ctx context.Context, row Row) Record {
	rowCtx, cancel := context.WithTimeout(ctx, b.opts.MaxWait)
	defer cancel()

	rec := b.newRecord(row)

	answer := b.generator.Generate(rowCtx, row.Question)
	rec.GeneratedAnswer = answer.Text
	rec.Contexts = answer.Contexts
	rec.References = answer.References
	rec.Outcome = answer.Outcome
	rec.Success = answer.Outcome != types.OutcomeError

	if !rec.Success {
		rec.Error = answer.Detail
		if ctx.Err() != nil {
			rec.Error = fmt.Sprintf("%s: %s", InterruptedError, answer.Detail)
		}
		xlog.Error("Error processing question", "index", row.Index, "question", row.Question, "error", answer.Detail)
		return rec
	}

	if b.evaluator != nil {
		rec.Score = b.evaluator.Evaluate(rowCtx, Request{
			Question:        row.Question,
			Response:        answer.Text,
			Context:         answer.Contexts,
			ReferenceAnswer: row.GroundTruth,
		})
		if sim := b.evaluator.Similarity(); sim != nil && row.GroundTruth != "" {
			rec.ContextSimilarity = sim.Best(rowCtx, row.GroundTruth, answer.Contexts)
		}
	}

	return rec
}

func (b *Batch) interrupted(row Row, cause error) Record {
	rec := b.newRecord(row)
	rec.Outcome = types.OutcomeError
	rec.Error = InterruptedError
	if cause != nil {
		rec.Error = fmt.Sprintf("%s: %v", InterruptedError, cause)
	}
	return rec
}

func (b *Batch) newRecord(row Row) Record {
	return Record{
		Index:         row.Index,
		Timestamp:     time.Now(),
		Model:         b.opts.Model,
		EmbeddingType: b.opts.Provider,
		Question:      row.Question,
		GroundTruth:   row.GroundTruth,
		Contexts:      []string{},
		References:    []string{},
	}
}

func (b *Batch) summarize(records []Record, elapsed time.Duration) Summary {
	s := Summary{
		Model:         b.opts.Model,
		EmbeddingType: b.opts.Provider,
		Total:         len(records),
		TimeTaken:     elapsed,
	}

	var (
		judged, similar, recallRows int
		faithfulness, relevancy     float64
		similarity                  float64
		recalled                    int
	)
	for _, rec := range records {
		if !rec.Success {
			s.Errors++
			continue
		}
		s.Successes++

		if j := rec.Score.Judged; j != nil && !j.Failed() {
			judged++
			faithfulness += j.FactualAccuracy / types.MaxJudgedScore
			relevancy += j.Relevance / types.MaxJudgedScore
		}
		if sim := rec.Score.SemanticSimilarity; sim != nil {
			similar++
			similarity += *sim
		}
		if len(rec.Contexts) > 0 {
			recallRows++
			if rec.ContextSimilarity >= ContextRecallThreshold {
				recalled++
			}
		}
	}

	if s.Total > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.Total)
		s.ErrorRate = float64(s.Errors) / float64(s.Total)
	}
	if judged > 0 {
		s.Faithfulness = faithfulness / float64(judged)
		s.AnswerRelevancy = relevancy / float64(judged)
	}
	if similar > 0 {
		s.SemanticSimilarity = similarity / float64(similar)
	}
	if recallRows > 0 {
		s.ContextRecall = float64(recalled) / float64(recallRows)
	}

	return s
}
