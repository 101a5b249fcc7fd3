package evaluation

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mudler/faqrecall/rag/interfaces"
	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultRetrievalLimit is how many records are retrieved per question.
const DefaultRetrievalLimit = 5

// RetrievalOptions configures a retrieval evaluation run.
type RetrievalOptions struct {
	// Providers are evaluated in order. Empty means every known backend.
	Providers     []types.Provider
	Limit         int
	Workers       int
	MaxWait       time.Duration
	RatePerSecond float64
}

// RetrievalSummary scores one embedding backend.
type RetrievalSummary struct {
	EmbeddingType    types.Provider `json:"embedding_type"`
	Total            int            `json:"total"`
	Errors           int            `json:"errors"`
	ContextPrecision float64        `json:"context_precision"`
	ContextRecall    float64        `json:"context_recall"`
	TimeTaken        time.Duration  `json:"time_taken"`
}

// RetrievalEvaluation measures how well each embedding backend retrieves the records
// that answer a test-set question, without generating answers.
type RetrievalEvaluation struct {
	retriever  interfaces.Retriever
	similarity *Similarity
	opts       RetrievalOptions
}

func NewRetrievalEvaluation(retriever interfaces.Retriever, similarity *Similarity, opts RetrievalOptions) *RetrievalEvaluation {
	if len(opts.Providers) == 0 {
		opts.Providers = types.Providers
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultRetrievalLimit
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	return &RetrievalEvaluation{
		retriever:  retriever,
		similarity: similarity,
		opts:       opts,
	}
}

type rowRetrieval struct {
	precision float64
	recall    float64
	err       error
}

// Run returns one summary per provider, in provider order.
func (r *RetrievalEvaluation) Run(ctx context.Context, rows []Row) []RetrievalSummary {
	summaries := make([]RetrievalSummary, 0, len(r.opts.Providers))
	for _, provider := range r.opts.Providers {
		summaries = append(summaries, r.runProvider(ctx, provider, rows))
	}
	return summaries
}

func (r *RetrievalEvaluation) runProvider(ctx context.Context, provider types.Provider, rows []Row) RetrievalSummary {
	start := time.Now()
	xlog.Info("Starting retrieval evaluation", "embedding_type", provider, "rows", len(rows), "limit", r.opts.Limit)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if r.opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.opts.RatePerSecond), 1)
	}

	results := make([]rowRetrieval, len(rows))

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, row := range rows {
		if ctx.Err() != nil {
			results[i] = rowRetrieval{err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				results[i] = rowRetrieval{err: err}
				return nil
			}
			results[i] = r.evaluateRow(ctx, provider, row)
			return nil
		})
	}
	_ = g.Wait()

	s := RetrievalSummary{EmbeddingType: provider, Total: len(rows)}
	var precision, recall float64
	for i, res := range results {
		if res.err != nil {
			s.Errors++
			xlog.Error("Error retrieving contexts", "embedding_type", provider, "index", rows[i].Index, "error", res.err)
			continue
		}
		precision += res.precision
		recall += res.recall
	}
	if ok := s.Total - s.Errors; ok > 0 {
		s.ContextPrecision = precision / float64(ok)
		s.ContextRecall = recall / float64(ok)
	}
	s.TimeTaken = time.Since(start)

	xlog.Info("Retrieval evaluation finished",
		"embedding_type", provider,
		"errors", s.Errors,
		"context_precision", s.ContextPrecision,
		"context_recall", s.ContextRecall,
		"time_taken", s.TimeTaken,
	)
	return s
}

func (r *RetrievalEvaluation) evaluateRow(ctx context.Context, provider types.Provider, row Row) rowRetrieval {
	rowCtx, cancel := context.WithTimeout(ctx, r.opts.MaxWait)
	defer cancel()

	results, err := r.retriever.Retrieve(rowCtx, row.Question, provider, r.opts.Limit)
	if err != nil {
		return rowRetrieval{err: err}
	}

	relevant := make([]bool, len(results))
	for k, res := range results {
		relevant[k] = r.relevant(rowCtx, row, res)
	}

	precision := AveragePrecision(relevant)
	var recall float64
	if precision > 0 {
		recall = 1
	}
	return rowRetrieval{precision: precision, recall: recall}
}

// relevant reports whether a retrieved record answers the row. Rows with a reference
// page match on the page URL, others on similarity to the ground truth.
func (r *RetrievalEvaluation) relevant(ctx context.Context, row Row, res types.Result) bool {
	if row.ReferenceURL != "" {
		return res.PageURL == row.ReferenceURL
	}
	if r.similarity == nil || row.GroundTruth == "" {
		return false
	}
	return r.similarity.Calculate(ctx, row.GroundTruth, res.Answer) >= ContextRecallThreshold
}

// AveragePrecision averages precision@k over the ranks k holding a relevant context.
// It is 0 when nothing relevant was retrieved.
func AveragePrecision(relevant []bool) float64 {
	var hits int
	var sum float64
	for k, ok := range relevant {
		if !ok {
			continue
		}
		hits++
		sum += float64(hits) / float64(k+1)
	}
	if hits == 0 {
		return 0
	}
	return sum / float64(hits)
}

// RetrievalReportHeader lists the retrieval summary CSV columns.
var RetrievalReportHeader = []string{
	"embedding_type", "total", "errors", "context_precision", "context_recall", "time_taken_seconds",
}

// RetrievalReportPath returns a timestamped retrieval summary file name inside dir.
func RetrievalReportPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("retrieval_results_%s.csv", now.Format("20060102_150405")))
}

// WriteRetrievalReport writes one row per backend to path.
func WriteRetrievalReport(path string, summaries []RetrievalSummary) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	rows := [][]string{RetrievalReportHeader}
	for _, s := range summaries {
		rows = append(rows, []string{
			s.EmbeddingType.String(),
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Errors),
			formatScore(s.ContextPrecision),
			formatScore(s.ContextRecall),
			strconv.FormatFloat(s.TimeTaken.Seconds(), 'f', 2, 64),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
