package evaluation

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mudler/faqrecall/rag/types"
)

// Record is the evaluation outcome of one test-set row.
type Record struct {
	Index           int
	Timestamp       time.Time
	Model           string
	EmbeddingType   types.Provider
	Question        string
	GroundTruth     string
	GeneratedAnswer string
	Contexts        []string
	References      []string
	Outcome         types.Outcome
	Success         bool
	Error           string
	Score           types.EvaluationScore
	// ContextSimilarity is the best similarity between the ground truth and a retrieved context.
	ContextSimilarity float64
}

// Sink receives records as soon as their row completes. Implementations must be
// safe for concurrent use.
type Sink interface {
	Append(rec Record) error
}

// ReportHeader lists the report CSV columns.
var ReportHeader = []string{
	"index", "timestamp", "model", "embedding_type", "question", "ground_truth",
	"generated_answer", "retrieved_contexts", "references", "outcome", "success", "error",
	"semantic_similarity", "factual_accuracy", "relevance", "completeness", "context_usage",
	"context_similarity",
}

// CSVReport appends records to a CSV file, flushing after every row.
type CSVReport struct {
	sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

// NewCSVReport creates the report file at path and writes the header.
func NewCSVReport(path string) (*CSVReport, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	r := &CSVReport{path: path, file: f, w: csv.NewWriter(f)}
	if err := r.write(ReportHeader); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// ReportPath returns a timestamped report file name inside dir.
func ReportPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("detailed_results_%s.csv", now.Format("20060102_150405")))
}

func (r *CSVReport) Path() string {
	return r.path
}

func (r *CSVReport) Append(rec Record) error {
	r.Lock()
	defer r.Unlock()

	return r.write(recordRow(rec))
}

func (r *CSVReport) Close() error {
	r.Lock()
	defer r.Unlock()

	r.w.Flush()
	if err := r.w.Error(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

func (r *CSVReport) write(row []string) error {
	if err := r.w.Write(row); err != nil {
		return err
	}
	r.w.Flush()
	return r.w.Error()
}

func recordRow(rec Record) []string {
	row := []string{
		strconv.Itoa(rec.Index),
		rec.Timestamp.Format(time.RFC3339),
		rec.Model,
		rec.EmbeddingType.String(),
		rec.Question,
		rec.GroundTruth,
		rec.GeneratedAnswer,
		strings.Join(rec.Contexts, "\n"),
		strings.Join(rec.References, "\n"),
		string(rec.Outcome),
		strconv.FormatBool(rec.Success),
		rec.Error,
	}

	if rec.Score.SemanticSimilarity != nil {
		row = append(row, formatScore(*rec.Score.SemanticSimilarity))
	} else {
		row = append(row, "")
	}

	if j := rec.Score.Judged; j != nil {
		row = append(row,
			formatScore(j.FactualAccuracy),
			formatScore(j.Relevance),
			formatScore(j.Completeness),
			formatScore(j.ContextUsage),
		)
	} else {
		row = append(row, "", "", "", "")
	}

	return append(row, formatScore(rec.ContextSimilarity))
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// MemorySink keeps records in memory.
type MemorySink struct {
	sync.Mutex
	Records []Record
}

func (m *MemorySink) Append(rec Record) error {
	m.Lock()
	defer m.Unlock()

	m.Records = append(m.Records, rec)
	return nil
}
