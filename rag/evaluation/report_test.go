package evaluation_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"time"

	. "github.com/mudler/faqrecall/rag/evaluation"
	"github.com/mudler/faqrecall/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CSVReport", func() {
	It("names reports after the run time", func() {
		now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
		Expect(ReportPath("results", now)).To(Equal(filepath.Join("results", "detailed_results_20240309_140507.csv")))
	})

	It("writes every appended record immediately", func() {
		path := filepath.Join(GinkgoT().TempDir(), "results", "report.csv")
		report, err := NewCSVReport(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Path()).To(Equal(path))

		sim := 0.75
		Expect(report.Append(Record{
			Index:           0,
			Timestamp:       time.Now(),
			Model:           "gpt-4o-mini",
			EmbeddingType:   types.ProviderOpenAI,
			Question:        "Where is my order?",
			GroundTruth:     "In your account.",
			GeneratedAnswer: "Check your account, \"Orders\" tab.",
			Contexts:        []string{"c1", "c2"},
			References:      []string{"https://help.example.com/a"},
			Outcome:         types.OutcomeOK,
			Success:         true,
			Score: types.EvaluationScore{
				SemanticSimilarity: &sim,
				Judged:             &types.JudgedScores{FactualAccuracy: 9, Relevance: 8, Completeness: 7, ContextUsage: 6},
			},
			ContextSimilarity: 0.5,
		})).To(Succeed())
		Expect(report.Append(Record{Index: 1, Outcome: types.OutcomeError, Error: "interrupted"})).To(Succeed())

		rows := readCSV(path)
		Expect(rows).To(HaveLen(3))
		Expect(rows[0]).To(Equal(ReportHeader))
		Expect(rows[1][6]).To(Equal("Check your account, \"Orders\" tab."))
		Expect(rows[1][7]).To(Equal("c1\nc2"))
		Expect(rows[1][10]).To(Equal("true"))
		Expect(rows[1][12:]).To(Equal([]string{"0.7500", "9.0000", "8.0000", "7.0000", "6.0000", "0.5000"}))
		Expect(rows[2][11]).To(Equal("interrupted"))
		Expect(rows[2][12:17]).To(Equal([]string{"", "", "", "", ""}))

		Expect(report.Close()).To(Succeed())
	})
})

func readCSV(path string) [][]string {
	f, err := os.Open(path)
	Expect(err).ToNot(HaveOccurred())
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	Expect(err).ToNot(HaveOccurred())
	return rows
}
