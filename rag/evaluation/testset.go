package evaluation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Row is one test-set question with its ground-truth answer.
type Row struct {
	Index       int
	Question    string
	GroundTruth string
	// ReferenceURL is the page the answer comes from, when the test set records it.
	ReferenceURL string
}

// ReadTestSet reads a CSV test set with "question" and "answer" columns.
// An optional "url", "page_url" or "reference_url" column gives the reference page.
// Header names are matched case-insensitively and other columns are ignored.
// A positive limit keeps only the first rows.
func ReadTestSet(r io.Reader, limit int) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("test set is empty")
		}
		return nil, fmt.Errorf("reading test set header: %w", err)
	}

	questionCol, answerCol, urlCol := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "question":
			questionCol = i
		case "answer":
			answerCol = i
		case "url", "page_url", "reference_url":
			urlCol = i
		}
	}
	if questionCol < 0 || answerCol < 0 {
		return nil, fmt.Errorf("test set must have question and answer columns, got %v", header)
	}

	var rows []Row
	for {
		if limit > 0 && len(rows) >= limit {
			break
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading test set row %d: %w", len(rows)+1, err)
		}
		if questionCol >= len(record) || answerCol >= len(record) {
			return nil, fmt.Errorf("test set row %d has %d columns", len(rows)+1, len(record))
		}
		row := Row{
			Index:       len(rows),
			Question:    record[questionCol],
			GroundTruth: record[answerCol],
		}
		if urlCol >= 0 && urlCol < len(record) {
			row.ReferenceURL = strings.TrimSpace(record[urlCol])
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// LoadTestSet reads the test set at path.
func LoadTestSet(path string, limit int) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadTestSet(f, limit)
}
