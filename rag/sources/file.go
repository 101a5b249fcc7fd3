package sources

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
)

// Files reads a single document, or every supported document below a directory.
func Files(path string) ([]Page, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return walkDocuments(path)
	}

	page, err := File(path)
	if err != nil {
		return nil, err
	}
	return []Page{page}, nil
}

// File reads a pdf, markdown, HTML or text document.
func File(path string) (Page, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		r, err := pdf.Open(path)
		if err != nil {
			return Page{}, err
		}
		b, err := r.GetPlainText()
		if err != nil {
			return Page{}, err
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(b); err != nil {
			return Page{}, err
		}
		return Page{URL: path, Title: MarkdownTitle("", path), Text: buf.String()}, nil
	case ".html", ".htm":
		content, err := os.ReadFile(path)
		if err != nil {
			return Page{}, err
		}
		page, err := HTMLToPage(path, string(content))
		if err != nil {
			return Page{}, err
		}
		if page.Title == "" {
			page.Title = MarkdownTitle("", path)
		}
		return page, nil
	case ".md", ".markdown", ".txt":
		content, err := os.ReadFile(path)
		if err != nil {
			return Page{}, err
		}
		text := string(content)
		return Page{URL: path, Title: MarkdownTitle(text, path), Text: text}, nil
	default:
		return Page{}, fmt.Errorf("unsupported file type: %s", ext)
	}
}
