// Package sources fetches help-center pages from the web, sitemaps, git repositories
// and local files.
package sources

import (
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"jaytaylor.com/html2text"
)

// Page is a fetched document ready for FAQ extraction.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	// Text is markdown or plain text.
	Text string `json:"text"`
}

// HTMLToPage converts an HTML document into a page. The title comes from the
// <title> element, or from the first <h1> when no title is set.
func HTMLToPage(url, document string) (Page, error) {
	text, err := html2text.FromString(document, html2text.Options{PrettyTables: true})
	if err != nil {
		return Page{}, err
	}
	return Page{
		URL:   url,
		Title: htmlTitle(document),
		Text:  text,
	}, nil
}

func htmlTitle(document string) string {
	z := html.NewTokenizer(strings.NewReader(document))
	var (
		current string
		title   string
		heading string
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if title != "" {
				return title
			}
			return heading
		case html.StartTagToken:
			name, _ := z.TagName()
			current = string(name)
		case html.EndTagToken:
			current = ""
		case html.TextToken:
			text := strings.TrimSpace(string(z.Text()))
			if text == "" {
				continue
			}
			switch current {
			case "title":
				if title == "" {
					title = text
				}
			case "h1":
				if heading == "" {
					heading = text
				}
			}
		}
	}
}

// MarkdownTitle returns the first markdown heading of text, or the file name
// without extension.
func MarkdownTitle(text, name string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			if t := strings.TrimSpace(strings.TrimLeft(line, "#")); t != "" {
				return t
			}
		}
	}
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
