package sources

import (
	"context"
	"os"
	"strings"

	"github.com/mudler/xlog"
)

// Fetch downloads the pages of a source. Sources are routed by shape: git
// repositories, sitemaps, local files or directories, and single web pages.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]Page, error) {
	xlog.Info("Downloading content from", "source", source)

	switch {
	case isGitRepository(source):
		return GitRepository(ctx, source, f.gitPrivateKey)
	case strings.HasSuffix(source, "sitemap.xml"):
		pages, err := f.Sitemap(ctx, source)
		if err != nil {
			return nil, err
		}
		xlog.Info("Downloaded all content from sitemap", "url", source, "pages", len(pages))
		return pages, nil
	case isLocalPath(source):
		return Files(strings.TrimPrefix(source, "file://"))
	}

	page, err := f.WebPage(ctx, source)
	if err != nil {
		return nil, err
	}
	return []Page{page}, nil
}

func isGitRepository(source string) bool {
	return strings.HasSuffix(source, ".git") || strings.HasPrefix(source, "git@")
}

func isLocalPath(source string) bool {
	if strings.HasPrefix(source, "file://") {
		return true
	}
	if strings.Contains(source, "://") {
		return false
	}
	_, err := os.Stat(source)
	return err == nil
}
