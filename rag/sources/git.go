package sources

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// GitRepository clones a repository and returns its help-center documents
// (markdown, HTML and plain text files) as pages.
func GitRepository(ctx context.Context, url string, privateKey string) ([]Page, error) {
	tempDir, err := os.MkdirTemp("", "git-repo-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	cloneOptions := &git.CloneOptions{
		URL:           url,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.HEAD,
	}

	if privateKey != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(privateKey)
		if err != nil {
			return nil, err
		}

		auth, err := ssh.NewPublicKeys("git", keyBytes, "")
		if err != nil {
			return nil, err
		}
		cloneOptions.Auth = auth
	}

	if _, err := git.PlainCloneContext(ctx, tempDir, false, cloneOptions); err != nil {
		return nil, err
	}

	pages, err := walkDocuments(tempDir)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(url, ".git")
	for i := range pages {
		rel, _ := filepath.Rel(tempDir, pages[i].URL)
		pages[i].URL = base + "/" + filepath.ToSlash(rel)
	}
	return pages, nil
}

// walkDocuments reads every supported document below root. Page URLs are file paths.
func walkDocuments(root string) ([]Page, error) {
	var pages []Page
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() && info.Name() == ".git" {
			return filepath.SkipDir
		}

		if !info.IsDir() && isDocument(path) {
			page, err := File(path)
			if err != nil {
				return err
			}
			pages = append(pages, page)
		}
		return nil
	})
	return pages, err
}

func isDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".html", ".htm", ".txt", ".pdf":
		return true
	}
	return false
}
