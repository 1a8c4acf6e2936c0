// Package gitrepo fetches repositories for ingestion and derives the
// repository identity used to tag stored snippets.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

// Fetcher materializes a repository on local disk. The cleanup func
// removes the checkout and is safe to call once the caller is done.
type Fetcher interface {
	Fetch(ctx context.Context, url, branch string) (path string, cleanup func(), err error)
}

// CloneFetcher fetches repositories with a shallow git clone.
type CloneFetcher struct {
	log *zap.Logger

	// baseDir is where checkouts are created. Empty means the OS temp dir.
	baseDir string
}

// NewCloneFetcher returns a fetcher that clones into the OS temp dir.
func NewCloneFetcher(log *zap.Logger) *CloneFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &CloneFetcher{log: log}
}

// Fetch clones the repository at depth 1. When branch is empty the
// remote's default branch is used.
func (f *CloneFetcher) Fetch(ctx context.Context, url, branch string) (string, func(), error) {
	if url == "" {
		return "", nil, fmt.Errorf("repository url required")
	}

	dir, err := os.MkdirTemp(f.baseDir, "snippetd-clone-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating checkout dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			f.log.Debug("checkout cleanup failed", zap.String("dir", dir), zap.Error(err))
		}
	}

	opts := &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	f.log.Info("cloning repository",
		zap.String("url", url),
		zap.String("branch", branch))

	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("cloning %s: %w", url, err)
	}
	return dir, cleanup, nil
}

// DeriveRepoName derives a stable repository name from a clone URL:
// the final path segment, lowercased, with the .git suffix removed and
// unsupported characters replaced. Both HTTPS and SSH URL forms are
// handled.
func DeriveRepoName(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	trimmed = strings.TrimRight(trimmed, "/")
	trimmed = strings.TrimSuffix(trimmed, ".git")
	if trimmed == "" {
		return "repository"
	}

	// The last "/" or ":" separator covers both HTTPS and SSH forms.
	if i := strings.LastIndexAny(trimmed, "/:"); i >= 0 {
		trimmed = trimmed[i+1:]
	}

	name := sanitizeName(strings.ToLower(trimmed))
	if name == "" {
		return "repository"
	}
	return name
}

// DeriveRepoSlug derives an "owner/name" display slug when the URL has an
// owner segment, otherwise just the repo name.
func DeriveRepoSlug(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	trimmed = strings.TrimRight(trimmed, "/")
	trimmed = strings.TrimSuffix(trimmed, ".git")

	// Normalize the SSH separator so owner/name splits uniformly.
	if i := strings.LastIndex(trimmed, ":"); i >= 0 && strings.Contains(trimmed[i+1:], "/") {
		trimmed = trimmed[i+1:]
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) >= 2 {
		owner := parts[len(parts)-2]
		name := parts[len(parts)-1]
		if owner != "" && name != "" && !strings.Contains(owner, ".") {
			return owner + "/" + name
		}
	}
	return DeriveRepoName(rawURL)
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-.")
}
