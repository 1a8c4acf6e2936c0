package gitrepo_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snippetd/internal/gitrepo"
)

func TestDeriveRepoName(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "https", url: "https://github.com/acme/widgets", want: "widgets"},
		{name: "https with .git", url: "https://github.com/acme/widgets.git", want: "widgets"},
		{name: "trailing slash", url: "https://github.com/acme/widgets/", want: "widgets"},
		{name: "ssh", url: "git@github.com:acme/widgets.git", want: "widgets"},
		{name: "uppercase", url: "https://github.com/acme/Widgets", want: "widgets"},
		{name: "odd characters", url: "https://example.com/My Repo!", want: "my-repo"},
		{name: "empty", url: "", want: "repository"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gitrepo.DeriveRepoName(tt.url))
		})
	}
}

func TestDeriveRepoSlug(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "https", url: "https://github.com/acme/widgets.git", want: "acme/widgets"},
		{name: "ssh", url: "git@github.com:acme/widgets.git", want: "acme/widgets"},
		{name: "no owner", url: "https://example.com/widgets", want: "widgets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gitrepo.DeriveRepoSlug(tt.url))
		})
	}
}

// newFixtureRepo creates a local git repository with one committed file.
func newFixtureRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("main.go")
	require.NoError(t, err)
	_, err = wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "tester",
			Email: "tester@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)

	return dir
}

func TestCloneFetcher_Fetch(t *testing.T) {
	src := newFixtureRepo(t)
	fetcher := gitrepo.NewCloneFetcher(zap.NewNop())

	dir, cleanup, err := fetcher.Fetch(context.Background(), src, "")
	require.NoError(t, err)
	require.NotNil(t, cleanup)

	_, err = os.Stat(filepath.Join(dir, "main.go"))
	assert.NoError(t, err)

	cleanup()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCloneFetcher_EmptyURL(t *testing.T) {
	fetcher := gitrepo.NewCloneFetcher(zap.NewNop())
	_, _, err := fetcher.Fetch(context.Background(), "", "")
	assert.Error(t, err)
}

func TestCloneFetcher_BadURL(t *testing.T) {
	fetcher := gitrepo.NewCloneFetcher(zap.NewNop())
	_, _, err := fetcher.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing"), "")
	assert.Error(t, err)
}
