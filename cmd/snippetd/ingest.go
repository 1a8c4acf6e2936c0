package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/snippetd/internal/gitrepo"
	"github.com/fyrsmithlabs/snippetd/internal/queue"
)

var (
	ingestRepoName string
	ingestBranch   string
	ingestPatterns []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <repository-url>",
	Short: "Enqueue a repository for snippet extraction",
	Long: `Enqueue a repository for snippet extraction.

Examples:
  # Ingest a repository's default branch
  snippetd ingest https://github.com/acme/widgets

  # Ingest a specific branch under a custom name
  snippetd ingest --branch develop --repo-name widgets-dev https://github.com/acme/widgets

  # Restrict extraction to Go files
  snippetd ingest --pattern '**/*.go' https://github.com/acme/widgets`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestRepoName, "repo-name", "", "name to store snippets under (default derived from URL)")
	ingestCmd.Flags().StringVar(&ingestBranch, "branch", "", "branch to clone (default repository default branch)")
	ingestCmd.Flags().StringArrayVar(&ingestPatterns, "pattern", nil, "glob pattern for files to extract (repeatable)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	url := args[0]
	repoName := ingestRepoName
	if repoName == "" {
		repoName = gitrepo.DeriveRepoName(url)
	}

	status, closeStatus, err := newStatusStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStatus()

	q, err := queue.Connect(cfg.Queue, log)
	if err != nil {
		return err
	}
	defer q.Close()

	req := queue.IngestRequest{
		JobID:     uuid.NewString(),
		SourceURL: url,
		RepoName:  repoName,
		Branch:    ingestBranch,
		Patterns:  ingestPatterns,
	}

	if _, err := status.CreatePending(cmd.Context(), req.JobID, url, repoName); err != nil {
		return fmt.Errorf("creating job record: %w", err)
	}
	if err := q.Enqueue(cmd.Context(), req); err != nil {
		return fmt.Errorf("enqueueing job: %w", err)
	}

	fmt.Printf("Job ID: %s\n", req.JobID)
	fmt.Printf("Repository: %s\n", repoName)
	return nil
}
