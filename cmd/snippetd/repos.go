package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/snippetd/internal/vectorstore"
	"github.com/fyrsmithlabs/snippetd/internal/worker"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage ingested repositories",
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List repositories with stored snippets",
	RunE:  runReposList,
}

var reposListLimit int

var reposGetCmd = &cobra.Command{
	Use:   "get <ingest-id|repo-name>",
	Short: "Show one repository's snippet metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runReposGet,
}

var reposDeleteCmd = &cobra.Command{
	Use:   "delete <repo-name>",
	Short: "Delete a repository's snippets and job records",
	Args:  cobra.ExactArgs(1),
	RunE:  runReposDelete,
}

func init() {
	reposListCmd.Flags().IntVar(&reposListLimit, "limit", 100, "maximum repositories to list")
	reposCmd.AddCommand(reposListCmd)
	reposCmd.AddCommand(reposGetCmd)
	reposCmd.AddCommand(reposDeleteCmd)
}

func runReposList(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	status, closeStatus, err := newStatusStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStatus()

	store, err := newVectorStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// Jobs still tracked in the status store have not completed; their
	// partial ingests must not surface as browsable repositories.
	records, err := status.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}
	activeIDs := make([]string, 0, len(records))
	for _, rec := range records {
		activeIDs = append(activeIDs, rec.ID)
	}

	repos, err := store.ListCompletedRepositories(cmd.Context(), reposListLimit, activeIDs)
	if err != nil {
		return err
	}

	if len(repos) == 0 {
		fmt.Println("No repositories.")
		return nil
	}
	for _, r := range repos {
		fmt.Printf("%s\t%s\t%s\n", r.RepoName, r.IngestID, r.RepoURL)
	}
	return nil
}

func runReposGet(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := newVectorStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// Lookups key on the ingest ID; a repository name falls back to a
	// scan over the discovered ingests.
	repo, err := store.GetCompletedRepository(cmd.Context(), args[0])
	if errors.Is(err, vectorstore.ErrRepositoryNotFound) {
		repo, err = findRepoByName(cmd, store, args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("Name: %s\n", repo.RepoName)
	fmt.Printf("URL: %s\n", repo.RepoURL)
	fmt.Printf("Ingest ID: %s\n", repo.IngestID)
	fmt.Printf("Snippets: %d\n", repo.SnippetCount)
	return nil
}

func findRepoByName(cmd *cobra.Command, store *vectorstore.Store, name string) (*vectorstore.RepoMetadata, error) {
	repos, err := store.ListCompletedRepositories(cmd.Context(), 0, nil)
	if err != nil {
		return nil, err
	}
	for _, r := range repos {
		if r.RepoName == name {
			return store.GetCompletedRepository(cmd.Context(), r.IngestID)
		}
	}
	return nil, vectorstore.ErrRepositoryNotFound
}

func runReposDelete(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	status, closeStatus, err := newStatusStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStatus()

	store, err := newVectorStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	w := worker.New(status, nil, cfg.Loader, nil, store, cfg.Worker, log)
	if err := w.DeleteRepository(cmd.Context(), args[0]); err != nil {
		return err
	}

	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
