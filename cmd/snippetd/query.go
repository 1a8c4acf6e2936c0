package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/snippetd/internal/vectorstore"
)

var (
	queryLimit    int
	queryRepo     string
	queryLanguage string
	queryNoMMR    bool
	queryShowCode bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Search stored snippets",
	Long: `Search stored snippets by semantic similarity.

Examples:
  # Search everywhere
  snippetd query "retry with exponential backoff"

  # Restrict to one repository and language
  snippetd query --repo widgets --language Go "worker pool"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryLimit, "limit", 10, "maximum results")
	queryCmd.Flags().StringVar(&queryRepo, "repo", "", "restrict to one repository")
	queryCmd.Flags().StringVar(&queryLanguage, "language", "", "restrict to one language")
	queryCmd.Flags().BoolVar(&queryNoMMR, "no-mmr", false, "rank purely by relevance, without diversity reranking")
	queryCmd.Flags().BoolVar(&queryShowCode, "code", false, "print snippet code")
}

func runQuery(cmd *cobra.Command, args []string) error {
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

	results, err := store.Query(cmd.Context(), strings.Join(args, " "), vectorstore.QueryOptions{
		Limit:      queryLimit,
		RepoName:   queryRepo,
		Language:   queryLanguage,
		DisableMMR: queryNoMMR,
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s (%.3f)\n", i+1, r.Snippet.Title, r.Score)
		fmt.Printf("   %s | %s | %s\n", r.Snippet.RepoName, r.Snippet.Language, r.Snippet.Path)
		fmt.Printf("   %s\n", r.Snippet.Description)
		if queryShowCode {
			fmt.Println()
			fmt.Println(indent(r.Snippet.Code, "   "))
		}
		fmt.Println()
	}
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
