// Package main implements the snippetd CLI: the ingest worker daemon and
// manual operations against the snippet store and job queue.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snippetd/internal/config"
	"github.com/fyrsmithlabs/snippetd/internal/embeddings"
	"github.com/fyrsmithlabs/snippetd/internal/jobstatus"
	"github.com/fyrsmithlabs/snippetd/internal/logging"
	"github.com/fyrsmithlabs/snippetd/internal/vectorstore"
)

var (
	// configPath overrides the default config file location.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "snippetd",
	Short: "Repository snippet extraction and retrieval",
	Long: `snippetd ingests git repositories, extracts reusable code snippets
with an LLM, and serves semantic search over the results.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/snippetd/config.yaml)")
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(reposCmd)
	rootCmd.AddCommand(jobsCmd)
}

// setup loads config and builds the logger shared by all commands.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, log, nil
}

// newStatusStore connects to Valkey and wraps it in a job status store.
// The returned closer must be called when done.
func newStatusStore(cfg *config.Config, log *zap.Logger) (*jobstatus.Store, func(), error) {
	kv, err := jobstatus.NewValkeyKV(cfg.JobStatus)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to valkey: %w", err)
	}
	store := jobstatus.NewStore(kv, log, jobstatus.WithTTL(cfg.JobStatus.TTL))
	return store, kv.Close, nil
}

// newVectorStore builds the embedder and the qdrant-backed snippet store.
func newVectorStore(cfg *config.Config, log *zap.Logger) (*vectorstore.Store, error) {
	embedder, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}
	store, err := vectorstore.NewStore(cfg.VectorStore, embedder, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}
	return store, nil
}
