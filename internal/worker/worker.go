// Package worker executes repository ingestion jobs: fetch the repo,
// load its files, extract snippets, and persist them, reporting progress
// to the job status store along the way.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snippetd/internal/gitrepo"
	"github.com/fyrsmithlabs/snippetd/internal/jobstatus"
	"github.com/fyrsmithlabs/snippetd/internal/loader"
	"github.com/fyrsmithlabs/snippetd/internal/pipeline"
	"github.com/fyrsmithlabs/snippetd/internal/queue"
	"github.com/fyrsmithlabs/snippetd/internal/snippet"
	"github.com/fyrsmithlabs/snippetd/internal/vectorstore"
)

// Progress milestones for one job. Extraction advances between
// progressExtracting and progressStoring as files complete.
const (
	progressCloning    = 5
	progressLoading    = 15
	progressExtracting = 20
	progressStoring    = 85
)

// SnippetStore is the persistence surface the worker needs.
type SnippetStore interface {
	AddSnippets(ctx context.Context, snippets []snippet.Snippet) (int, error)
	DeleteRepository(ctx context.Context, sel vectorstore.RepoSelector) error
}

// Config holds worker tuning.
type Config struct {
	// Concurrency bounds in-flight extraction calls per job.
	Concurrency int `koanf:"concurrency"`
}

// Worker runs ingest jobs against its collaborators.
type Worker struct {
	status       *jobstatus.Store
	fetcher      gitrepo.Fetcher
	loaderOpts   loader.Options
	orchestrator *pipeline.Orchestrator
	store        SnippetStore
	cfg          Config
	log          *zap.Logger
}

// New wires a worker.
func New(
	status *jobstatus.Store,
	fetcher gitrepo.Fetcher,
	loaderOpts loader.Options,
	orchestrator *pipeline.Orchestrator,
	store SnippetStore,
	cfg Config,
	log *zap.Logger,
) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		status:       status,
		fetcher:      fetcher,
		loaderOpts:   loaderOpts,
		orchestrator: orchestrator,
		store:        store,
		cfg:          cfg,
		log:          log,
	}
}

// ProcessJob executes one ingest job. It satisfies queue.Handler.
//
// Job-level failures (bad repo, no matching files, extraction trouble)
// are recorded on the status record and then returned, so the queue's
// retry policy decides whether the job is redelivered. Only a malformed
// request is swallowed; redelivering it can never succeed.
func (w *Worker) ProcessJob(ctx context.Context, req queue.IngestRequest) error {
	if err := req.Validate(); err != nil {
		w.log.Error("rejecting malformed ingest request", zap.Error(err))
		return nil
	}

	repoName := req.RepoName
	if repoName == "" {
		repoName = gitrepo.DeriveRepoName(req.SourceURL)
	}
	log := w.log.With(
		zap.String("job_id", req.JobID),
		zap.String("repo_name", repoName),
	)

	if _, err := w.status.EnsureRecord(ctx, req.JobID, req.SourceURL, repoName); err != nil {
		return fmt.Errorf("ensuring job record: %w", err)
	}
	if _, err := w.status.MarkProcessing(ctx, req.JobID, jobstatus.Update{
		Message:  "Cloning repository",
		RepoName: repoName,
		Progress: intPtr(progressCloning),
	}); err != nil {
		return fmt.Errorf("marking job processing: %w", err)
	}

	dir, cleanup, err := w.fetcher.Fetch(ctx, req.SourceURL, req.Branch)
	if err != nil {
		log.Warn("clone failed", zap.Error(err))
		return w.fail(ctx, req.JobID, err)
	}
	defer cleanup()

	w.progress(ctx, req.JobID, "Loading repository files", progressLoading)

	opts := w.loaderOpts
	if len(req.Patterns) > 0 {
		opts.Patterns = req.Patterns
	}
	units, err := loader.New(opts, log).Load(dir)
	if errors.Is(err, loader.ErrNoMatches) {
		log.Info("no matching files in repository")
		return w.complete(ctx, req.JobID, "No snippets extracted")
	}
	if err != nil {
		log.Warn("load failed", zap.Error(err))
		return w.fail(ctx, req.JobID, err)
	}

	w.progress(ctx, req.JobID,
		fmt.Sprintf("Extracting snippets from %d files", len(units)),
		progressExtracting)

	result := w.orchestrator.Run(ctx, units, pipeline.Options{
		MaxConcurrency: w.cfg.Concurrency,
		OnFileComplete: func(path string, ok bool, completed, total int) {
			pct := progressExtracting
			if total > 0 {
				pct += completed * (progressStoring - progressExtracting) / total
			}
			w.progress(ctx, req.JobID,
				fmt.Sprintf("Processed %d/%d files", completed, total), pct)
		},
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	snippets := enrich(result.Snippets, req, repoName)
	if len(snippets) == 0 {
		log.Info("extraction produced no snippets",
			zap.Int("failed_units", result.Failed),
			zap.Strings("errors", result.ErrorSummary(3)))
		return w.complete(ctx, req.JobID, "No snippets extracted")
	}

	w.progress(ctx, req.JobID, "Storing snippets", progressStoring)

	stored, err := w.store.AddSnippets(ctx, snippets)
	if err != nil {
		log.Error("storing snippets failed", zap.Error(err))
		return w.fail(ctx, req.JobID, err)
	}

	log.Info("ingest complete",
		zap.Int("files", result.TotalUnits()),
		zap.Int("failed_units", result.Failed),
		zap.Int("snippets", stored))
	return w.complete(ctx, req.JobID, fmt.Sprintf("Stored %d snippets", stored))
}

// DeleteRepository removes a repository's stored snippets and any job
// records that reference it.
func (w *Worker) DeleteRepository(ctx context.Context, repoName string) error {
	if repoName == "" {
		return fmt.Errorf("repo name required")
	}
	if err := w.store.DeleteRepository(ctx, vectorstore.RepoSelector{RepoName: repoName}); err != nil {
		return err
	}
	records, err := w.status.List(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.RepoName != repoName {
			continue
		}
		if err := w.status.Delete(ctx, rec.ID); err != nil {
			return err
		}
	}
	w.log.Info("deleted repository", zap.String("repo_name", repoName))
	return nil
}

// enrich stamps repository identity onto extracted snippets.
func enrich(snippets []snippet.Snippet, req queue.IngestRequest, repoName string) []snippet.Snippet {
	slug := gitrepo.DeriveRepoSlug(req.SourceURL)
	out := make([]snippet.Snippet, len(snippets))
	for i, sn := range snippets {
		sn.Repo = slug
		sn.RepoName = repoName
		sn.RepoURL = req.SourceURL
		sn.IngestID = req.JobID
		out[i] = sn
	}
	return out
}

func (w *Worker) progress(ctx context.Context, jobID, message string, pct int) {
	if _, err := w.status.UpdateProgress(ctx, jobID, message, &pct); err != nil {
		w.log.Debug("progress update failed",
			zap.String("job_id", jobID),
			zap.Error(err))
	}
}

func (w *Worker) fail(ctx context.Context, jobID string, cause error) error {
	if _, err := w.status.MarkFailed(ctx, jobID, cause.Error(), ""); err != nil {
		return fmt.Errorf("marking job failed: %w", err)
	}
	return cause
}

func (w *Worker) complete(ctx context.Context, jobID, message string) error {
	if _, err := w.status.MarkCompleted(ctx, jobID, message); err != nil {
		return fmt.Errorf("marking job completed: %w", err)
	}
	return nil
}

func intPtr(v int) *int { return &v }
