// Package pipeline orchestrates snippet extraction over loaded file units
// with a fixed bound on concurrently in-flight collaborator calls.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/snippetd/internal/extraction"
	"github.com/fyrsmithlabs/snippetd/internal/loader"
	"github.com/fyrsmithlabs/snippetd/internal/snippet"
)

// DefaultMaxConcurrency bounds in-flight extraction calls when unset.
const DefaultMaxConcurrency = 5

// ProgressFunc is invoked once per unit after it finishes, with the unit's
// relative path, its outcome, and the run's completion counters.
type ProgressFunc func(path string, ok bool, completed, total int)

// UnitError records one failed unit, keyed by relative path.
type UnitError struct {
	Path string
	Err  error
}

// Result aggregates one orchestrator run. Counts are order-independent;
// no completion ordering is promised across units.
type Result struct {
	Succeeded int
	Failed    int
	Duration  time.Duration
	Snippets  []snippet.Snippet
	Errors    []UnitError
}

// TotalUnits returns the number of units the run attempted.
func (r Result) TotalUnits() int { return r.Succeeded + r.Failed }

// SnippetCount returns the number of snippets the run produced.
func (r Result) SnippetCount() int { return len(r.Snippets) }

// ErrorSummary renders up to max error lines plus a "+K more" marker.
func (r Result) ErrorSummary(max int) []string {
	if max <= 0 || len(r.Errors) == 0 {
		return nil
	}
	n := len(r.Errors)
	shown := n
	if shown > max {
		shown = max
	}
	out := make([]string, 0, shown+1)
	for _, ue := range r.Errors[:shown] {
		out = append(out, fmt.Sprintf("%s: %v", ue.Path, ue.Err))
	}
	if n > shown {
		out = append(out, fmt.Sprintf("+%d more", n-shown))
	}
	return out
}

// Options configures one run.
type Options struct {
	// MaxConcurrency bounds in-flight extraction calls.
	// 0 uses DefaultMaxConcurrency.
	MaxConcurrency int

	// OnFileComplete, if set, is called once per finished unit. Panics in
	// the callback are recovered and logged, never propagated.
	OnFileComplete ProgressFunc
}

// Orchestrator fans file units out to the extraction collaborator.
type Orchestrator struct {
	extractor extraction.Extractor
	metrics   *Metrics
	log       *zap.Logger
}

// New creates an orchestrator. metrics and log may be nil.
func New(extractor extraction.Extractor, metrics *Metrics, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{extractor: extractor, metrics: metrics, log: log}
}

// Run processes all units and aggregates the outcome. An empty unit set is
// a no-op returning a zero-valued result. A per-unit failure never aborts
// sibling units; each unit either fully completes or is recorded as an
// error, with no partial or duplicate contribution.
func (o *Orchestrator) Run(ctx context.Context, units []loader.FileUnit, opts Options) Result {
	if len(units) == 0 {
		return Result{}
	}

	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	collector := snippet.NewCollector()
	sem := semaphore.NewWeighted(int64(maxConcurrency))
	start := time.Now()
	total := len(units)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		succeeded int
		errs      []UnitError
	)

	for _, unit := range units {
		wg.Add(1)
		go func(unit loader.FileUnit) {
			defer wg.Done()

			err := o.processUnit(ctx, sem, unit, collector)

			mu.Lock()
			completed++
			current := completed
			if err == nil {
				succeeded++
			} else {
				errs = append(errs, UnitError{Path: unit.RelativePath, Err: err})
			}
			mu.Unlock()

			if o.metrics != nil {
				o.metrics.observeUnit(err == nil)
			}
			if opts.OnFileComplete != nil {
				o.notify(opts.OnFileComplete, unit.RelativePath, err == nil, current, total)
			}
		}(unit)
	}
	wg.Wait()

	result := Result{
		Succeeded: succeeded,
		Failed:    len(errs),
		Duration:  time.Since(start),
		Snippets:  collector.Snippets(),
		Errors:    errs,
	}

	if o.metrics != nil {
		o.metrics.observeRun(result)
	}
	o.log.Info("extraction run complete",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("snippets", result.SnippetCount()),
		zap.Duration("duration", result.Duration))
	if result.Failed > 0 {
		o.log.Warn("units failed during extraction",
			zap.Int("failed", result.Failed),
			zap.Strings("errors", result.ErrorSummary(5)))
	}

	return result
}

// processUnit holds a semaphore slot for the duration of one extraction
// call. The slot is released on every exit path, and collaborator panics
// are converted into per-unit errors.
func (o *Orchestrator) processUnit(ctx context.Context, sem *semaphore.Weighted, unit loader.FileUnit, collector *snippet.Collector) (err error) {
	if acqErr := sem.Acquire(ctx, 1); acqErr != nil {
		return fmt.Errorf("acquiring extraction slot: %w", acqErr)
	}
	defer sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()

	if err := o.extractor.Extract(ctx, unit.RelativePath, unit.Content, collector); err != nil {
		return err
	}
	return nil
}

// notify invokes the progress callback, recovering any panic.
func (o *Orchestrator) notify(fn ProgressFunc, path string, ok bool, completed, total int) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("progress callback panicked",
				zap.String("path", path), zap.Any("panic", r))
		}
	}()
	fn(path, ok, completed, total)
}
