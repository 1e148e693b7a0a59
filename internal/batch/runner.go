// Package batch drives many per-entity extraction runs as one operator
// action. It is the only place in the pipeline that introduces
// parallelism: entities are split into fixed-size groups, groups run
// sequentially with a pause between them, and items inside a group run
// with bounded fanout. One bad entity never aborts the run.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/venuedex/enrich-cli/internal/config"
	"github.com/venuedex/enrich-cli/internal/model"
	"github.com/venuedex/enrich-cli/internal/orchestrator"
)

// EntityRunner executes the extraction state machine for one entity.
type EntityRunner interface {
	Run(ctx context.Context, entityID string, opts orchestrator.Options) (*orchestrator.RunOutcome, error)
}

// Options tunes one batch run.
type Options struct {
	// DryRun reports what would be processed without invoking anything.
	DryRun bool
}

// Runner fans entity runs out over groups.
type Runner struct {
	runner EntityRunner
	cfg    config.BatchConfig
}

// NewRunner creates a Runner. Zero config values fall back to safe
// defaults (group size 25, fanout 1, no pause).
func NewRunner(r EntityRunner, cfg config.BatchConfig) *Runner {
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = 25
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Runner{runner: r, cfg: cfg}
}

// Run processes the worklist and aggregates per-item outcomes. Per-item
// failures (including panics out of orchestration code) are recorded in
// the report, never propagated. The returned error is non-nil only when
// the run was interrupted via ctx; the report still covers everything
// attempted before the interruption.
func (r *Runner) Run(ctx context.Context, entityIDs []string, opts Options) (*model.BatchReport, error) {
	report := &model.BatchReport{DryRun: opts.DryRun}
	if opts.DryRun {
		report.Attempted = len(entityIDs)
		return report, nil
	}

	log := zap.L()
	groups := chunk(entityIDs, r.cfg.GroupSize)
	groupDelay := time.Duration(r.cfg.GroupDelaySecs) * time.Second
	itemDelay := time.Duration(r.cfg.ItemDelaySecs) * time.Second

	var mu sync.Mutex
	record := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	}

	for gi, group := range groups {
		if gi > 0 && groupDelay > 0 {
			select {
			case <-ctx.Done():
				return report, eris.Wrap(ctx.Err(), "batch: interrupted between groups")
			case <-time.After(groupDelay):
			}
		}

		log.Info("processing group",
			zap.Int("group", gi+1),
			zap.Int("groups", len(groups)),
			zap.Int("size", len(group)),
		)

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.MaxConcurrent)

		// Stagger item launches so a group does not hammer the
		// providers all at once. g.Go blocks once the fanout limit is
		// reached, so the pause applies between actual starts.
		var interrupted error
		for ii, id := range group {
			if ii > 0 && itemDelay > 0 {
				select {
				case <-gCtx.Done():
					interrupted = gCtx.Err()
				case <-time.After(itemDelay):
				}
				if interrupted != nil {
					break
				}
			}
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				record(func() { report.Attempted++ })

				outcome, err := r.runItem(gCtx, id)
				switch {
				case err != nil && gCtx.Err() != nil:
					// Interruption, not an item failure.
					return err
				case err != nil:
					log.Warn("entity failed", zap.String("entity_id", id), zap.Error(err))
					record(func() {
						report.Failed++
						report.Failures = append(report.Failures, model.ItemFailure{EntityID: id, Error: err.Error()})
					})
				case outcome.Skipped:
					record(func() { report.Skipped++ })
				case outcome.Failed():
					record(func() {
						report.Failed++
						report.Failures = append(report.Failures, model.ItemFailure{
							EntityID: id,
							Error:    fmt.Sprintf("step %s: %s", outcome.FailedStep, outcome.Err),
						})
					})
				default:
					record(func() { report.Succeeded++ })
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return report, eris.Wrap(err, "batch: interrupted")
		}
		if interrupted != nil {
			return report, eris.Wrap(interrupted, "batch: interrupted")
		}
	}

	return report, nil
}

// runItem isolates one entity run, converting panics into errors so a
// defect in orchestration code cannot take down the batch.
func (r *Runner) runItem(ctx context.Context, entityID string) (outcome *orchestrator.RunOutcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = nil
			err = eris.Errorf("panic: %v", rec)
		}
	}()
	return r.runner.Run(ctx, entityID, orchestrator.Options{})
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
