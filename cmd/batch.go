package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/venuedex/enrich-cli/internal/batch"
	"github.com/venuedex/enrich-cli/internal/cost"
	"github.com/venuedex/enrich-cli/internal/model"
	"github.com/venuedex/enrich-cli/internal/store"
)

var (
	batchLimit    int
	batchArea     string
	batchDryRun   bool
	batchEstimate bool
	batchYes      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run extraction for every entity that still needs work",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ids, err := buildWorklist(ctx, env.Store, batchArea, batchLimit)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			zap.L().Info("no entities need work")
			return nil
		}

		projection := cost.NewCalculator(cfg.Pricing).Project(len(ids))
		printProjection(cmd.OutOrStdout(), projection)
		if batchEstimate {
			return nil
		}

		if !batchDryRun && !batchYes {
			if !confirm(cmd.InOrStdin(), cmd.OutOrStdout()) {
				zap.L().Info("batch aborted by operator")
				return nil
			}
		}

		runner := batch.NewRunner(env.Orchestrator, cfg.Batch)
		report, runErr := runner.Run(ctx, ids, batch.Options{DryRun: batchDryRun})

		zap.L().Info("batch complete",
			zap.Int("attempted", report.Attempted),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
			zap.Bool("dry_run", report.DryRun),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of entities to process")
	batchCmd.Flags().StringVar(&batchArea, "area", "", "restrict the worklist to one area")
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "report what would run without invoking any provider")
	batchCmd.Flags().BoolVar(&batchEstimate, "estimate", false, "print the cost projection and exit")
	batchCmd.Flags().BoolVar(&batchYes, "yes", false, "skip the confirmation prompt")
	rootCmd.AddCommand(batchCmd)
}

// buildWorklist selects entities that still need extraction: pending
// first, then previously failed, then interrupted runs (whose expired
// claims are reclaimed; a live claim fails fast and lands in the
// report), up to limit.
func buildWorklist(ctx context.Context, st store.Store, area string, limit int) ([]string, error) {
	var ids []string
	for _, status := range []model.EntityStatus{model.EntityPending, model.EntityFailed, model.EntityProcessing} {
		remaining := 0
		if limit > 0 {
			remaining = limit - len(ids)
			if remaining <= 0 {
				break
			}
		}
		entities, err := st.ListEntities(ctx, store.EntityFilter{
			Status: status,
			Area:   area,
			Limit:  remaining,
		})
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

func printProjection(w io.Writer, p cost.Projection) {
	fmt.Fprintf(w, "Projected spend for %d entities: $%.2f total ($%.4f per entity)\n", p.Entities, p.Total, p.PerEntity)
	for _, step := range p.Steps() {
		fmt.Fprintf(w, "  %-10s $%.4f\n", step, p.StepBreakout[step])
	}
}

func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "Proceed with live run? [y/N]: ")
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
