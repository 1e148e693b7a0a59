package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/venuedex/enrich-cli/internal/orchestrator"
)

var (
	runFromStep string
	runReset    bool
)

var runCmd = &cobra.Command{
	Use:   "run <entity-id>",
	Short: "Run extraction for a single entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		entityID := args[0]

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if runReset {
			if err := env.Store.ResetProgress(ctx, entityID); err != nil {
				return eris.Wrap(err, "reset progress")
			}
			zap.L().Info("progress reset", zap.String("entity_id", entityID))
		}

		outcome, err := env.Orchestrator.Run(ctx, entityID, orchestrator.Options{FromStep: runFromStep})
		if err != nil {
			return eris.Wrap(err, "run entity")
		}

		switch {
		case outcome.Skipped:
			zap.L().Info("entity already completed", zap.String("entity_id", entityID))
		case outcome.Failed():
			zap.L().Warn("extraction halted",
				zap.String("entity_id", entityID),
				zap.String("failed_step", outcome.FailedStep),
				zap.String("error", outcome.Err),
			)
		default:
			zap.L().Info("extraction complete",
				zap.String("entity_id", entityID),
				zap.Strings("steps", outcome.CompletedSteps),
				zap.Int("conflicts", len(outcome.Conflicts)),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	},
}

func init() {
	runCmd.Flags().StringVar(&runFromStep, "from-step", "", "re-run starting at this step (all prior steps must be completed)")
	runCmd.Flags().BoolVar(&runReset, "reset", false, "clear recorded progress before running")
	rootCmd.AddCommand(runCmd)
}
