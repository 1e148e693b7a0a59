package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resetCmd = &cobra.Command{
	Use:   "reset <entity-id>",
	Short: "Clear recorded extraction progress for an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		entityID := args[0]

		if err := cfg.Validate("status"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.ResetProgress(ctx, entityID); err != nil {
			return eris.Wrapf(err, "reset progress %s", entityID)
		}

		zap.L().Info("progress reset", zap.String("entity_id", entityID))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
