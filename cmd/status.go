package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/venuedex/enrich-cli/internal/model"
)

// statusView is the operator-facing shape: the step map plus the derived
// overall status, in execution order.
type statusView struct {
	EntityID string             `json:"entity_id"`
	Name     string             `json:"name,omitempty"`
	Status   model.EntityStatus `json:"status"`
	Steps    []stepView         `json:"steps"`
	Updated  time.Time          `json:"updated_at"`
}

type stepView struct {
	Step      string           `json:"step"`
	Status    model.StepStatus `json:"status"`
	UpdatedAt time.Time        `json:"updated_at"`
	Error     string           `json:"error,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status <entity-id>",
	Short: "Show per-step extraction progress for an entity",
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

		entity, err := st.GetEntity(ctx, entityID)
		if err != nil {
			return eris.Wrapf(err, "get entity %s", entityID)
		}
		progress, err := st.GetProgress(ctx, entityID)
		if err != nil {
			return eris.Wrapf(err, "get progress %s", entityID)
		}

		view := statusView{
			EntityID: entityID,
			Name:     entity.Name,
			Status:   model.OverallStatus(progress, model.StepOrder),
			Updated:  progress.UpdatedAt,
		}
		for _, step := range model.StepOrder {
			state := progress.StepFor(step)
			view.Steps = append(view.Steps, stepView{
				Step:      step,
				Status:    state.Status,
				UpdatedAt: state.UpdatedAt,
				Error:     state.Error,
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
